// Package kraken implements the exchange gateway over the Kraken REST API.
package kraken

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"trailbot/internal/domain"
	"trailbot/pkg/retry"
)

const defaultBaseURL = "https://api.kraken.com"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to the Kraken REST API. Public endpoints need no
// credentials; private ones are signed with the API key pair.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       *logrus.Entry

	// pairIndex maps altnames (XBTUSD) to the primary pair names Kraken
	// keys its responses with (XXBTZUSD). Built once at startup.
	pairIndex map[string]string
}

// NewClient builds a client. Key and secret may be empty for public-only
// use, such as backtest data loading.
func NewClient(baseURL, apiKey, apiSecret string, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       log.WithField("component", "kraken"),
		pairIndex: map[string]string{},
	}
}

type envelope struct {
	Error  []string            `json:"error"`
	Result jsoniter.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, path string, form url.Values, private bool, out interface{}) error {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = retryable
	return c.callRetry(ctx, path, form, private, out, cfg)
}

func (c *Client) callRetry(ctx context.Context, path string, form url.Values, private bool, out interface{}, cfg retry.Config) error {
	op := func() error { return c.callOnce(ctx, path, form, private, out) }
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.WithError(err).WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("retrying kraken call")
	}
	return retry.Do(ctx, op, cfg)
}

func (c *Client) callOnce(ctx context.Context, path string, form url.Values, private bool, out interface{}) error {
	var req *http.Request
	var err error
	if private {
		if c.apiKey == "" || c.apiSecret == "" {
			return fmt.Errorf("kraken %s: missing api credentials", path)
		}
		if form == nil {
			form = url.Values{}
		}
		nonce := strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10)
		form.Set("nonce", nonce)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("kraken %s: %w", path, err)
		}
		sig, err := sign(c.apiSecret, path, nonce, form)
		if err != nil {
			return fmt.Errorf("kraken %s: %w", path, err)
		}
		req.Header.Set("API-Key", c.apiKey)
		req.Header.Set("API-Sign", sig)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		u := c.baseURL + path
		if len(form) > 0 {
			u += "?" + form.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("kraken %s: %w", path, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kraken %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kraken %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &apiError{path: path, status: resp.StatusCode, messages: []string{string(body)}}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("kraken %s: decode envelope: %w", path, err)
	}
	if len(env.Error) > 0 {
		return &apiError{path: path, status: resp.StatusCode, messages: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("kraken %s: decode result: %w", path, err)
		}
	}
	return nil
}

// apiError carries the error strings from a Kraken response envelope.
type apiError struct {
	path     string
	status   int
	messages []string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("kraken %s: status %d: %s", e.path, e.status, strings.Join(e.messages, "; "))
}

// retryable treats server-side and rate-limit conditions as transient.
// Kraken error strings are prefixed with a severity class, e.g.
// "EService:Unavailable" or "EAPI:Rate limit exceeded".
func retryable(err error) bool {
	apiErr, ok := err.(*apiError)
	if !ok {
		// Network errors, timeouts.
		return true
	}
	if apiErr.status >= 500 {
		return true
	}
	for _, msg := range apiErr.messages {
		if strings.HasPrefix(msg, "EService:") || strings.Contains(msg, "Rate limit") {
			return true
		}
	}
	return false
}

// orderRetryable retries order placement only when Kraken parsed the
// request and rejected it as transient. An ambiguous network failure or
// bare 5xx may mean the order was already accepted, so those surface to
// the caller instead of risking a duplicate order.
func orderRetryable(err error) bool {
	apiErr, ok := err.(*apiError)
	if !ok || apiErr.status >= 500 {
		return false
	}
	for _, msg := range apiErr.messages {
		if strings.HasPrefix(msg, "EService:") || strings.Contains(msg, "Rate limit") {
			return true
		}
	}
	return false
}

// LoadPairIndex fetches the tradable pairs and builds the altname to
// primary-name index used to unkey public responses.
func (c *Client) LoadPairIndex(ctx context.Context) error {
	var result map[string]struct {
		Altname string `json:"altname"`
	}
	if err := c.call(ctx, "/0/public/AssetPairs", nil, false, &result); err != nil {
		return err
	}
	idx := make(map[string]string, len(result)*2)
	for primary, info := range result {
		idx[primary] = primary
		idx[info.Altname] = primary
	}
	c.pairIndex = idx
	c.log.WithField("pairs", len(result)).Info("loaded asset pair index")
	return nil
}

// primary resolves a configured pair name to Kraken's primary key.
func (c *Client) primary(pair string) string {
	if p, ok := c.pairIndex[pair]; ok {
		return p
	}
	return pair
}

// Ticker implements domain.Exchange.
func (c *Client) Ticker(ctx context.Context, pair string) (*domain.Ticker, error) {
	form := url.Values{"pair": {pair}}
	var result map[string]struct {
		Ask  []string `json:"a"`
		Bid  []string `json:"b"`
		Last []string `json:"c"`
	}
	if err := c.call(ctx, "/0/public/Ticker", form, false, &result); err != nil {
		return nil, err
	}
	entry, ok := result[c.primary(pair)]
	if !ok {
		// Single-pair requests have exactly one key; fall back to it.
		for _, v := range result {
			entry = v
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("kraken ticker: no entry for %s", pair)
	}
	t := &domain.Ticker{Pair: pair}
	var err error
	if t.Ask, err = first(entry.Ask); err != nil {
		return nil, fmt.Errorf("kraken ticker %s ask: %w", pair, err)
	}
	if t.Bid, err = first(entry.Bid); err != nil {
		return nil, fmt.Errorf("kraken ticker %s bid: %w", pair, err)
	}
	if t.Last, err = first(entry.Last); err != nil {
		return nil, fmt.Errorf("kraken ticker %s last: %w", pair, err)
	}
	return t, nil
}

func first(values []string) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("empty price field")
	}
	return strconv.ParseFloat(values[0], 64)
}

// Candles implements domain.Exchange. Kraken serves OHLC rows as mixed
// arrays keyed by the primary pair name, plus a "last" cursor we ignore
// in favour of the stored candle warehouse.
func (c *Client) Candles(ctx context.Context, pair string, interval time.Duration, since time.Time) ([]domain.Candle, error) {
	form := url.Values{
		"pair":     {pair},
		"interval": {strconv.Itoa(int(interval.Minutes()))},
	}
	if !since.IsZero() {
		form.Set("since", strconv.FormatInt(since.Unix(), 10))
	}
	var result map[string]jsoniter.RawMessage
	if err := c.call(ctx, "/0/public/OHLC", form, false, &result); err != nil {
		return nil, err
	}
	raw, ok := result[c.primary(pair)]
	if !ok {
		for key, v := range result {
			if key != "last" {
				raw = v
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("kraken ohlc: no entry for %s", pair)
	}
	var rows [][]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("kraken ohlc %s: decode rows: %w", pair, err)
	}
	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseOHLCRow(row)
		if err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: %w", pair, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseOHLCRow decodes [time, open, high, low, close, vwap, volume, count].
func parseOHLCRow(row []jsoniter.RawMessage) (domain.Candle, error) {
	var c domain.Candle
	if len(row) < 5 {
		return c, fmt.Errorf("short row: %d fields", len(row))
	}
	var ts float64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return c, fmt.Errorf("timestamp: %w", err)
	}
	c.OpenTime = time.Unix(int64(ts), 0).UTC()
	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
	for i, dst := range fields {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return c, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return c, fmt.Errorf("field %d: %w", i+1, err)
		}
		*dst = v
	}
	return c, nil
}

// Balance implements domain.Exchange.
func (c *Client) Balance(ctx context.Context) (domain.Balance, error) {
	var result map[string]string
	if err := c.call(ctx, "/0/private/Balance", nil, true, &result); err != nil {
		return nil, err
	}
	balance := make(domain.Balance, len(result))
	for asset, amount := range result {
		v, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return nil, fmt.Errorf("kraken balance %s: %w", asset, err)
		}
		balance[asset] = v
	}
	return balance, nil
}

// AddOrder implements domain.Exchange. Orders are always limit orders;
// closures execute at the stop price, entries at the observed quote.
func (c *Client) AddOrder(ctx context.Context, pair string, side domain.Side, volume, price float64) (string, error) {
	form := url.Values{
		"pair":      {pair},
		"type":      {string(side)},
		"ordertype": {"limit"},
		"price":     {strconv.FormatFloat(price, 'f', -1, 64)},
		"volume":    {strconv.FormatFloat(volume, 'f', -1, 64)},
	}
	var result struct {
		TxID  []string `json:"txid"`
		Descr struct {
			Order string `json:"order"`
		} `json:"descr"`
	}
	cfg := retry.AggressiveConfig()
	cfg.RetryIf = orderRetryable
	if err := c.callRetry(ctx, "/0/private/AddOrder", form, true, &result, cfg); err != nil {
		return "", err
	}
	if len(result.TxID) == 0 {
		return "", fmt.Errorf("kraken add order %s: no txid in response", pair)
	}
	c.log.WithFields(logrus.Fields{
		"pair":  pair,
		"side":  side,
		"txid":  result.TxID[0],
		"descr": result.Descr.Order,
	}).Info("order placed")
	return result.TxID[0], nil
}

// QueryOrder implements domain.Exchange.
func (c *Client) QueryOrder(ctx context.Context, orderID string) (*domain.OrderStatus, error) {
	form := url.Values{"txid": {orderID}}
	var result map[string]struct {
		Status  string `json:"status"`
		Price   string `json:"price"`
		VolExec string `json:"vol_exec"`
		Descr   struct {
			Order string `json:"order"`
		} `json:"descr"`
	}
	if err := c.call(ctx, "/0/private/QueryOrders", form, true, &result); err != nil {
		return nil, err
	}
	entry, ok := result[orderID]
	if !ok {
		return nil, fmt.Errorf("kraken query order: %s not found", orderID)
	}
	status := &domain.OrderStatus{
		ID:          orderID,
		Status:      entry.Status,
		Description: entry.Descr.Order,
	}
	if entry.Price != "" {
		if v, err := strconv.ParseFloat(entry.Price, 64); err == nil {
			status.Price = v
		}
	}
	if entry.VolExec != "" {
		if v, err := strconv.ParseFloat(entry.VolExec, 64); err == nil {
			status.VolumeExec = v
		}
	}
	return status, nil
}
