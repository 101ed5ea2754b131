// Package telegram delivers event notifications and serves the operator
// command channel over the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"trailbot/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NotificationService pushes formatted messages to a single chat. An
// unconfigured token or chat ID disables it silently so the trading loop
// never depends on Telegram being set up.
type NotificationService struct {
	apiBase    string
	botToken   string
	chatID     int64
	enabled    bool
	httpClient *http.Client
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewNotificationService builds the notifier. apiBase is overridable for
// tests; empty means the public Bot API.
func NewNotificationService(apiBase, botToken string, chatID int64) *NotificationService {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &NotificationService{
		apiBase:  apiBase,
		botToken: botToken,
		chatID:   chatID,
		enabled:  botToken != "" && chatID != 0,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PositionOpened reports a freshly created position.
func (s *NotificationService) PositionOpened(ctx context.Context, p *domain.Position) error {
	msg := fmt.Sprintf(
		"🆕 *POSITION OPENED*\n\n"+
			"📊 Pair: `%s`\n"+
			"↔️ Side: `%s`\n"+
			"📦 Volume: `%.8f`\n"+
			"🔵 Entry: `%.4f`\n"+
			"🎯 Activation: `%.4f`",
		p.Pair, p.Side, p.Volume, p.EntryPrice, p.ActivationPrice,
	)
	return s.sendMessage(ctx, msg)
}

// TrailingActivated reports the pending to trailing transition.
func (s *NotificationService) TrailingActivated(ctx context.Context, p *domain.Position) error {
	msg := fmt.Sprintf(
		"🚀 *TRAILING ACTIVATED*\n\n"+
			"📊 Pair: `%s`\n"+
			"↔️ Side: `%s`\n"+
			"📈 Trailing: `%.4f`\n"+
			"🛑 Stop: `%.4f`",
		p.Pair, p.Side, deref(p.TrailingPrice), deref(p.StopPrice),
	)
	return s.sendMessage(ctx, msg)
}

// PositionClosed reports a completed closure with its result.
func (s *NotificationService) PositionClosed(ctx context.Context, cp *domain.ClosedPosition) error {
	resultEmoji := "✅"
	if cp.PnL < 0 {
		resultEmoji = "❌"
	}
	msg := fmt.Sprintf(
		"%s *POSITION CLOSED*\n\n"+
			"📊 Pair: `%s`\n"+
			"↔️ Side: `%s`\n"+
			"🔵 Entry: `%.4f`\n"+
			"🏁 Close: `%.4f`\n"+
			"💰 PnL: `%.2f%%`\n"+
			"🧾 Order: `%s`",
		resultEmoji, cp.Pair, cp.Side, cp.EntryPrice, cp.ClosingPrice, cp.PnL, cp.ClosingOrder,
	)
	return s.sendMessage(ctx, msg)
}

// Recalibrated reports a stale-reference refresh.
func (s *NotificationService) Recalibrated(ctx context.Context, p *domain.Position) error {
	msg := fmt.Sprintf(
		"🔧 *PARAMETERS RECALIBRATED*\n\n"+
			"📊 Pair: `%s`\n"+
			"↔️ Side: `%s`\n"+
			"🎯 Activation: `%.4f`\n"+
			"🛑 Stop: `%.4f`",
		p.Pair, p.Side, p.ActivationPrice, deref(p.StopPrice),
	)
	return s.sendMessage(ctx, msg)
}

// CycleError alerts the operator that a pair's evaluation cycle failed,
// including a rejected closing order.
func (s *NotificationService) CycleError(ctx context.Context, pair string, cause error) error {
	msg := fmt.Sprintf(
		"⚠️ *CYCLE ERROR*\n\n"+
			"📊 Pair: `%s`\n"+
			"❗ Error: `%s`",
		pair, cause,
	)
	return s.sendMessage(ctx, msg)
}

// Startup announces that a session began and which pairs it trades.
func (s *NotificationService) Startup(ctx context.Context, pairs []string) error {
	msg := fmt.Sprintf("🤖 *SESSION STARTED*\n\n📊 Pairs: `%v`\n🕒 Time: `%s`",
		pairs, time.Now().UTC().Format("2006-01-02 15:04:05"))
	return s.sendMessage(ctx, msg)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (s *NotificationService) sendMessage(ctx context.Context, text string) error {
	if !s.enabled {
		return nil
	}
	return s.send(ctx, s.chatID, text)
}

// send delivers a message to an arbitrary chat; the command poller uses
// it to reply to the operator.
func (s *NotificationService) send(ctx context.Context, chatID int64, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	payload := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
