package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"trailbot/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewClient(srv.URL, "", "", log)
}

func TestTicker(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/Ticker" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{
			"a":["50100.0","1","1.000"],
			"b":["50000.0","2","2.000"],
			"c":["50050.0","0.01"]}}}`))
	})
	tick, err := c.Ticker(context.Background(), "XBTUSD")
	if err != nil {
		t.Fatal(err)
	}
	if tick.Ask != 50100 || tick.Bid != 50000 || tick.Last != 50050 {
		t.Errorf("ticker = %+v", tick)
	}
}

func TestCandles(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":[],"result":{
			"XXBTZUSD":[
				[1616662740,"52591.9","52599.9","52591.8","52599.9","52599.1","0.11091626",5],
				[1616662800,"52600.0","52674.9","52599.9","52665.2","52643.3","2.49035996",30]
			],
			"last":1616662800}}`))
	})
	candles, err := c.Candles(context.Background(), "XBTUSD", time.Minute, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if !first.OpenTime.Equal(time.Unix(1616662740, 0)) {
		t.Errorf("open time = %v", first.OpenTime)
	}
	if first.Open != 52591.9 || first.High != 52599.9 || first.Low != 52591.8 || first.Close != 52599.9 {
		t.Errorf("candle = %+v", first)
	}
}

func TestAPIErrorNotRetried(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":null}`))
	})
	_, err := c.Ticker(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors must not retry)", calls)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", context.DeadlineExceeded, true},
		{"service unavailable", &apiError{messages: []string{"EService:Unavailable"}}, true},
		{"rate limit", &apiError{messages: []string{"EAPI:Rate limit exceeded"}}, true},
		{"bad query", &apiError{messages: []string{"EQuery:Unknown asset pair"}}, false},
		{"http 502", &apiError{status: 502}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testPrivateClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewClient(srv.URL, "key", "a2V5c2VjcmV0", log)
}

func TestAddOrderRetriesTransientRejection(t *testing.T) {
	calls := 0
	c := testPrivateClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"error":["EService:Unavailable"],"result":null}`))
			return
		}
		w.Write([]byte(`{"error":[],"result":{"txid":["OABC12-XYZ"],"descr":{"order":"sell 1.0 XBTUSD @ limit 50000"}}}`))
	})
	id, err := c.AddOrder(context.Background(), "XBTUSD", domain.SideSell, 1, 50000)
	if err != nil {
		t.Fatal(err)
	}
	if id != "OABC12-XYZ" {
		t.Errorf("txid = %s, want OABC12-XYZ", id)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestAddOrderNotRetriedOnAmbiguousFailure(t *testing.T) {
	calls := 0
	c := testPrivateClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := c.AddOrder(context.Background(), "XBTUSD", domain.SideSell, 1, 50000); err == nil {
		t.Fatal("expected error")
	}
	// A 5xx gives no confirmation the order was rejected; retrying could
	// place it twice.
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be reached without credentials")
	})
	if _, err := c.Balance(context.Background()); err == nil {
		t.Fatal("expected credentials error")
	}
}
