package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"trailbot/internal/domain"
	"trailbot/internal/session"
)

// Controller is the slice of the session runtime the command channel may
// touch: the pause flag and read-only state snapshots. Command handling
// never mutates positions.
type Controller interface {
	SetPaused(paused bool)
	Paused() bool
	Status() []session.PairStatus
	Positions() []*domain.Position
}

// Poller long-polls getUpdates and serves operator commands. Only the
// configured chat is allowed; updates from anyone else are dropped.
type Poller struct {
	svc         *NotificationService
	ctrl        Controller
	allowedChat int64
	log         *logrus.Entry
	offset      int64
}

// NewPoller wires the command channel to the runtime.
func NewPoller(svc *NotificationService, ctrl Controller, allowedChat int64, log *logrus.Logger) *Poller {
	return &Poller{
		svc:         svc,
		ctrl:        ctrl,
		allowedChat: allowedChat,
		log:         log.WithField("component", "telegram"),
	}
}

type chat struct {
	ID int64 `json:"id"`
}

type message struct {
	Chat chat   `json:"chat"`
	Text string `json:"text"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run polls until the context is cancelled. Poll failures back off and
// retry; the trading session never depends on this loop.
func (p *Poller) Run(ctx context.Context) {
	if !p.svc.enabled {
		p.log.Info("telegram not configured, command channel disabled")
		return
	}
	p.log.Info("command poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("command poller stopped")
			return
		default:
		}
		updates, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.WithError(err).Warn("poll updates failed")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}
		for _, u := range updates {
			p.offset = u.UpdateID + 1
			p.handle(ctx, u)
		}
	}
}

func (p *Poller) poll(ctx context.Context) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=30&offset=%d",
		p.svc.apiBase, p.svc.botToken, p.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 40 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed getUpdatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates not ok: %s", string(body))
	}
	return parsed.Result, nil
}

func (p *Poller) handle(ctx context.Context, u update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	if u.Message.Chat.ID != p.allowedChat {
		p.log.WithField("chat_id", u.Message.Chat.ID).Warn("command from unauthorized chat dropped")
		return
	}
	reply := p.execute(strings.TrimSpace(u.Message.Text))
	if err := p.svc.send(ctx, u.Message.Chat.ID, reply); err != nil {
		p.log.WithError(err).Warn("command reply failed")
	}
}

// execute runs one command and returns the reply text.
func (p *Poller) execute(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "Try /help"
	}
	cmd := strings.ToLower(fields[0])
	// Commands in groups arrive as /cmd@botname.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/pause":
		p.ctrl.SetPaused(true)
		return "⏸ Trading paused. Cycles are read-only until /resume: no orders, no position changes."
	case "/resume":
		p.ctrl.SetPaused(false)
		return "▶️ Trading resumed."
	case "/status":
		return p.statusReply()
	case "/market":
		return p.marketReply()
	case "/positions":
		return p.positionsReply()
	case "/help":
		return "Commands:\n" +
			"/pause - suspend trading, cycles go read-only\n" +
			"/resume - resume trading\n" +
			"/status - bot state\n" +
			"/market - per-pair price, ATR and regime\n" +
			"/positions - active positions\n" +
			"/help - this message"
	default:
		return fmt.Sprintf("Unknown command %q, try /help", cmd)
	}
}

func (p *Poller) statusReply() string {
	state := "▶️ running"
	if p.ctrl.Paused() {
		state = "⏸ paused"
	}
	return fmt.Sprintf("Bot is %s\nTracked pairs: %d\nActive positions: %d",
		state, len(p.ctrl.Status()), len(p.ctrl.Positions()))
}

func (p *Poller) marketReply() string {
	statuses := p.ctrl.Status()
	if len(statuses) == 0 {
		return "No market data yet."
	}
	var b strings.Builder
	for _, st := range statuses {
		fmt.Fprintf(&b, "%s: price %.4f, ATR %.4f, regime %s (as of %s)\n",
			st.Pair, st.Price, st.ATR, st.Regime,
			st.UpdatedAt.UTC().Format("15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Poller) positionsReply() string {
	positions := p.ctrl.Positions()
	if len(positions) == 0 {
		return "No active positions."
	}
	var b strings.Builder
	for _, pos := range positions {
		fmt.Fprintf(&b, "%s %s %s: entry %.4f", pos.Pair, pos.Side, pos.State(), pos.EntryPrice)
		if pos.IsTrailing() {
			fmt.Fprintf(&b, ", trailing %.4f, stop %.4f", deref(pos.TrailingPrice), deref(pos.StopPrice))
		} else {
			fmt.Fprintf(&b, ", activation %.4f", pos.ActivationPrice)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
