package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trailbot/internal/calibrator"
	"trailbot/internal/domain"
	"trailbot/internal/engine"
	"trailbot/internal/indicator"
	"trailbot/internal/inventory"
	"trailbot/internal/metrics"
)

// PairConfig is the per-pair trading configuration resolved at startup.
type PairConfig struct {
	Pair           string
	BaseAsset      string
	QuoteAsset     string
	Interval       time.Duration
	ATRPeriod      int
	CandleWindow   int
	DeviationLimit float64
	// Rules holds the activation rule per side; a side may be absent
	// only if the analyzer can never propose it.
	Rules      map[domain.Side]domain.ActivationRule
	Allocation inventory.Allocation
}

// EventNotifier receives lifecycle notifications. Delivery failures are
// logged and never fail the cycle; state is persisted before any
// notification goes out.
type EventNotifier interface {
	PositionOpened(ctx context.Context, p *domain.Position) error
	TrailingActivated(ctx context.Context, p *domain.Position) error
	PositionClosed(ctx context.Context, cp *domain.ClosedPosition) error
	Recalibrated(ctx context.Context, p *domain.Position) error
	CycleError(ctx context.Context, pair string, cause error) error
}

// Driver runs the evaluation cycle for every configured pair. It is the
// only component that mutates positions; the scheduler guarantees cycles
// never overlap.
type Driver struct {
	exchange     domain.Exchange
	candles      domain.CandleRepository
	positions    domain.PositionRepository
	calibrations domain.CalibrationRepository
	notifier     EventNotifier
	runtime      *Runtime
	metrics      *metrics.Metrics
	log          *logrus.Entry

	// calMu guards calibration snapshots: the cycle job and the refresh
	// job run on separate cron goroutines.
	calMu sync.RWMutex
	pairs []*pairState
}

type pairState struct {
	cfg         PairConfig
	calibration *domain.Calibration
}

func (d *Driver) snapshot(ps *pairState) *domain.Calibration {
	d.calMu.RLock()
	defer d.calMu.RUnlock()
	return ps.calibration
}

// NewDriver wires the cycle dependencies.
func NewDriver(
	exchange domain.Exchange,
	candles domain.CandleRepository,
	positions domain.PositionRepository,
	calibrations domain.CalibrationRepository,
	notifier EventNotifier,
	runtime *Runtime,
	m *metrics.Metrics,
	log *logrus.Logger,
	cfgs []PairConfig,
) *Driver {
	d := &Driver{
		exchange:     exchange,
		candles:      candles,
		positions:    positions,
		calibrations: calibrations,
		notifier:     notifier,
		runtime:      runtime,
		metrics:      m,
		log:          log.WithField("component", "session"),
	}
	for _, cfg := range cfgs {
		d.pairs = append(d.pairs, &pairState{cfg: cfg})
	}
	return d
}

// Bootstrap calibrates pairs that have no snapshot yet, pulling candle
// history first. Run it before Init on a fresh deployment; pairs that
// still cannot calibrate are dropped by Init.
func (d *Driver) Bootstrap(ctx context.Context, calCfg calibrator.Config, historyDepth int) {
	for _, ps := range d.pairs {
		if _, err := d.calibrations.Latest(ctx, ps.cfg.Pair); err == nil {
			continue
		}
		log := d.log.WithField("pair", ps.cfg.Pair)
		log.Info("no calibration snapshot, bootstrapping")
		if err := d.syncCandles(ctx, ps.cfg); err != nil {
			log.WithError(err).Error("bootstrap: candle sync failed")
			continue
		}
		window, err := d.candles.Latest(ctx, ps.cfg.Pair, historyDepth)
		if err != nil {
			log.WithError(err).Error("bootstrap: load candles failed")
			continue
		}
		cal, err := calibrator.Calibrate(ps.cfg.Pair, window, calCfg)
		if err != nil {
			log.WithError(err).Warn("bootstrap: calibration failed")
			continue
		}
		if err := d.calibrations.Save(ctx, cal); err != nil {
			log.WithError(err).Error("bootstrap: save calibration failed")
			continue
		}
		log.WithField("version", cal.Version).Info("bootstrap calibration saved")
	}
}

// Init loads calibration snapshots and mirrors persisted positions into
// the runtime. A pair without a usable snapshot is dropped from the
// session; the error is fatal only when no pair survives.
func (d *Driver) Init(ctx context.Context) error {
	alive := d.pairs[:0]
	for _, ps := range d.pairs {
		cal, err := d.calibrations.Latest(ctx, ps.cfg.Pair)
		if err == nil {
			err = cal.Validate()
		}
		if err != nil {
			d.log.WithError(err).WithField("pair", ps.cfg.Pair).
				Error("pair disabled: no usable calibration")
			continue
		}
		ps.calibration = cal
		alive = append(alive, ps)
	}
	d.pairs = alive
	if len(d.pairs) == 0 {
		return fmt.Errorf("session init: no tradable pairs")
	}

	active, err := d.positions.ActiveAll(ctx)
	if err != nil {
		return fmt.Errorf("session init: load positions: %w", err)
	}
	for _, p := range active {
		d.runtime.PublishPosition(p.Pair, p)
	}
	d.metrics.ActivePositions.Set(float64(len(active)))
	d.log.WithFields(logrus.Fields{
		"pairs":     len(d.pairs),
		"positions": len(active),
	}).Info("session initialized")
	return nil
}

// Pairs returns the names of the tradable pairs after Init.
func (d *Driver) Pairs() []string {
	out := make([]string, len(d.pairs))
	for i, ps := range d.pairs {
		out[i] = ps.cfg.Pair
	}
	return out
}

// RunCycle evaluates every pair once. Pair failures are isolated: one
// broken pair never blocks the others.
func (d *Driver) RunCycle(ctx context.Context) {
	for _, ps := range d.pairs {
		log := d.log.WithField("pair", ps.cfg.Pair)
		if err := d.cyclePair(ctx, ps); err != nil {
			d.metrics.CycleErrorsTotal.WithLabelValues(ps.cfg.Pair).Inc()
			if errors.Is(err, domain.ErrInsufficientData) {
				log.WithError(err).Warn("cycle skipped")
				continue
			}
			log.WithError(err).Error("cycle failed")
			if nerr := d.notifier.CycleError(ctx, ps.cfg.Pair, err); nerr != nil {
				log.WithError(nerr).Warn("cycle error notification failed")
			}
			continue
		}
		d.metrics.CyclesTotal.WithLabelValues(ps.cfg.Pair).Inc()
	}
}

// cyclePair evaluates one pair. While paused the cycle is read-only: it
// refreshes the market snapshot from stored candles and touches neither
// the warehouse nor the position.
func (d *Driver) cyclePair(ctx context.Context, ps *pairState) error {
	cfg := ps.cfg
	paused := d.runtime.Paused()
	if !paused {
		if err := d.syncCandles(ctx, cfg); err != nil {
			return err
		}
	}
	window, err := d.candles.Latest(ctx, cfg.Pair, cfg.CandleWindow)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	atr, err := indicator.ATR(window, cfg.ATRPeriod)
	if err != nil {
		return err
	}
	ticker, err := d.exchange.Ticker(ctx, cfg.Pair)
	if err != nil {
		return fmt.Errorf("ticker: %w", err)
	}
	cal := d.snapshot(ps)
	regime := indicator.Classify(atr, cal.Thresholds)

	d.runtime.PublishStatus(PairStatus{
		Pair:      cfg.Pair,
		Price:     ticker.Last,
		ATR:       atr,
		Regime:    regime,
		UpdatedAt: time.Now(),
	})
	d.metrics.LastPrice.WithLabelValues(cfg.Pair).Set(ticker.Last)
	d.metrics.LastATR.WithLabelValues(cfg.Pair).Set(atr)

	if paused {
		return nil
	}

	in := engine.Input{Price: ticker.Last, ATR: atr, Regime: regime, Now: time.Now()}
	params := engine.Params{
		Multipliers:    cal.Multipliers,
		DeviationLimit: cfg.DeviationLimit,
	}

	pos, err := d.positions.Active(ctx, cfg.Pair)
	if errors.Is(err, domain.ErrNoActivePosition) {
		return d.maybeOpen(ctx, cfg, in, params)
	}
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	return d.stepPosition(ctx, cfg, pos, in, params)
}

// syncCandles appends fresh bars to the warehouse. An empty warehouse
// starts from the exchange's default history depth.
func (d *Driver) syncCandles(ctx context.Context, cfg PairConfig) error {
	since, err := d.candles.LastOpenTime(ctx, cfg.Pair)
	if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
		return fmt.Errorf("candle cursor: %w", err)
	}
	fetched, err := d.exchange.Candles(ctx, cfg.Pair, cfg.Interval, since)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(fetched) == 0 {
		return nil
	}
	if err := d.candles.SaveBatch(ctx, cfg.Pair, fetched); err != nil {
		return fmt.Errorf("store candles: %w", err)
	}
	return nil
}

// maybeOpen sizes and creates a new position unless the portfolio is
// balanced.
func (d *Driver) maybeOpen(ctx context.Context, cfg PairConfig, in engine.Input, params engine.Params) error {
	balance, err := d.exchange.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	opp, err := inventory.Analyze(balance[cfg.BaseAsset], balance[cfg.QuoteAsset], in.Price, cfg.Allocation)
	if errors.Is(err, domain.ErrNoOpportunity) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("analyze inventory: %w", err)
	}
	rule, ok := cfg.Rules[opp.Side]
	if !ok {
		return fmt.Errorf("no activation rule for %s/%s", cfg.Pair, opp.Side)
	}
	params.Rule = rule
	pos, err := engine.Create(cfg.Pair, opp.Side, opp.Volume, in, params)
	if err != nil {
		return err
	}
	if err := d.positions.Save(ctx, pos); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	d.runtime.PublishPosition(cfg.Pair, pos)
	d.metrics.ActivePositions.Inc()
	d.metrics.TransitionsTotal.WithLabelValues(cfg.Pair, "opened").Inc()
	d.log.WithFields(logrus.Fields{
		"pair":       cfg.Pair,
		"side":       pos.Side,
		"volume":     pos.Volume,
		"entry":      pos.EntryPrice,
		"activation": pos.ActivationPrice,
	}).Info("position opened")
	if err := d.notifier.PositionOpened(ctx, pos); err != nil {
		d.log.WithError(err).Warn("open notification failed")
	}
	return nil
}

// stepPosition applies one lifecycle transition and persists it before
// any notification leaves the process.
func (d *Driver) stepPosition(ctx context.Context, cfg PairConfig, pos *domain.Position, in engine.Input, params engine.Params) error {
	params.Rule = cfg.Rules[pos.Side]
	ev, err := engine.Step(pos, in, params)
	if err != nil {
		return err
	}
	log := d.log.WithFields(logrus.Fields{"pair": cfg.Pair, "event": ev.String()})

	switch ev {
	case engine.EventNone:
		return nil
	case engine.EventClose:
		return d.closePosition(ctx, cfg, pos, in)
	default:
	}

	if err := d.positions.Save(ctx, pos); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	d.runtime.PublishPosition(cfg.Pair, pos)
	d.metrics.TransitionsTotal.WithLabelValues(cfg.Pair, ev.String()).Inc()
	log.WithFields(logrus.Fields{
		"trailing": fmtPtr(pos.TrailingPrice),
		"stop":     fmtPtr(pos.StopPrice),
	}).Info("position updated")

	switch ev {
	case engine.EventActivated:
		if err := d.notifier.TrailingActivated(ctx, pos); err != nil {
			log.WithError(err).Warn("activation notification failed")
		}
	case engine.EventRecalibrated:
		if err := d.notifier.Recalibrated(ctx, pos); err != nil {
			log.WithError(err).Warn("recalibration notification failed")
		}
	}
	return nil
}

// closePosition places the closing limit order at the stop price. When
// the order fails the position stays untouched and the next cycle
// retries the closure.
func (d *Driver) closePosition(ctx context.Context, cfg PairConfig, pos *domain.Position, in engine.Input) error {
	orderID, err := d.exchange.AddOrder(ctx, cfg.Pair, pos.Side, pos.Volume, *pos.StopPrice)
	if err != nil {
		return fmt.Errorf("closing order: %w", err)
	}
	cp, err := engine.Close(pos, orderID, in.Now)
	if err != nil {
		return err
	}
	if err := d.positions.Close(ctx, cp); err != nil {
		return fmt.Errorf("persist closure: %w", err)
	}
	d.runtime.PublishPosition(cfg.Pair, nil)
	d.metrics.ActivePositions.Dec()
	d.metrics.TransitionsTotal.WithLabelValues(cfg.Pair, "closed").Inc()
	d.metrics.ClosedPnLPercent.Observe(cp.PnL)
	d.log.WithFields(logrus.Fields{
		"pair":  cfg.Pair,
		"side":  cp.Side,
		"close": cp.ClosingPrice,
		"pnl":   cp.PnL,
		"order": orderID,
	}).Info("position closed")

	// Best-effort order audit; the exchange may still be matching it.
	if status, err := d.exchange.QueryOrder(ctx, orderID); err != nil {
		d.log.WithError(err).WithField("order", orderID).Warn("order audit failed")
	} else {
		d.log.WithFields(logrus.Fields{
			"order":    orderID,
			"status":   status.Status,
			"executed": status.VolumeExec,
		}).Info("closing order status")
	}

	if err := d.notifier.PositionClosed(ctx, cp); err != nil {
		d.log.WithError(err).Warn("close notification failed")
	}
	return nil
}

// RefreshCalibrations recomputes every pair's parameter snapshot from the
// candle warehouse and swaps it in atomically. Failures keep the previous
// snapshot.
func (d *Driver) RefreshCalibrations(ctx context.Context, cfg calibrator.Config, historyDepth int) {
	for _, ps := range d.pairs {
		log := d.log.WithField("pair", ps.cfg.Pair)
		window, err := d.candles.Latest(ctx, ps.cfg.Pair, historyDepth)
		if err != nil {
			log.WithError(err).Error("calibration refresh: load candles")
			continue
		}
		cal, err := calibrator.Calibrate(ps.cfg.Pair, window, cfg)
		if err != nil {
			log.WithError(err).Warn("calibration refresh skipped")
			continue
		}
		if err := d.calibrations.Save(ctx, cal); err != nil {
			log.WithError(err).Error("calibration refresh: save")
			continue
		}
		d.calMu.Lock()
		ps.calibration = cal
		d.calMu.Unlock()
		log.WithField("version", cal.Version).Info("calibration refreshed")
	}
}

func fmtPtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
