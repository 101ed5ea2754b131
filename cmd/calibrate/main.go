// Command calibrate recomputes the parameter snapshot for one or all
// configured pairs from the candle warehouse, pulling fresh history from
// the exchange first.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"trailbot/configs"
	"trailbot/internal/calibrator"
	"trailbot/internal/database"
	"trailbot/internal/domain"
	"trailbot/internal/exchange/kraken"
	"trailbot/internal/infra"
	"trailbot/internal/repository"
	"trailbot/internal/session"
)

func main() {
	var (
		pairFlag = flag.String("pair", "", "pair to calibrate (default: all configured)")
		history  = flag.Int("history", 0, "candles to calibrate over (default: CALIBRATION_HISTORY)")
	)
	flag.Parse()

	log := logrus.New()
	cfg, err := configs.Load(log)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *history <= 0 {
		*history = cfg.CalibrationHistory
	}

	ctx := context.Background()
	db, err := infra.NewDatabase(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	if err := database.RunMigrations(ctx, db, log); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	candleRepo := repository.NewCandleRepository(db)
	calibrationRepo := repository.NewCalibrationRepository(db)
	exchange := kraken.NewClient(cfg.Kraken.BaseURL, "", "", log)
	if err := exchange.LoadPairIndex(ctx); err != nil {
		log.WithError(err).Fatal("failed to load exchange pair index")
	}

	calCfg := calibrator.DefaultConfig()
	for _, pc := range cfg.Pairs {
		if *pairFlag != "" && pc.Pair != *pairFlag {
			continue
		}
		if err := run(ctx, pc, exchange, candleRepo, calibrationRepo, calCfg, *history); err != nil {
			log.WithError(err).WithField("pair", pc.Pair).Error("calibration failed")
		}
	}
}

func run(
	ctx context.Context,
	pc session.PairConfig,
	exchange domain.Exchange,
	candles domain.CandleRepository,
	calibrations domain.CalibrationRepository,
	calCfg calibrator.Config,
	history int,
) error {
	since, err := candles.LastOpenTime(ctx, pc.Pair)
	if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
		return err
	}
	fetched, err := exchange.Candles(ctx, pc.Pair, pc.Interval, since)
	if err != nil {
		return err
	}
	if err := candles.SaveBatch(ctx, pc.Pair, fetched); err != nil {
		return err
	}

	window, err := candles.Latest(ctx, pc.Pair, history)
	if err != nil {
		return err
	}
	cal, err := calibrator.Calibrate(pc.Pair, window, calCfg)
	if err != nil {
		return err
	}
	if err := calibrations.Save(ctx, cal); err != nil {
		return err
	}

	fmt.Printf("%s v%d (over %d candles)\n", cal.Pair, cal.Version, len(window))
	fmt.Printf("  thresholds: P20=%.4f P50=%.4f P80=%.4f P95=%.4f\n",
		cal.Thresholds.P20, cal.Thresholds.P50, cal.Thresholds.P80, cal.Thresholds.P95)
	for _, side := range []domain.Side{domain.SideSell, domain.SideBuy} {
		fmt.Printf("  %s:", side)
		for _, regime := range domain.Regimes {
			fmt.Printf(" %s=%.1f", regime, cal.Multipliers[side][regime])
		}
		fmt.Println()
	}
	return nil
}
