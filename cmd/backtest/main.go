// Command backtest replays the lifecycle engine over stored candles using
// the latest calibration snapshot and prints the aggregate result.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"trailbot/configs"
	"trailbot/internal/backtest"
	"trailbot/internal/domain"
	"trailbot/internal/infra"
	"trailbot/internal/repository"
)

func main() {
	var (
		pair        = flag.String("pair", "", "pair to simulate (required)")
		side        = flag.String("side", "sell", "position side: sell or buy")
		volume      = flag.Float64("volume", 1, "position volume")
		limit       = flag.Int("candles", 2000, "number of recent candles to replay")
		coefficient = flag.Float64("coefficient", 0, "activation coefficient (exclusive with -margin)")
		margin      = flag.Float64("margin", -1, "margin-based activation minimum margin (fraction of entry)")
		deviation   = flag.Float64("deviation", 0.2, "ATR staleness limit")
		fee         = flag.Float64("fee", 0.26, "fee per operation, percent of traded value")
		atrPeriod   = flag.Int("atr-period", 14, "ATR lookback")
		verbose     = flag.Bool("verbose", false, "print every trade")
	)
	flag.Parse()

	log := logrus.New()
	if *pair == "" {
		log.Fatal("-pair is required")
	}
	cfg, err := configs.Load(log)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx := context.Background()
	db, err := infra.NewDatabase(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	candles, err := repository.NewCandleRepository(db).Latest(ctx, *pair, *limit)
	if err != nil {
		log.WithError(err).Fatal("failed to load candles")
	}
	calibration, err := repository.NewCalibrationRepository(db).Latest(ctx, *pair)
	if err != nil {
		log.WithError(err).Fatal("failed to load calibration, run the calibrate command first")
	}

	rule := domain.ActivationRule{Kind: domain.ActivationByCoefficient, Coefficient: *coefficient}
	if *margin >= 0 {
		rule = domain.ActivationRule{Kind: domain.ActivationByMargin, MinMargin: *margin}
	}
	result, err := backtest.Run(*pair, candles, backtest.Config{
		Side:           domain.Side(*side),
		Volume:         *volume,
		ATRPeriod:      *atrPeriod,
		DeviationLimit: *deviation,
		FeePct:         *fee,
		Rule:           rule,
		Calibration:    calibration,
	})
	if err != nil {
		log.WithError(err).Fatal("backtest failed")
	}

	if *verbose {
		for _, trade := range result.Trades {
			fmt.Printf("%s  entry %.4f  close %.4f  pnl %+.2f%%\n",
				trade.ClosedAt.Format("2006-01-02 15:04"), trade.EntryPrice, trade.ClosingPrice, trade.PnL)
		}
	}
	fmt.Printf("%s %s over %d candles (calibration v%d)\n", *pair, *side, len(candles), calibration.Version)
	fmt.Printf("  trades: %d  wins: %d  losses: %d\n", len(result.Trades), result.Wins, result.Losses)
	fmt.Printf("  total pnl: %+.2f%%  avg: %+.2f%%\n", result.TotalPnL, result.AvgPnL)
}
