// Command optimize grid-searches activation coefficients and staleness
// limits over stored candles and ranks the combinations by total PnL.
package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"trailbot/configs"
	"trailbot/internal/backtest"
	"trailbot/internal/domain"
	"trailbot/internal/infra"
	"trailbot/internal/repository"
)

type combo struct {
	coefficient float64
	deviation   float64
	trades      int
	wins        int
	totalPnL    float64
}

func main() {
	var (
		pair         = flag.String("pair", "", "pair to optimize (required)")
		side         = flag.String("side", "sell", "position side: sell or buy")
		limit        = flag.Int("candles", 2000, "number of recent candles to replay")
		atrPeriod    = flag.Int("atr-period", 14, "ATR lookback")
		coefficients = flag.String("coefficients", "0,0.5,1,1.5,2,2.5", "comma-separated activation coefficients")
		deviations   = flag.String("deviations", "0.1,0.2,0.3", "comma-separated ATR staleness limits")
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

	var results []combo
	for _, coef := range parseFloats(log, *coefficients) {
		for _, dev := range parseFloats(log, *deviations) {
			result, err := backtest.Run(*pair, candles, backtest.Config{
				Side:           domain.Side(*side),
				Volume:         1,
				ATRPeriod:      *atrPeriod,
				DeviationLimit: dev,
				Rule:           domain.ActivationRule{Kind: domain.ActivationByCoefficient, Coefficient: coef},
				Calibration:    calibration,
			})
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"coefficient": coef,
					"deviation":   dev,
				}).Error("combination failed")
				continue
			}
			results = append(results, combo{
				coefficient: coef,
				deviation:   dev,
				trades:      len(result.Trades),
				wins:        result.Wins,
				totalPnL:    result.TotalPnL,
			})
		}
	}
	if len(results) == 0 {
		log.Fatal("no combination produced a result")
	}
	sort.Slice(results, func(i, j int) bool { return results[i].totalPnL > results[j].totalPnL })

	fmt.Printf("%s %s over %d candles (calibration v%d)\n\n", *pair, *side, len(candles), calibration.Version)
	fmt.Printf("%-12s %-10s %-8s %-6s %s\n", "coefficient", "deviation", "trades", "wins", "total pnl")
	for _, r := range results {
		fmt.Printf("%-12.2f %-10.2f %-8d %-6d %+.2f%%\n",
			r.coefficient, r.deviation, r.trades, r.wins, r.totalPnL)
	}
}

func parseFloats(log *logrus.Logger, list string) []float64 {
	var out []float64
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.WithError(err).Fatalf("bad value %q", raw)
		}
		out = append(out, v)
	}
	return out
}
