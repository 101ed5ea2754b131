package configs

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"trailbot/internal/domain"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setGlobalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/trailbot")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPERATOR_PASSWORD_HASH", "$2a$10$hash")
	t.Setenv("KRAKEN_API_KEY", "key")
	t.Setenv("KRAKEN_API_SECRET", "secret")
	t.Setenv("PAIRS", "XBTUSD")
	t.Setenv("XBTUSD_BASE_ASSET", "XXBT")
	t.Setenv("XBTUSD_QUOTE_ASSET", "ZUSD")
	t.Setenv("XBTUSD_SELL_ACTIVATION_COEFFICIENT", "1.5")
	t.Setenv("XBTUSD_BUY_MIN_MARGIN", "0.01")
	t.Setenv("XBTUSD_TARGET_PCT", "0.5")
	t.Setenv("XBTUSD_HODL_PCT", "0.2")
	t.Setenv("XBTUSD_MIN_ORDER_VALUE", "10")
}

func TestLoad(t *testing.T) {
	setGlobalEnv(t)
	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(cfg.Pairs))
	}
	pc := cfg.Pairs[0]
	if pc.Pair != "XBTUSD" || pc.BaseAsset != "XXBT" || pc.QuoteAsset != "ZUSD" {
		t.Errorf("pair config = %+v", pc)
	}
	sell := pc.Rules[domain.SideSell]
	if sell.Kind != domain.ActivationByCoefficient || sell.Coefficient != 1.5 {
		t.Errorf("sell rule = %+v", sell)
	}
	buy := pc.Rules[domain.SideBuy]
	if buy.Kind != domain.ActivationByMargin || buy.MinMargin != 0.01 {
		t.Errorf("buy rule = %+v", buy)
	}
	if pc.ATRPeriod != 14 || pc.DeviationLimit != 0.2 {
		t.Errorf("defaults not applied: %+v", pc)
	}
	if pc.Allocation.TargetPct != 0.5 || pc.Allocation.HodlPct != 0.2 || pc.Allocation.MinValue != 10 {
		t.Errorf("allocation = %+v", pc.Allocation)
	}
}

func TestLoadCollectsGlobalErrors(t *testing.T) {
	setGlobalEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load(quietLogger())
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"DATABASE_URL", "JWT_SECRET"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestLoadDropsBrokenPair(t *testing.T) {
	setGlobalEnv(t)
	t.Setenv("PAIRS", "XBTUSD,ETHUSD")
	// ETHUSD lacks assets and activation rules: disabled, not fatal.
	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Pairs) != 1 || cfg.Pairs[0].Pair != "XBTUSD" {
		t.Fatalf("pairs = %+v, want only XBTUSD", cfg.Pairs)
	}
}

func TestLoadRejectsAmbiguousRule(t *testing.T) {
	setGlobalEnv(t)
	t.Setenv("XBTUSD_SELL_MIN_MARGIN", "0.02")
	// Both coefficient and margin set for the sell side: the pair drops
	// and no pair remains.
	if _, err := Load(quietLogger()); err == nil {
		t.Fatal("expected error when the only pair is ambiguous")
	}
}

func TestLoadImmediateActivationCoefficient(t *testing.T) {
	setGlobalEnv(t)
	t.Setenv("XBTUSD_SELL_ACTIVATION_COEFFICIENT", "0")
	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	sell := cfg.Pairs[0].Rules[domain.SideSell]
	if sell.Kind != domain.ActivationByCoefficient || sell.Coefficient != 0 {
		t.Errorf("sell rule = %+v, want zero coefficient", sell)
	}
}
