// Package configs loads the environment-driven configuration. Global
// settings are fatal when missing; a broken pair section disables only
// that pair.
package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"trailbot/internal/domain"
	"trailbot/internal/indicator"
	"trailbot/internal/session"
)

// KrakenConfig holds the exchange credentials.
type KrakenConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// TelegramConfig holds the bot credentials. An empty token disables the
// channel.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Config is the full process configuration.
type Config struct {
	DatabaseURL string
	LogLevel    string

	APIPort string
	OpsPort string

	CycleSchedule       string
	CalibrationSchedule string
	CalibrationHistory  int

	JWTSecret            string
	OperatorUsername     string
	OperatorPasswordHash string

	Kraken   KrakenConfig
	Telegram TelegramConfig

	Pairs []session.PairConfig
}

// Load reads .env (when present) and the environment. All global errors
// are collected before returning so a misconfigured deployment reports
// everything at once.
func Load(log *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}

	var errs []error
	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:          require("DATABASE_URL"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		APIPort:              getEnv("API_PORT", "8080"),
		OpsPort:              getEnv("OPS_PORT", "9090"),
		CycleSchedule:        getEnv("CYCLE_SCHEDULE", "* * * * *"),
		CalibrationSchedule:  getEnv("CALIBRATION_SCHEDULE", "0 */6 * * *"),
		JWTSecret:            require("JWT_SECRET"),
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "operator"),
		OperatorPasswordHash: require("OPERATOR_PASSWORD_HASH"),
		Kraken: KrakenConfig{
			BaseURL:   os.Getenv("KRAKEN_BASE_URL"),
			APIKey:    require("KRAKEN_API_KEY"),
			APISecret: require("KRAKEN_API_SECRET"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
	}
	var err error
	if cfg.CalibrationHistory, err = getEnvInt("CALIBRATION_HISTORY", 2000); err != nil {
		errs = append(errs, err)
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		if cfg.Telegram.ChatID, err = strconv.ParseInt(chat, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		}
	}

	pairsEnv := require("PAIRS")
	for _, pair := range strings.Split(pairsEnv, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		pc, err := loadPair(pair)
		if err != nil {
			log.WithError(err).WithField("pair", pair).Error("pair disabled: bad configuration")
			continue
		}
		cfg.Pairs = append(cfg.Pairs, pc)
	}
	if len(errs) == 0 && len(cfg.Pairs) == 0 {
		errs = append(errs, fmt.Errorf("no usable pair configuration"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// loadPair reads the <PAIR>_* section. Any error disables the pair.
func loadPair(pair string) (session.PairConfig, error) {
	pc := session.PairConfig{
		Pair:  pair,
		Rules: map[domain.Side]domain.ActivationRule{},
	}
	var errs []error

	pc.BaseAsset = os.Getenv(pair + "_BASE_ASSET")
	if pc.BaseAsset == "" {
		errs = append(errs, fmt.Errorf("%s_BASE_ASSET is required", pair))
	}
	pc.QuoteAsset = os.Getenv(pair + "_QUOTE_ASSET")
	if pc.QuoteAsset == "" {
		errs = append(errs, fmt.Errorf("%s_QUOTE_ASSET is required", pair))
	}

	interval, err := getEnvInt(pair+"_INTERVAL_MINUTES", 60)
	if err != nil {
		errs = append(errs, err)
	}
	pc.Interval = time.Duration(interval) * time.Minute

	if pc.ATRPeriod, err = getEnvInt(pair+"_ATR_PERIOD", indicator.DefaultPeriod); err != nil {
		errs = append(errs, err)
	}
	if pc.CandleWindow, err = getEnvInt(pair+"_CANDLE_WINDOW", 100); err != nil {
		errs = append(errs, err)
	}
	if pc.DeviationLimit, err = getEnvFloat(pair+"_DEVIATION_LIMIT", 0.2); err != nil {
		errs = append(errs, err)
	}

	for _, side := range []domain.Side{domain.SideSell, domain.SideBuy} {
		rule, err := loadRule(pair, side)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pc.Rules[side] = rule
	}

	if pc.Allocation.TargetPct, err = getEnvFloat(pair+"_TARGET_PCT", 0); err != nil {
		errs = append(errs, err)
	}
	if pc.Allocation.HodlPct, err = getEnvFloat(pair+"_HODL_PCT", 0); err != nil {
		errs = append(errs, err)
	}
	if pc.Allocation.MinValue, err = getEnvFloat(pair+"_MIN_ORDER_VALUE", 0); err != nil {
		errs = append(errs, err)
	}
	if err := pc.Allocation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%s allocation: %w", pair, err))
	}

	return pc, errors.Join(errs...)
}

// loadRule resolves the activation variant for one pair side. Exactly one
// of the coefficient and margin keys must be set; the coefficient may be
// zero for immediate activation.
func loadRule(pair string, side domain.Side) (domain.ActivationRule, error) {
	sideKey := strings.ToUpper(string(side))
	coefKey := fmt.Sprintf("%s_%s_ACTIVATION_COEFFICIENT", pair, sideKey)
	marginKey := fmt.Sprintf("%s_%s_MIN_MARGIN", pair, sideKey)

	coefRaw, coefSet := os.LookupEnv(coefKey)
	marginRaw, marginSet := os.LookupEnv(marginKey)
	switch {
	case coefSet && marginSet:
		return domain.ActivationRule{}, fmt.Errorf("%s and %s are mutually exclusive", coefKey, marginKey)
	case coefSet:
		coef, err := strconv.ParseFloat(coefRaw, 64)
		if err != nil {
			return domain.ActivationRule{}, fmt.Errorf("%s: %w", coefKey, err)
		}
		return domain.ActivationRule{Kind: domain.ActivationByCoefficient, Coefficient: coef}, nil
	case marginSet:
		margin, err := strconv.ParseFloat(marginRaw, 64)
		if err != nil {
			return domain.ActivationRule{}, fmt.Errorf("%s: %w", marginKey, err)
		}
		return domain.ActivationRule{Kind: domain.ActivationByMargin, MinMargin: margin}, nil
	default:
		return domain.ActivationRule{}, fmt.Errorf("one of %s or %s is required", coefKey, marginKey)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
