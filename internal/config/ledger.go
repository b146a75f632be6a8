package config

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// LedgerConfig carries the business rules of the referral and discount programs.
type LedgerConfig struct {
	Referral ReferralConfig `mapstructure:"referral"`
	Discount DiscountConfig `mapstructure:"discount"`

	loc *time.Location
}

type ReferralConfig struct {
	MaxLevel          int             `mapstructure:"maxLevel"`
	Levels            []LevelPercent  `mapstructure:"levels"`
	MaturityDays      int             `mapstructure:"maturityDays"`
	MinimumWithdrawal decimal.Decimal `mapstructure:"minimumWithdrawal"`
}

// LevelPercent is the commission fraction paid to the ancestor at Level.
type LevelPercent struct {
	Level   int             `mapstructure:"level"`
	Percent decimal.Decimal `mapstructure:"percent"`
}

type DiscountConfig struct {
	Timezone string     `mapstructure:"timezone"`
	Tiers    []TierRule `mapstructure:"tiers"`
}

// TierRule is the monthly spend threshold and the discount percent of one tier.
type TierRule struct {
	Level     string          `mapstructure:"level"`
	Threshold decimal.Decimal `mapstructure:"threshold"`
	Percent   decimal.Decimal `mapstructure:"percent"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Referral: ReferralConfig{
			MaxLevel: 5,
			Levels: []LevelPercent{
				{Level: 1, Percent: decimal.RequireFromString("0.08")},
				{Level: 2, Percent: decimal.RequireFromString("0.05")},
				{Level: 3, Percent: decimal.RequireFromString("0.04")},
				{Level: 4, Percent: decimal.RequireFromString("0.02")},
				{Level: 5, Percent: decimal.RequireFromString("0.01")},
			},
			MaturityDays:      30,
			MinimumWithdrawal: decimal.NewFromInt(1000),
		},
		Discount: DiscountConfig{
			Timezone: "Europe/Moscow",
			Tiers: []TierRule{
				{Level: "BRONZE", Threshold: decimal.NewFromInt(10000), Percent: decimal.NewFromInt(5)},
				{Level: "SILVER", Threshold: decimal.NewFromInt(30000), Percent: decimal.NewFromInt(7)},
				{Level: "GOLD", Threshold: decimal.NewFromInt(50000), Percent: decimal.NewFromInt(10)},
			},
		},
	}
}

// LevelRate returns the commission fraction for level; unknown levels pay nothing.
func (c LedgerConfig) LevelRate(level int) decimal.Decimal {
	for _, lp := range c.Referral.Levels {
		if lp.Level == level {
			return lp.Percent
		}
	}
	return decimal.Zero
}

func (c LedgerConfig) MinimumWithdrawal() decimal.Decimal {
	return c.Referral.MinimumWithdrawal.Round(2)
}

// Location is the calendar used for month boundaries.
func (c LedgerConfig) Location() *time.Location {
	if c.loc != nil {
		return c.loc
	}
	loc, err := time.LoadLocation(c.Discount.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

func NewLedgerConfigHolder() (*LedgerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/storefront-ledger/config")
	v.AddConfigPath("/etc/storefront-ledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("referral.maxLevel", defaults.Referral.MaxLevel)
	v.SetDefault("referral.levels", defaults.Referral.Levels)
	v.SetDefault("referral.maturityDays", defaults.Referral.MaturityDays)
	v.SetDefault("referral.minimumWithdrawal", defaults.Referral.MinimumWithdrawal)
	v.SetDefault("discount.timezone", defaults.Discount.Timezone)
	v.SetDefault("discount.tiers", defaults.Discount.Tiers)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeLedgerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLedgerConfig(v)
		if err != nil {
			log.Printf("[ledger-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[ledger-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticLedgerConfigHolder wraps a fixed config; it panics on an invalid one.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	if err := prepareLedgerConfig(&cfg); err != nil {
		panic(err)
	}
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

func decodeLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	var cfg LedgerConfig
	hooks := mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return LedgerConfig{}, err
	}
	if err := prepareLedgerConfig(&cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes money and rate fields from their literal text, so
// 0.07 in ledger.yml becomes exactly 0.07 and never a binary float.
func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		return decimal.NewFromString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return data, nil
	}
}

func prepareLedgerConfig(cfg *LedgerConfig) error {
	if err := validateLedgerConfig(*cfg); err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.Discount.Timezone)
	if err != nil {
		return fmt.Errorf("discount.timezone: %w", err)
	}
	cfg.loc = loc
	return nil
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.Referral.MaxLevel <= 0 {
		return errors.New("referral.maxLevel must be positive")
	}
	seen := make(map[int]struct{}, len(cfg.Referral.Levels))
	for _, lp := range cfg.Referral.Levels {
		if lp.Level <= 0 || lp.Level > cfg.Referral.MaxLevel {
			return fmt.Errorf("referral.levels: level %d out of range", lp.Level)
		}
		if lp.Percent.IsNegative() || lp.Percent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("referral.levels: percent for level %d must be in [0, 1)", lp.Level)
		}
		if _, dup := seen[lp.Level]; dup {
			return fmt.Errorf("referral.levels: duplicate level %d", lp.Level)
		}
		seen[lp.Level] = struct{}{}
	}
	if cfg.Referral.MaturityDays < 0 {
		return errors.New("referral.maturityDays cannot be negative")
	}
	if cfg.Referral.MinimumWithdrawal.IsNegative() {
		return errors.New("referral.minimumWithdrawal cannot be negative")
	}

	expected := []string{"BRONZE", "SILVER", "GOLD"}
	if len(cfg.Discount.Tiers) != len(expected) {
		return errors.New("discount.tiers must define BRONZE, SILVER and GOLD")
	}
	for i, tier := range cfg.Discount.Tiers {
		if !strings.EqualFold(tier.Level, expected[i]) {
			return fmt.Errorf("discount.tiers[%d]: expected %s, got %s", i, expected[i], tier.Level)
		}
		if tier.Percent.IsNegative() || tier.Percent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return fmt.Errorf("discount.tiers[%d]: percent must be in [0, 100)", i)
		}
		if !tier.Threshold.IsPositive() {
			return fmt.Errorf("discount.tiers[%d]: threshold must be positive", i)
		}
		if i > 0 {
			prev := cfg.Discount.Tiers[i-1]
			if tier.Threshold.LessThanOrEqual(prev.Threshold) {
				return fmt.Errorf("discount.tiers[%d]: thresholds must increase", i)
			}
			if tier.Percent.LessThan(prev.Percent) {
				return fmt.Errorf("discount.tiers[%d]: percents must not decrease", i)
			}
		}
	}
	if strings.TrimSpace(cfg.Discount.Timezone) == "" {
		return errors.New("discount.timezone cannot be empty")
	}
	return nil
}
