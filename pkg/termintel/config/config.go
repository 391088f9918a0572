// Package config loads analysis settings from YAML.
package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/termintel/pkg/termintel/funnel"
	"github.com/cognicore/termintel/pkg/termintel/ingest"
	"github.com/cognicore/termintel/pkg/termintel/internalerr"
	"github.com/cognicore/termintel/pkg/termintel/negative"
	"github.com/cognicore/termintel/pkg/termintel/ngram"
)

//go:embed default.yaml
var defaultYAML []byte

// DefaultYAML returns the annotated default configuration file.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Ngram bounds root expansion and the significance floor.
type Ngram struct {
	MinLength    int     `yaml:"min_length"`
	MaxLength    int     `yaml:"max_length"`
	MinFrequency int     `yaml:"min_frequency"`
	MinSpend     float64 `yaml:"min_spend"`
}

// Negative holds the negative classifier thresholds.
type Negative struct {
	RecoveryRatio          float64 `yaml:"recovery_ratio"`
	SampleLimit            int     `yaml:"sample_limit"`
	ZeroOrderSpendMultiple float64 `yaml:"zero_order_spend_multiple"`
	LowCVRPercent          float64 `yaml:"low_cvr_percent"`
	HighACoSPercent        float64 `yaml:"high_acos_percent"`
	ElevatedACoSPercent    float64 `yaml:"elevated_acos_percent"`
	LowOrderCount          int64   `yaml:"low_order_count"`
}

// Migration holds the funnel gates.
type Migration struct {
	BroadToPhraseMinOrders int64   `yaml:"broad_to_phrase_min_orders"`
	PhraseToExactMinOrders int64   `yaml:"phrase_to_exact_min_orders"`
	PhraseToExactMinROAS   float64 `yaml:"phrase_to_exact_min_roas"`
	BidPremium             float64 `yaml:"bid_premium"`
	HighPriorityROAS       float64 `yaml:"high_priority_roas"`
	MediumPriorityROAS     float64 `yaml:"medium_priority_roas"`
}

// Config is the full settings file.
type Config struct {
	LookbackDays        int       `yaml:"lookback_days"`
	CacheSize           int       `yaml:"cache_size"`
	Stopwords           []string  `yaml:"stopwords,omitempty"`
	CommonNegativeRoots []string  `yaml:"common_negative_roots,omitempty"`
	Ngram               Ngram     `yaml:"ngram"`
	Negative            Negative  `yaml:"negative"`
	Migration           Migration `yaml:"migration"`
}

// Default returns the built-in settings.
func Default() Config {
	neg := negative.DefaultConfig()
	mig := funnel.DefaultConfig()
	return Config{
		LookbackDays: 30,
		Ngram: Ngram{
			MinLength:    ngram.DefaultMinLength,
			MaxLength:    ngram.DefaultMaxLength,
			MinFrequency: 2,
			MinSpend:     neg.MinSpend,
		},
		Negative: Negative{
			RecoveryRatio:          neg.RecoveryRatio,
			SampleLimit:            neg.SampleLimit,
			ZeroOrderSpendMultiple: neg.ZeroOrderSpendMultiple,
			LowCVRPercent:          neg.LowCVRPercent,
			HighACoSPercent:        neg.HighACoSPercent,
			ElevatedACoSPercent:    neg.ElevatedACoSPercent,
			LowOrderCount:          neg.LowOrderCount,
		},
		Migration: Migration{
			BroadToPhraseMinOrders: mig.BroadToPhraseMinOrders,
			PhraseToExactMinOrders: mig.PhraseToExactMinOrders,
			PhraseToExactMinROAS:   mig.PhraseToExactMinROAS,
			BidPremium:             mig.BidPremium,
			HighPriorityROAS:       mig.HighPriorityROAS,
			MediumPriorityROAS:     mig.MediumPriorityROAS,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the analyzers cannot run with.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{internalerr.ErrInvalidConfig}, args...)...)
	}
	switch {
	case c.Ngram.MinLength < 1:
		return bad("ngram.min_length must be at least 1, got %d", c.Ngram.MinLength)
	case c.Ngram.MaxLength < c.Ngram.MinLength:
		return bad("ngram.max_length %d is below min_length %d", c.Ngram.MaxLength, c.Ngram.MinLength)
	case c.Ngram.MaxLength > ngram.DefaultMaxLength:
		return bad("ngram.max_length must be at most %d, got %d", ngram.DefaultMaxLength, c.Ngram.MaxLength)
	case c.Ngram.MinFrequency < 1:
		return bad("ngram.min_frequency must be at least 1, got %d", c.Ngram.MinFrequency)
	case c.Ngram.MinSpend < 0:
		return bad("ngram.min_spend must not be negative")
	case c.Negative.RecoveryRatio <= 0 || c.Negative.RecoveryRatio > 1:
		return bad("negative.recovery_ratio must be in (0,1], got %g", c.Negative.RecoveryRatio)
	case c.Negative.SampleLimit < 1:
		return bad("negative.sample_limit must be at least 1, got %d", c.Negative.SampleLimit)
	case c.Negative.ZeroOrderSpendMultiple <= 0:
		return bad("negative.zero_order_spend_multiple must be positive")
	case c.Negative.LowCVRPercent < 0 || c.Negative.HighACoSPercent <= 0 || c.Negative.ElevatedACoSPercent <= 0:
		return bad("negative percent thresholds must be positive")
	case c.Negative.LowOrderCount < 1:
		return bad("negative.low_order_count must be at least 1")
	case c.Migration.BroadToPhraseMinOrders < 1 || c.Migration.PhraseToExactMinOrders < 1:
		return bad("migration order gates must be at least 1")
	case c.Migration.PhraseToExactMinROAS < 0 || c.Migration.HighPriorityROAS < 0 || c.Migration.MediumPriorityROAS < 0:
		return bad("migration ROAS thresholds must not be negative")
	case c.Migration.BidPremium < 0:
		return bad("migration.bid_premium must not be negative")
	case c.LookbackDays < 1:
		return bad("lookback_days must be at least 1, got %d", c.LookbackDays)
	case c.CacheSize < 0:
		return bad("cache_size must not be negative")
	}
	return nil
}

// Fingerprint identifies the rule-relevant settings. Two configs with the same
// fingerprint produce identical analyses over identical inputs.
func (c Config) Fingerprint() string {
	rules := c
	rules.CacheSize = 0
	rules.Stopwords = c.stopwords()
	rules.CommonNegativeRoots = c.commonRoots()
	data, err := yaml.Marshal(rules)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", rules))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func (c Config) stopwords() []string {
	if c.Stopwords == nil {
		return ingest.DefaultStopwords
	}
	return c.Stopwords
}

func (c Config) commonRoots() []string {
	if c.CommonNegativeRoots == nil {
		return negative.DefaultCommonRoots
	}
	return c.CommonNegativeRoots
}

// Tokenizer builds the configured tokenizer.
func (c Config) Tokenizer() *ingest.Tokenizer {
	return ingest.NewTokenizer(c.stopwords())
}

// NgramOptions converts the ngram section.
func (c Config) NgramOptions() ngram.Options {
	return ngram.Options{
		MinLength:    c.Ngram.MinLength,
		MaxLength:    c.Ngram.MaxLength,
		MinFrequency: c.Ngram.MinFrequency,
		MinSpend:     c.Ngram.MinSpend,
	}
}

// NegativeConfig converts the negative section.
func (c Config) NegativeConfig() negative.Config {
	return negative.Config{
		CommonRoots:            c.commonRoots(),
		MinSpend:               c.Ngram.MinSpend,
		ZeroOrderSpendMultiple: c.Negative.ZeroOrderSpendMultiple,
		LowCVRPercent:          c.Negative.LowCVRPercent,
		HighACoSPercent:        c.Negative.HighACoSPercent,
		ElevatedACoSPercent:    c.Negative.ElevatedACoSPercent,
		LowOrderCount:          c.Negative.LowOrderCount,
		RecoveryRatio:          c.Negative.RecoveryRatio,
		SampleLimit:            c.Negative.SampleLimit,
	}
}

// FunnelConfig converts the migration section.
func (c Config) FunnelConfig() funnel.Config {
	return funnel.Config{
		BroadToPhraseMinOrders: c.Migration.BroadToPhraseMinOrders,
		PhraseToExactMinOrders: c.Migration.PhraseToExactMinOrders,
		PhraseToExactMinROAS:   c.Migration.PhraseToExactMinROAS,
		BidPremium:             c.Migration.BidPremium,
		HighPriorityROAS:       c.Migration.HighPriorityROAS,
		MediumPriorityROAS:     c.Migration.MediumPriorityROAS,
	}
}
