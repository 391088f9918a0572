// Package negative decides which aggregated word roots are worth negating.
//
// Classification is a fixed, ordered rule table evaluated top to bottom; the
// first matching rule wins, so outcomes are mutually exclusive.
package negative

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cognicore/termintel/pkg/termintel/ngram"
	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/priority"
)

// DefaultCommonRoots are low-intent roots that are negated on sight.
var DefaultCommonRoots = []string{
	"free", "diy", "homemade", "used", "broken", "repair", "fix",
	"manual", "instructions", "download", "pdf", "tutorial",
	"jobs", "job", "career", "salary", "wholesale", "rental",
	"craigslist", "reddit", "youtube", "meme",
}

// Reason codes.
const (
	ReasonCommonRoot      = "common_low_value_root"
	ReasonZeroOrders      = "high_spend_zero_orders"
	ReasonLowCVRHighACoS  = "low_cvr_high_acos"
	ReasonHighACoSLowSale = "high_acos_low_orders"
)

// Config holds the rule thresholds.
type Config struct {
	CommonRoots            []string
	MinSpend               float64
	ZeroOrderSpendMultiple float64
	LowCVRPercent          float64
	HighACoSPercent        float64
	ElevatedACoSPercent    float64
	LowOrderCount          int64
	RecoveryRatio          float64
	SampleLimit            int
}

// DefaultConfig returns the observed thresholds.
func DefaultConfig() Config {
	return Config{
		CommonRoots:            DefaultCommonRoots,
		MinSpend:               10,
		ZeroOrderSpendMultiple: 2,
		LowCVRPercent:          1,
		HighACoSPercent:        100,
		ElevatedACoSPercent:    50,
		LowOrderCount:          3,
		RecoveryRatio:          0.8,
		SampleLimit:            10,
	}
}

// Reason explains a classification.
type Reason struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Rule is one row of the classification table.
type Rule struct {
	Code     string
	Priority priority.Level
	Match    func(c *Classifier, r *ngram.Root) bool
	Explain  func(c *Classifier, r *ngram.Root) string
}

// DefaultRules is the ordered rule table.
var DefaultRules = []Rule{
	{
		Code:     ReasonCommonRoot,
		Priority: priority.High,
		Match: func(c *Classifier, r *ngram.Root) bool {
			_, ok := c.common[r.Root]
			return ok
		},
		Explain: func(c *Classifier, r *ngram.Root) string {
			return fmt.Sprintf("common low-value root %q", r.Root)
		},
	},
	{
		Code:     ReasonZeroOrders,
		Priority: priority.High,
		Match: func(c *Classifier, r *ngram.Root) bool {
			return r.Totals.Orders == 0 && r.Totals.Spend >= c.cfg.ZeroOrderSpendMultiple*c.cfg.MinSpend
		},
		Explain: func(c *Classifier, r *ngram.Root) string {
			return fmt.Sprintf("high spend zero orders: $%.2f spent, %d orders across %d queries",
				r.Totals.Spend, r.Totals.Orders, r.Frequency)
		},
	},
	{
		Code:     ReasonLowCVRHighACoS,
		Priority: priority.Medium,
		Match: func(c *Classifier, r *ngram.Root) bool {
			return r.Metrics.CVR < c.cfg.LowCVRPercent && r.Metrics.ACoS > c.cfg.HighACoSPercent
		},
		Explain: func(c *Classifier, r *ngram.Root) string {
			return fmt.Sprintf("low conversion rate %.2f%% with ACoS %s", r.Metrics.CVR, FormatACoS(r.Metrics.ACoS))
		},
	},
	{
		Code:     ReasonHighACoSLowSale,
		Priority: priority.Low,
		Match: func(c *Classifier, r *ngram.Root) bool {
			return r.Metrics.ACoS > c.cfg.ElevatedACoSPercent && r.Totals.Orders < c.cfg.LowOrderCount
		},
		Explain: func(c *Classifier, r *ngram.Root) string {
			return fmt.Sprintf("ACoS %s with only %d orders", FormatACoS(r.Metrics.ACoS), r.Totals.Orders)
		},
	},
}

// FormatACoS renders an ACoS percentage, naming the no-sales sentinel.
func FormatACoS(acos float64) string {
	if math.IsInf(acos, 1) {
		return "n/a (no sales)"
	}
	return fmt.Sprintf("%.1f%%", acos)
}

// Suggestion is a root judged worth negating.
type Suggestion struct {
	Root             string         `json:"root"`
	N                int            `json:"n"`
	MatchType        perf.MatchType `json:"match_type"`
	Reason           Reason         `json:"reason"`
	Priority         priority.Level `json:"priority"`
	Frequency        int            `json:"frequency"`
	Totals           perf.Totals    `json:"totals"`
	Metrics          perf.Metrics   `json:"metrics"`
	SampleQueries    []string       `json:"sample_queries"`
	EstimatedSavings float64        `json:"estimated_savings"`
	Targets          []int64        `json:"target_campaigns"`
}

// Clone returns a copy that shares no slices with s.
func (s Suggestion) Clone() Suggestion {
	s.SampleQueries = append([]string(nil), s.SampleQueries...)
	s.Targets = append([]int64(nil), s.Targets...)
	return s
}

// ID is a stable identifier derived from the negative's text and match type.
func (s Suggestion) ID() string {
	return "negative:" + string(s.MatchType) + ":" + s.Root
}

// Classifier applies the rule table to roots.
type Classifier struct {
	cfg    Config
	rules  []Rule
	common map[string]struct{}
}

// NewClassifier creates a classifier over DefaultRules.
func NewClassifier(cfg Config) *Classifier {
	return NewClassifierWithRules(cfg, DefaultRules)
}

// NewClassifierWithRules creates a classifier over a custom ordered table.
func NewClassifierWithRules(cfg Config, rules []Rule) *Classifier {
	common := make(map[string]struct{}, len(cfg.CommonRoots))
	for _, r := range cfg.CommonRoots {
		common[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return &Classifier{cfg: cfg, rules: rules, common: common}
}

// Classify returns the first matching rule's outcome.
func (c *Classifier) Classify(r *ngram.Root) (bool, Reason, priority.Level) {
	for _, rule := range c.rules {
		if rule.Match(c, r) {
			return true, Reason{Code: rule.Code, Detail: rule.Explain(c, r)}, rule.Priority
		}
	}
	return false, Reason{}, 0
}

// Suggest classifies every root and returns candidates ordered by priority,
// then spend descending, then root text.
func (c *Classifier) Suggest(roots []*ngram.Root) []Suggestion {
	var out []Suggestion
	for _, r := range roots {
		ok, reason, prio := c.Classify(r)
		if !ok {
			continue
		}
		out = append(out, c.suggestion(r, reason, prio))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Totals.Spend != b.Totals.Spend {
			return a.Totals.Spend > b.Totals.Spend
		}
		if a.Root != b.Root {
			return a.Root < b.Root
		}
		return a.N < b.N
	})
	return out
}

// MatchTypeFor returns the negative match type for an n-token root: phrase
// for multi-word roots, exact for single words.
func MatchTypeFor(n int) perf.MatchType {
	if n > 1 {
		return perf.MatchPhrase
	}
	return perf.MatchExact
}

func (c *Classifier) suggestion(r *ngram.Root, reason Reason, prio priority.Level) Suggestion {
	match := MatchTypeFor(r.N)

	sample := r.Queries
	if c.cfg.SampleLimit > 0 && len(sample) > c.cfg.SampleLimit {
		sample = sample[:c.cfg.SampleLimit]
	}

	return Suggestion{
		Root:             r.Root,
		N:                r.N,
		MatchType:        match,
		Reason:           reason,
		Priority:         prio,
		Frequency:        r.Frequency,
		Totals:           r.Totals,
		Metrics:          r.Metrics,
		SampleQueries:    append([]string(nil), sample...),
		EstimatedSavings: math.Round(r.Totals.Spend*c.cfg.RecoveryRatio*100) / 100,
		Targets:          append([]int64(nil), r.Campaigns...),
	}
}
