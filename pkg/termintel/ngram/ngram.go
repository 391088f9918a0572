// Package ngram expands search queries into word-root spans and aggregates
// their performance across a query set.
package ngram

import (
	"sort"
	"strings"

	"github.com/cognicore/termintel/pkg/termintel/coreroots"
	"github.com/cognicore/termintel/pkg/termintel/ingest"
	"github.com/cognicore/termintel/pkg/termintel/perf"
)

// Span length bounds.
const (
	DefaultMinLength = 1
	DefaultMaxLength = 3
)

// Options bounds the spans and the significance floor.
type Options struct {
	MinLength    int
	MaxLength    int
	MinFrequency int
	MinSpend     float64
}

// Key identifies a root within one run.
type Key struct {
	Root string
	N    int
}

// Root is an aggregated word root.
type Root struct {
	Root      string       `json:"root"`
	N         int          `json:"n"`
	Frequency int          `json:"frequency"`
	Totals    perf.Totals  `json:"totals"`
	Metrics   perf.Metrics `json:"metrics"`
	Queries   []string     `json:"queries"`
	Campaigns []int64      `json:"campaigns"`
}

// Key returns the root's identity.
func (r *Root) Key() Key {
	return Key{Root: r.Root, N: r.N}
}

// Aggregator builds word roots from performance rows.
type Aggregator struct {
	tokenizer *ingest.Tokenizer
	opts      Options
}

// NewAggregator creates an aggregator. Zero span bounds fall back to 1..3.
func NewAggregator(tok *ingest.Tokenizer, opts Options) *Aggregator {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	return &Aggregator{tokenizer: tok, opts: opts}
}

// instance is one query within one campaign after its rows are summed.
type instance struct {
	query    string
	campaign int64
	totals   perf.Totals
}

type accum struct {
	frequency int
	totals    perf.Totals
	queries   map[string]struct{}
	campaigns map[int64]struct{}
}

// Aggregate expands every query into spans and accumulates their stats.
// Rows of the same query in the same campaign are summed first, so one query
// instance contributes at most one frequency increment per root. Spans that
// touch a core root are never materialized; roots under the frequency or
// spend floor are dropped.
func (a *Aggregator) Aggregate(rows []perf.Row, core coreroots.Set) map[Key]*Root {
	acc := make(map[Key]*accum)

	for _, inst := range collapse(rows) {
		tokens := a.tokenizer.Tokenize(inst.query)
		seen := make(map[Key]struct{})
		for _, key := range a.spans(tokens, core) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			st, ok := acc[key]
			if !ok {
				st = &accum{
					queries:   make(map[string]struct{}),
					campaigns: make(map[int64]struct{}),
				}
				acc[key] = st
			}
			st.frequency++
			st.totals.Merge(inst.totals)
			st.queries[inst.query] = struct{}{}
			st.campaigns[inst.campaign] = struct{}{}
		}
	}

	out := make(map[Key]*Root, len(acc))
	for key, st := range acc {
		if st.frequency < a.opts.MinFrequency || st.totals.Spend < a.opts.MinSpend {
			continue
		}
		out[key] = &Root{
			Root:      key.Root,
			N:         key.N,
			Frequency: st.frequency,
			Totals:    st.totals,
			Metrics:   st.totals.Metrics(),
			Queries:   sortedStrings(st.queries),
			Campaigns: sortedInts(st.campaigns),
		}
	}
	return out
}

// spans emits every contiguous window of MinLength..MaxLength tokens that
// contains no core root.
func (a *Aggregator) spans(tokens []string, core coreroots.Set) []Key {
	var keys []Key
	for n := a.opts.MinLength; n <= a.opts.MaxLength; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			window := tokens[i : i+n]
			if core.ContainsAny(window) {
				continue
			}
			keys = append(keys, Key{Root: strings.Join(window, " "), N: n})
		}
	}
	return keys
}

func collapse(rows []perf.Row) []instance {
	type qc struct {
		query    string
		campaign int64
	}
	index := make(map[qc]int)
	var out []instance
	for _, r := range rows {
		q := perf.NormalizeQuery(r.Query)
		if q == "" {
			continue
		}
		k := qc{query: q, campaign: r.CampaignID}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, instance{query: q, campaign: r.CampaignID})
		}
		out[i].totals.Add(r)
	}
	return out
}

// Sorted returns the roots ordered by n then root string.
func Sorted(roots map[Key]*Root) []*Root {
	out := make([]*Root, 0, len(roots))
	for _, r := range roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N < out[j].N
		}
		return out[i].Root < out[j].Root
	})
	return out
}

func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedInts(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
