// Package funnel recommends promoting well-converting queries from loose to
// tighter match types.
package funnel

import (
	"math"
	"sort"
	"strconv"

	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/priority"
)

// Config holds the eligibility gates and priority cutoffs.
type Config struct {
	BroadToPhraseMinOrders int64
	PhraseToExactMinOrders int64
	PhraseToExactMinROAS   float64
	BidPremium             float64
	HighPriorityROAS       float64
	MediumPriorityROAS     float64
}

// DefaultConfig returns the observed gates.
func DefaultConfig() Config {
	return Config{
		BroadToPhraseMinOrders: 3,
		PhraseToExactMinOrders: 10,
		PhraseToExactMinROAS:   5,
		BidPremium:             0.10,
		HighPriorityROAS:       8,
		MediumPriorityROAS:     4,
	}
}

// Negation says whether and where the query must be negated in the source
// campaign once it is migrated.
type Negation struct {
	Required   bool               `json:"required"`
	Scope      perf.NegationScope `json:"scope,omitempty"`
	AdGroupIDs []int64            `json:"ad_group_ids,omitempty"`
}

// Suggestion recommends moving one query to a tighter match type.
type Suggestion struct {
	Query           string         `json:"query"`
	CampaignID      int64          `json:"campaign_id"`
	CampaignName    string         `json:"campaign_name,omitempty"`
	SourceMatchType perf.MatchType `json:"source_match_type"`
	TargetMatchType perf.MatchType `json:"target_match_type"`
	RecommendedBid  float64        `json:"recommended_bid"`
	CurrentCPC      float64        `json:"current_cpc"`
	BestCPC         float64        `json:"best_cpc"`
	Orders          int64          `json:"orders"`
	ROAS            float64        `json:"roas"`
	Totals          perf.Totals    `json:"totals"`
	Priority        priority.Level `json:"priority"`
	Negation        Negation       `json:"negation"`
}

// ID is stable for the same query, source campaign and match type.
func (s Suggestion) ID() string {
	return "migration:" + strconv.FormatInt(s.CampaignID, 10) + ":" + string(s.SourceMatchType) + ":" + s.Query
}

// tier is one promotion path.
type tier struct {
	from      perf.MatchType
	to        perf.MatchType
	minOrders func(Config) int64
	eligible  func(Config, perf.Totals) bool
}

var tiers = []tier{
	{
		from:      perf.MatchBroad,
		to:        perf.MatchPhrase,
		minOrders: func(c Config) int64 { return c.BroadToPhraseMinOrders },
		eligible: func(c Config, t perf.Totals) bool {
			return t.Orders >= c.BroadToPhraseMinOrders
		},
	},
	{
		from:      perf.MatchPhrase,
		to:        perf.MatchExact,
		minOrders: func(c Config) int64 { return c.PhraseToExactMinOrders },
		eligible: func(c Config, t perf.Totals) bool {
			return t.Orders >= c.PhraseToExactMinOrders && perf.ROAS(t.Sales, t.Spend) > c.PhraseToExactMinROAS
		},
	},
}

// Analyzer scans per-query performance for migration candidates.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// source is one query served by one campaign under one match type.
type source struct {
	query    string
	campaign int64
	name     string
	match    perf.MatchType
	totals   perf.Totals
	adGroups map[int64]struct{}
}

// Analyze returns migration suggestions ordered by priority, then orders
// descending, then ROAS descending, then query and campaign.
func (a *Analyzer) Analyze(rows []perf.Row) []Suggestion {
	type key struct {
		query    string
		campaign int64
		match    perf.MatchType
	}
	type qc struct {
		query    string
		campaign int64
	}

	sources := make(map[key]*source)
	var order []key
	byQuery := make(map[string][]*source)
	product := make(map[qc]bool)

	for _, r := range rows {
		q := perf.NormalizeQuery(r.Query)
		if q == "" {
			continue
		}
		if r.ProductTargeted() {
			product[qc{q, r.CampaignID}] = true
		}
		k := key{q, r.CampaignID, r.MatchType}
		src, ok := sources[k]
		if !ok {
			src = &source{query: q, campaign: r.CampaignID, match: r.MatchType, adGroups: make(map[int64]struct{})}
			sources[k] = src
			order = append(order, k)
			byQuery[q] = append(byQuery[q], src)
		}
		if src.name == "" {
			src.name = r.CampaignName
		}
		if r.AdGroupID != 0 {
			src.adGroups[r.AdGroupID] = struct{}{}
		}
		src.totals.Add(r)
	}

	var out []Suggestion
	for _, k := range order {
		src := sources[k]
		for _, tr := range tiers {
			if src.match != tr.from || !tr.eligible(a.cfg, src.totals) {
				continue
			}
			out = append(out, a.suggestion(src, tr, bestCPC(byQuery[src.query]), product[qc{src.query, src.campaign}]))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if x.Priority != y.Priority {
			return x.Priority < y.Priority
		}
		if x.Orders != y.Orders {
			return x.Orders > y.Orders
		}
		if x.ROAS != y.ROAS {
			return x.ROAS > y.ROAS
		}
		if x.Query != y.Query {
			return x.Query < y.Query
		}
		return x.CampaignID < y.CampaignID
	})
	return out
}

func (a *Analyzer) suggestion(src *source, tr tier, best float64, productTargeted bool) Suggestion {
	metrics := src.totals.Metrics()
	if best == 0 {
		best = metrics.CPC
	}

	adGroups := sortedIDs(src.adGroups)
	neg := Negation{Required: !src.match.MostRestrictive()}
	if neg.Required {
		neg.Scope = perf.ScopeFor(productTargeted, adGroups)
		if neg.Scope == perf.ScopeAdGroup {
			neg.AdGroupIDs = adGroups
		}
	}

	return Suggestion{
		Query:           src.query,
		CampaignID:      src.campaign,
		CampaignName:    src.name,
		SourceMatchType: src.match,
		TargetMatchType: tr.to,
		RecommendedBid:  round2(best * (1 + a.cfg.BidPremium)),
		CurrentCPC:      round2(metrics.CPC),
		BestCPC:         round2(best),
		Orders:          src.totals.Orders,
		ROAS:            metrics.ROAS,
		Totals:          src.totals,
		Priority:        a.priority(metrics.ROAS, src.totals.Orders, tr.minOrders(a.cfg)),
		Negation:        neg,
	}
}

// priority ranks by ROAS and by order volume relative to the tier's gate.
func (a *Analyzer) priority(roas float64, orders, gate int64) priority.Level {
	volume := orders >= 2*gate
	switch {
	case roas >= a.cfg.HighPriorityROAS && volume:
		return priority.High
	case roas >= a.cfg.MediumPriorityROAS || volume:
		return priority.Medium
	default:
		return priority.Low
	}
}

// bestCPC is the CPC of the query's best-performing source: highest ROAS,
// then most orders, then lowest campaign id.
func bestCPC(srcs []*source) float64 {
	var best *source
	var bestROAS float64
	for _, s := range srcs {
		if s.totals.Clicks == 0 {
			continue
		}
		roas := perf.ROAS(s.totals.Sales, s.totals.Spend)
		switch {
		case best == nil:
		case roas > bestROAS:
		case roas == bestROAS && s.totals.Orders > best.totals.Orders:
		case roas == bestROAS && s.totals.Orders == best.totals.Orders && s.campaign < best.campaign:
		default:
			continue
		}
		best, bestROAS = s, roas
	}
	if best == nil {
		return 0
	}
	return perf.CPC(best.totals.Spend, best.totals.Clicks)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
