// Package perf holds the performance rows the engine reads and the derived
// metric formulas shared by every analyzer.
package perf

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// MatchType is the keyword match type a query was served under.
type MatchType string

const (
	MatchBroad  MatchType = "broad"
	MatchPhrase MatchType = "phrase"
	MatchExact  MatchType = "exact"
)

// Tightness orders match types from loosest (0) to most restrictive (2).
// Unknown match types sort as loosest.
func (m MatchType) Tightness() int {
	switch m {
	case MatchPhrase:
		return 1
	case MatchExact:
		return 2
	default:
		return 0
	}
}

// MostRestrictive reports whether no tighter match type exists.
func (m MatchType) MostRestrictive() bool {
	return m == MatchExact
}

// TargetingType is the ad-group targeting mode.
type TargetingType string

const (
	TargetingKeyword TargetingType = "keyword"
	TargetingProduct TargetingType = "product"
)

// Row is one aggregate of performance for a single search query within one
// campaign, ad group, match type and day. Rows are read-only snapshots.
type Row struct {
	Query         string        `json:"query"`
	CampaignID    int64         `json:"campaign_id"`
	CampaignName  string        `json:"campaign_name,omitempty"`
	CampaignType  string        `json:"campaign_type,omitempty"`
	AdGroupID     int64         `json:"ad_group_id,omitempty"` // 0 when unknown
	MatchType     MatchType     `json:"match_type"`
	TargetingType TargetingType `json:"targeting_type,omitempty"`
	Impressions   int64         `json:"impressions"`
	Clicks        int64         `json:"clicks"`
	Spend         float64       `json:"spend"`
	Orders        int64         `json:"orders"`
	Sales         float64       `json:"sales"`
	Date          time.Time     `json:"date"`
}

// ProductTargeted reports whether the row came from a product-targeting ad group.
func (r Row) ProductTargeted() bool {
	return r.TargetingType == TargetingProduct
}

// NormalizeQuery lower-cases and trims a query so grouping is case-insensitive.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Totals accumulates the countable signals of one or more rows.
type Totals struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Orders      int64   `json:"orders"`
	Sales       float64 `json:"sales"`
}

// Add folds a row into the totals.
func (t *Totals) Add(r Row) {
	t.Impressions += r.Impressions
	t.Clicks += r.Clicks
	t.Spend += r.Spend
	t.Orders += r.Orders
	t.Sales += r.Sales
}

// Merge folds other totals into t.
func (t *Totals) Merge(o Totals) {
	t.Impressions += o.Impressions
	t.Clicks += o.Clicks
	t.Spend += o.Spend
	t.Orders += o.Orders
	t.Sales += o.Sales
}

// Metrics computes the derived ratios for the totals.
func (t Totals) Metrics() Metrics {
	return Metrics{
		CTR:  CTR(t.Clicks, t.Impressions),
		CVR:  CVR(t.Orders, t.Clicks),
		ACoS: ACoS(t.Spend, t.Sales),
		ROAS: ROAS(t.Sales, t.Spend),
		CPC:  CPC(t.Spend, t.Clicks),
	}
}

// Metrics are the derived ratios. ACoS is +Inf when there is spend but no sales.
type Metrics struct {
	CTR  float64 `json:"ctr"`
	CVR  float64 `json:"cvr"`
	ACoS float64 `json:"acos"`
	ROAS float64 `json:"roas"`
	CPC  float64 `json:"cpc"`
}

// MarshalJSON encodes an infinite ACoS as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias struct {
		CTR  float64  `json:"ctr"`
		CVR  float64  `json:"cvr"`
		ACoS *float64 `json:"acos"`
		ROAS float64  `json:"roas"`
		CPC  float64  `json:"cpc"`
	}
	out := alias{CTR: m.CTR, CVR: m.CVR, ROAS: m.ROAS, CPC: m.CPC}
	if !math.IsInf(m.ACoS, 0) {
		acos := m.ACoS
		out.ACoS = &acos
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a null ACoS back to +Inf.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var in struct {
		CTR  float64  `json:"ctr"`
		CVR  float64  `json:"cvr"`
		ACoS *float64 `json:"acos"`
		ROAS float64  `json:"roas"`
		CPC  float64  `json:"cpc"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Metrics{CTR: in.CTR, CVR: in.CVR, ROAS: in.ROAS, CPC: in.CPC, ACoS: math.Inf(1)}
	if in.ACoS != nil {
		m.ACoS = *in.ACoS
	}
	return nil
}

// NoSales reports whether ACoS is the no-sales sentinel.
func (m Metrics) NoSales() bool {
	return math.IsInf(m.ACoS, 1)
}

// CTR is clicks/impressions*100, 0 when there were no impressions.
func CTR(clicks, impressions int64) float64 {
	if impressions == 0 {
		return 0
	}
	return float64(clicks) / float64(impressions) * 100
}

// CVR is orders/clicks*100, 0 when there were no clicks.
func CVR(orders, clicks int64) float64 {
	if clicks == 0 {
		return 0
	}
	return float64(orders) / float64(clicks) * 100
}

// ACoS is spend/sales*100. With zero sales it is +Inf when spend is positive
// and 0 when spend is zero too.
func ACoS(spend, sales float64) float64 {
	if sales == 0 {
		if spend > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return spend / sales * 100
}

// ROAS is sales/spend, 0 when there was no spend.
func ROAS(sales, spend float64) float64 {
	if spend == 0 {
		return 0
	}
	return sales / spend
}

// CPC is spend/clicks, 0 when there were no clicks.
func CPC(spend float64, clicks int64) float64 {
	if clicks == 0 {
		return 0
	}
	return spend / float64(clicks)
}

// NegationScope is the level at which a negative keyword is applied.
type NegationScope string

const (
	ScopeAdGroup  NegationScope = "ad_group"
	ScopeCampaign NegationScope = "campaign"
)

// ScopeFor picks the negation scope for a campaign's contribution to a query.
// Product-targeted traffic can only be negated at campaign level, and so can
// traffic whose ad groups are unknown. Otherwise ad-group scope is used.
func ScopeFor(productTargeted bool, adGroupIDs []int64) NegationScope {
	if productTargeted || len(adGroupIDs) == 0 {
		return ScopeCampaign
	}
	return ScopeAdGroup
}
