// Package conflict finds search queries served by more than one campaign and
// decides which campaign should keep the traffic.
package conflict

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/termintel/pkg/termintel/perf"
)

// roasEpsilon treats ROAS values closer than this as tied.
const roasEpsilon = 1e-9

// CampaignSummary is one campaign's contribution to a conflicting query.
type CampaignSummary struct {
	CampaignID      int64              `json:"campaign_id"`
	CampaignName    string             `json:"campaign_name,omitempty"`
	CampaignType    string             `json:"campaign_type,omitempty"`
	TargetingType   perf.TargetingType `json:"targeting_type"`
	MatchType       perf.MatchType     `json:"match_type"`
	Clicks          int64              `json:"clicks"`
	Conversions     int64              `json:"conversions"`
	Spend           float64            `json:"spend"`
	Sales           float64            `json:"sales"`
	ROAS            float64            `json:"roas"`
	CTR             float64            `json:"ctr"`
	CVR             float64            `json:"cvr"`
	ProductTargeted bool               `json:"product_targeted"`
	AdGroupIDs      []int64            `json:"ad_group_ids,omitempty"`
}

// Loser is a campaign that should stop serving the query.
type Loser struct {
	CampaignID int64              `json:"campaign_id"`
	Scope      perf.NegationScope `json:"scope"`
	AdGroupIDs []int64            `json:"ad_group_ids,omitempty"`
}

// Resolution names the winner and the negations needed in the losers.
type Resolution struct {
	WinnerID int64   `json:"winner_id"`
	Losers   []Loser `json:"losers"`
	Reason   string  `json:"reason"`
}

// Group is one query observed in two or more campaigns.
type Group struct {
	Query       string            `json:"query"`
	Campaigns   []CampaignSummary `json:"campaigns"`
	WastedSpend float64           `json:"wasted_spend"`
	Ambiguous   bool              `json:"ambiguous"`
	Resolution  Resolution        `json:"resolution"`
}

// ID is stable for the query text.
func (g Group) ID() string {
	return "conflict:" + g.Query
}

type builder struct {
	summary    CampaignSummary
	impr       int64
	matchSpend map[perf.MatchType]float64
	adGroups   map[int64]struct{}
}

// Detect groups rows by query text and resolves every query that more than
// one campaign served. Groups are ordered by wasted spend descending, then
// query text.
func Detect(rows []perf.Row) []Group {
	byQuery := make(map[string]map[int64]*builder)
	for _, r := range rows {
		q := perf.NormalizeQuery(r.Query)
		if q == "" {
			continue
		}
		camps, ok := byQuery[q]
		if !ok {
			camps = make(map[int64]*builder)
			byQuery[q] = camps
		}
		b, ok := camps[r.CampaignID]
		if !ok {
			b = &builder{
				summary:    CampaignSummary{CampaignID: r.CampaignID},
				matchSpend: make(map[perf.MatchType]float64),
				adGroups:   make(map[int64]struct{}),
			}
			camps[r.CampaignID] = b
		}
		b.add(r)
	}

	var groups []Group
	for q, camps := range byQuery {
		if len(camps) < 2 {
			continue
		}
		summaries := make([]CampaignSummary, 0, len(camps))
		for _, b := range camps {
			summaries = append(summaries, b.finish())
		}
		groups = append(groups, newGroup(q, summaries))
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].WastedSpend != groups[j].WastedSpend {
			return groups[i].WastedSpend > groups[j].WastedSpend
		}
		return groups[i].Query < groups[j].Query
	})
	return groups
}

func (b *builder) add(r perf.Row) {
	s := &b.summary
	if s.CampaignName == "" {
		s.CampaignName = r.CampaignName
	}
	if s.CampaignType == "" {
		s.CampaignType = r.CampaignType
	}
	if r.ProductTargeted() {
		s.ProductTargeted = true
	}
	if r.AdGroupID != 0 {
		b.adGroups[r.AdGroupID] = struct{}{}
	}
	b.matchSpend[r.MatchType] += r.Spend
	b.impr += r.Impressions
	s.Clicks += r.Clicks
	s.Conversions += r.Orders
	s.Spend += r.Spend
	s.Sales += r.Sales
}

func (b *builder) finish() CampaignSummary {
	s := b.summary
	s.ROAS = perf.ROAS(s.Sales, s.Spend)
	s.CTR = perf.CTR(s.Clicks, b.impr)
	s.CVR = perf.CVR(s.Conversions, s.Clicks)
	s.TargetingType = perf.TargetingKeyword
	if s.ProductTargeted {
		s.TargetingType = perf.TargetingProduct
	}
	s.MatchType = dominantMatch(b.matchSpend)

	s.AdGroupIDs = make([]int64, 0, len(b.adGroups))
	for id := range b.adGroups {
		s.AdGroupIDs = append(s.AdGroupIDs, id)
	}
	sort.Slice(s.AdGroupIDs, func(i, j int) bool { return s.AdGroupIDs[i] < s.AdGroupIDs[j] })
	return s
}

// dominantMatch is the match type carrying the most spend, preferring the
// tighter one on ties.
func dominantMatch(spend map[perf.MatchType]float64) perf.MatchType {
	var best perf.MatchType
	bestSpend := -1.0
	for m, v := range spend {
		if v > bestSpend || (v == bestSpend && m.Tightness() > best.Tightness()) ||
			(v == bestSpend && m.Tightness() == best.Tightness() && m < best) {
			best, bestSpend = m, v
		}
	}
	return best
}

func newGroup(query string, summaries []CampaignSummary) Group {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CampaignID < summaries[j].CampaignID
	})
	res, ambiguous := Resolve(summaries)

	var wasted float64
	for _, s := range summaries {
		if s.CampaignID != res.WinnerID {
			wasted += s.Spend
		}
	}

	return Group{
		Query:       query,
		Campaigns:   summaries,
		WastedSpend: math.Round(wasted*100) / 100,
		Ambiguous:   ambiguous,
		Resolution:  res,
	}
}

// better reports whether a beats b: higher ROAS, then more conversions, then
// lower campaign id.
func better(a, b CampaignSummary) bool {
	if d := a.ROAS - b.ROAS; math.Abs(d) > roasEpsilon {
		return d > 0
	}
	if a.Conversions != b.Conversions {
		return a.Conversions > b.Conversions
	}
	return a.CampaignID < b.CampaignID
}

// Resolve picks exactly one winner among the competing campaigns. The result
// does not depend on the order of summaries. ambiguous is true when the
// winner's ROAS ties the runner-up's.
func Resolve(summaries []CampaignSummary) (res Resolution, ambiguous bool) {
	if len(summaries) == 0 {
		return Resolution{}, false
	}
	ranked := append([]CampaignSummary(nil), summaries...)
	sort.Slice(ranked, func(i, j int) bool { return better(ranked[i], ranked[j]) })

	winner := ranked[0]
	res.WinnerID = winner.CampaignID

	losers := append([]CampaignSummary(nil), ranked[1:]...)
	sort.Slice(losers, func(i, j int) bool { return losers[i].CampaignID < losers[j].CampaignID })
	for _, l := range losers {
		loser := Loser{CampaignID: l.CampaignID, Scope: perf.ScopeFor(l.ProductTargeted, l.AdGroupIDs)}
		if loser.Scope == perf.ScopeAdGroup {
			loser.AdGroupIDs = append([]int64(nil), l.AdGroupIDs...)
		}
		res.Losers = append(res.Losers, loser)
	}

	if len(ranked) > 1 {
		runnerUp := ranked[1]
		ambiguous = math.Abs(winner.ROAS-runnerUp.ROAS) <= roasEpsilon
		res.Reason = reason(winner, runnerUp)
	} else {
		res.Reason = fmt.Sprintf("%s is the only campaign serving this query", label(winner))
	}
	return res, ambiguous
}

func reason(w, r CampaignSummary) string {
	var why []string
	roasTied := math.Abs(w.ROAS-r.ROAS) <= roasEpsilon
	if roasTied {
		why = append(why, fmt.Sprintf("equal ROAS (%.2f)", w.ROAS))
	} else {
		why = append(why, fmt.Sprintf("higher ROAS (%.2f vs %.2f)", w.ROAS, r.ROAS))
	}
	switch {
	case w.Conversions > r.Conversions:
		why = append(why, fmt.Sprintf("more conversions (%d vs %d)", w.Conversions, r.Conversions))
	case roasTied:
		why = append(why, fmt.Sprintf("equal conversions (%d), lowest campaign id", w.Conversions))
	}
	return fmt.Sprintf("%s wins over %s: %s", label(w), label(r), strings.Join(why, ", "))
}

func label(s CampaignSummary) string {
	id := strconv.FormatInt(s.CampaignID, 10)
	if s.CampaignName == "" {
		return "campaign " + id
	}
	return fmt.Sprintf("campaign %q (id %s)", s.CampaignName, id)
}
