package funnel

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/priority"
)

func phraseRow(query string, orders int64, roas float64) perf.Row {
	return perf.Row{
		Query: query, CampaignID: 10, AdGroupID: 100, MatchType: perf.MatchPhrase,
		TargetingType: perf.TargetingKeyword,
		Impressions:   5000, Clicks: 100, Spend: 100, Orders: orders, Sales: 100 * roas,
	}
}

func TestPhraseToExactGate(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	got := a.Analyze([]perf.Row{phraseRow("bluetooth headphones case", 12, 6.2)})
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(got))
	}
	s := got[0]
	if s.TargetMatchType != perf.MatchExact || s.SourceMatchType != perf.MatchPhrase {
		t.Errorf("migration %s -> %s", s.SourceMatchType, s.TargetMatchType)
	}
	if s.Orders != 12 {
		t.Errorf("orders = %d", s.Orders)
	}

	if got := a.Analyze([]perf.Row{phraseRow("bluetooth headphones case", 9, 6.2)}); len(got) != 0 {
		t.Errorf("9 orders must fail the order gate, got %+v", got)
	}
	if got := a.Analyze([]perf.Row{phraseRow("bluetooth headphones case", 12, 5.0)}); len(got) != 0 {
		t.Errorf("ROAS 5.0 must fail the strict ROAS gate, got %+v", got)
	}
}

func TestBroadToPhraseGate(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	row := perf.Row{Query: "kids headphones", CampaignID: 3, AdGroupID: 30, MatchType: perf.MatchBroad, Clicks: 40, Spend: 20, Orders: 3, Sales: 30}

	got := a.Analyze([]perf.Row{row})
	if len(got) != 1 || got[0].TargetMatchType != perf.MatchPhrase {
		t.Fatalf("expected broad->phrase, got %+v", got)
	}

	row.Orders = 2
	if got := a.Analyze([]perf.Row{row}); len(got) != 0 {
		t.Errorf("2 orders must fail the broad gate, got %+v", got)
	}
}

func TestOrdersSummedAcrossRows(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	rows := []perf.Row{
		{Query: "Kids Headphones", CampaignID: 3, AdGroupID: 30, MatchType: perf.MatchBroad, Clicks: 10, Spend: 5, Orders: 1, Sales: 10},
		{Query: "kids headphones", CampaignID: 3, AdGroupID: 31, MatchType: perf.MatchBroad, Clicks: 10, Spend: 5, Orders: 2, Sales: 20},
	}
	got := a.Analyze(rows)
	if len(got) != 1 {
		t.Fatalf("expected summed orders to pass the gate, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].Negation.AdGroupIDs, []int64{30, 31}) {
		t.Errorf("ad groups = %v", got[0].Negation.AdGroupIDs)
	}
}

func TestExactSourceNeverMigrates(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	row := phraseRow("bluetooth headphones case", 50, 10)
	row.MatchType = perf.MatchExact
	if got := a.Analyze([]perf.Row{row}); len(got) != 0 {
		t.Errorf("exact source must not migrate, got %+v", got)
	}
}

func TestNegationScope(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	t.Run("keyword targeting negates at ad group", func(t *testing.T) {
		got := a.Analyze([]perf.Row{phraseRow("earbuds", 12, 6)})
		neg := got[0].Negation
		if !neg.Required || neg.Scope != perf.ScopeAdGroup || !reflect.DeepEqual(neg.AdGroupIDs, []int64{100}) {
			t.Errorf("negation = %+v", neg)
		}
	})

	t.Run("product targeting in campaign forces campaign scope", func(t *testing.T) {
		pt := perf.Row{Query: "earbuds", CampaignID: 10, AdGroupID: 101, MatchType: perf.MatchExact,
			TargetingType: perf.TargetingProduct, Impressions: 10, Clicks: 1, Spend: 1}
		got := a.Analyze([]perf.Row{phraseRow("earbuds", 12, 6), pt})
		if len(got) != 1 {
			t.Fatalf("expected 1 suggestion, got %d", len(got))
		}
		neg := got[0].Negation
		if !neg.Required || neg.Scope != perf.ScopeCampaign || len(neg.AdGroupIDs) != 0 {
			t.Errorf("negation = %+v", neg)
		}
	})

	t.Run("product targeting elsewhere does not propagate", func(t *testing.T) {
		pt := perf.Row{Query: "earbuds", CampaignID: 99, AdGroupID: 990, MatchType: perf.MatchExact,
			TargetingType: perf.TargetingProduct, Clicks: 1, Spend: 1}
		got := a.Analyze([]perf.Row{phraseRow("earbuds", 12, 6), pt})
		if got[0].Negation.Scope != perf.ScopeAdGroup {
			t.Errorf("scope = %s, want ad_group", got[0].Negation.Scope)
		}
	})

	t.Run("unknown ad group falls back to campaign", func(t *testing.T) {
		row := phraseRow("earbuds", 12, 6)
		row.AdGroupID = 0
		got := a.Analyze([]perf.Row{row})
		if got[0].Negation.Scope != perf.ScopeCampaign {
			t.Errorf("scope = %s, want campaign", got[0].Negation.Scope)
		}
	})
}

func TestRecommendedBidUsesBestCPCAsFloor(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	rows := []perf.Row{
		// source: CPC 0.50, ROAS 3
		{Query: "earbuds", CampaignID: 1, AdGroupID: 1, MatchType: perf.MatchBroad, Clicks: 100, Spend: 50, Orders: 5, Sales: 150},
		// best performer: CPC 1.20, ROAS 6
		{Query: "earbuds", CampaignID: 2, AdGroupID: 2, MatchType: perf.MatchExact, Clicks: 10, Spend: 12, Orders: 3, Sales: 72},
	}
	got := a.Analyze(rows)
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(got))
	}
	s := got[0]
	if s.CurrentCPC != 0.5 {
		t.Errorf("current cpc = %v", s.CurrentCPC)
	}
	if s.BestCPC != 1.2 {
		t.Errorf("best cpc = %v", s.BestCPC)
	}
	if s.RecommendedBid < s.BestCPC {
		t.Errorf("recommended bid %v below floor %v", s.RecommendedBid, s.BestCPC)
	}
}

func TestPriorityTracksROASAndVolume(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	rows := []perf.Row{
		phraseRow("strong performer", 40, 12),
		phraseRow("middling performer", 11, 5.5),
	}
	rows[1].CampaignID = 11
	got := a.Analyze(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
	if got[0].Query != "strong performer" {
		t.Errorf("strong performer should sort first, got %s", got[0].Query)
	}
	if !(got[0].Priority < got[1].Priority) {
		t.Errorf("expected %v to outrank %v", got[0].Priority, got[1].Priority)
	}
	if got[0].Priority != priority.High {
		t.Errorf("strong performer priority = %v", got[0].Priority)
	}
}

func TestConfigOverridesGates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PhraseToExactMinOrders = 5
	cfg.PhraseToExactMinROAS = 2
	got := NewAnalyzer(cfg).Analyze([]perf.Row{phraseRow("earbuds", 6, 3)})
	if len(got) != 1 {
		t.Fatalf("expected lowered gates to admit the query, got %d", len(got))
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	rows := []perf.Row{
		phraseRow("alpha", 12, 6),
		phraseRow("beta", 12, 6),
		{Query: "gamma", CampaignID: 4, MatchType: perf.MatchBroad, Clicks: 5, Spend: 5, Orders: 4, Sales: 40},
	}
	first, _ := json.Marshal(a.Analyze(rows))
	for i := 0; i < 5; i++ {
		next, _ := json.Marshal(a.Analyze(rows))
		if string(next) != string(first) {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	if got := NewAnalyzer(DefaultConfig()).Analyze(nil); len(got) != 0 {
		t.Errorf("expected none, got %d", len(got))
	}
}
