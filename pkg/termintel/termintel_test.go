package termintel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cognicore/termintel/pkg/termintel/config"
	"github.com/cognicore/termintel/pkg/termintel/internalerr"
	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/review"
	"github.com/cognicore/termintel/pkg/termintel/store"
	"github.com/cognicore/termintel/pkg/termintel/store/memstore"
)

var testDay = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	for _, kw := range []store.Keyword{
		{AccountID: "acct", CampaignID: 1, Text: "wireless earbuds", MatchType: perf.MatchBroad},
		{AccountID: "acct", CampaignID: 2, Text: "wireless earbuds", MatchType: perf.MatchPhrase},
	} {
		if err := st.AddKeyword(ctx, kw); err != nil {
			t.Fatal(err)
		}
	}
	rows := []perf.Row{
		{Query: "cheap wireless earbuds", CampaignID: 1, CampaignName: "Auto", AdGroupID: 11, MatchType: perf.MatchBroad,
			Impressions: 800, Clicks: 20, Spend: 20, Date: testDay},
		{Query: "cheap wireless earbuds", CampaignID: 3, CampaignName: "Broad", AdGroupID: 31, MatchType: perf.MatchBroad,
			Impressions: 800, Clicks: 20, Spend: 20, Date: testDay},
		{Query: "wireless earbuds", CampaignID: 2, CampaignName: "Phrase", AdGroupID: 21, MatchType: perf.MatchPhrase,
			Impressions: 4000, Clicks: 100, Spend: 50, Orders: 12, Sales: 300, Date: testDay},
	}
	if err := st.InsertRows(ctx, "acct", rows); err != nil {
		t.Fatal(err)
	}
	return st
}

func newTestEngine(t *testing.T, st *memstore.Store, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(Options{
		Rows:        st,
		Keywords:    st,
		Negatives:   st,
		Writer:      st,
		DecisionLog: st,
		Config:      cfg,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return testDay },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing row source")
	}
	cfg := config.Default()
	cfg.Ngram.MaxLength = 5
	if _, err := New(Options{Rows: memstore.New(), Config: &cfg}); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("New = %v, want ErrInvalidConfig", err)
	}
}

func TestAnalyzeReport(t *testing.T) {
	st := seedStore(t)
	e := newTestEngine(t, st, nil)

	rep, err := e.Analyze(context.Background(), e.Scope("acct"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Rows != 3 || rep.Ruleset != e.Ruleset() {
		t.Errorf("report header = %+v", rep)
	}

	if len(rep.Negatives) != 1 {
		t.Fatalf("negatives = %+v", rep.Negatives)
	}
	neg := rep.Negatives[0]
	if neg.Root != "cheap" || neg.Frequency != 2 || neg.MatchType != perf.MatchExact {
		t.Errorf("negative = %+v", neg)
	}
	if len(neg.Targets) != 2 || neg.Targets[0] != 1 || neg.Targets[1] != 3 {
		t.Errorf("targets = %v", neg.Targets)
	}

	if len(rep.Migrations) != 1 {
		t.Fatalf("migrations = %+v", rep.Migrations)
	}
	mig := rep.Migrations[0]
	if mig.Query != "wireless earbuds" || mig.TargetMatchType != perf.MatchExact || !mig.Negation.Required {
		t.Errorf("migration = %+v", mig)
	}

	if len(rep.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v", rep.Conflicts)
	}
	g := rep.Conflicts[0]
	if g.Resolution.WinnerID != 1 || !g.Ambiguous {
		t.Errorf("conflict = %+v", g)
	}

	if rep.Savings != 32 || rep.WastedSpend != 20 {
		t.Errorf("savings=%v wasted=%v", rep.Savings, rep.WastedSpend)
	}
}

func TestAcceptedNegativesAreNotSuggestedAgain(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	e := newTestEngine(t, st, nil)
	scope := e.Scope("acct")

	negs, err := e.Negatives(ctx, scope)
	if err != nil || len(negs) != 1 {
		t.Fatalf("Negatives = %v, %v", negs, err)
	}
	res, err := e.Review(ctx, "acct", []review.Decision{review.NegativeDecision(review.Accept, negs[0])})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if res.AddedCount != 2 {
		t.Fatalf("added = %d, want 2", res.AddedCount)
	}

	again, err := e.Negatives(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range again {
		if s.Root == "cheap" {
			t.Error("accepted root suggested again")
		}
	}
}

func TestConflictNegativeKeepsSharedRoot(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	for _, id := range []int64{1, 2} {
		for _, text := range []string{"earbuds", "speaker", "charger"} {
			if err := st.AddKeyword(ctx, store.Keyword{AccountID: "acct", CampaignID: id, Text: text, MatchType: perf.MatchBroad}); err != nil {
				t.Fatal(err)
			}
		}
	}
	rows := []perf.Row{
		{Query: "cheap earbuds", CampaignID: 1, AdGroupID: 11, MatchType: perf.MatchBroad, Clicks: 10, Spend: 10, Date: testDay},
		{Query: "cheap earbuds", CampaignID: 2, AdGroupID: 21, MatchType: perf.MatchBroad, Clicks: 10, Spend: 10, Date: testDay},
		{Query: "cheap speaker", CampaignID: 1, AdGroupID: 11, MatchType: perf.MatchBroad, Clicks: 30, Spend: 30, Date: testDay},
		{Query: "cheap charger", CampaignID: 1, AdGroupID: 11, MatchType: perf.MatchBroad, Clicks: 30, Spend: 30, Date: testDay},
	}
	if err := st.InsertRows(ctx, "acct", rows); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, st, nil)
	scope := e.Scope("acct")

	groups, err := e.Conflicts(ctx, scope)
	if err != nil || len(groups) != 1 || groups[0].Query != "cheap earbuds" {
		t.Fatalf("Conflicts = %+v, %v", groups, err)
	}
	res, err := e.Review(ctx, "acct", []review.Decision{review.ConflictDecision(review.Accept, groups[0])})
	if err != nil || res.AddedCount != 1 {
		t.Fatalf("Review = %+v, %v", res, err)
	}

	negs, err := e.Negatives(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(negs) != 1 || negs[0].Root != "cheap" || negs[0].Frequency != 4 {
		t.Errorf("negatives after conflict resolution = %+v", negs)
	}
}

func TestAcceptAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	e := newTestEngine(t, st, nil)
	scope := e.Scope("acct")

	first, err := e.AcceptAll(ctx, scope)
	if err != nil {
		t.Fatalf("first AcceptAll: %v", err)
	}
	if first.AcceptedCount != 3 || first.AddedCount != 4 || len(first.Errors) != 0 {
		t.Fatalf("first = %+v", first)
	}

	negs, _ := st.NegativeKeywords(ctx, "acct")
	want := []store.NegativeKeyword{
		{AccountID: "acct", CampaignID: 1, Text: "cheap", MatchType: perf.MatchExact},
		{AccountID: "acct", CampaignID: 2, AdGroupID: 21, Text: "wireless earbuds", MatchType: perf.MatchExact},
		{AccountID: "acct", CampaignID: 3, Text: "cheap", MatchType: perf.MatchExact},
		{AccountID: "acct", CampaignID: 3, AdGroupID: 31, Text: "cheap wireless earbuds", MatchType: perf.MatchExact},
	}
	if len(negs) != len(want) {
		t.Fatalf("negatives = %+v", negs)
	}
	for i := range want {
		if negs[i] != want[i] {
			t.Errorf("negative %d = %+v, want %+v", i, negs[i], want[i])
		}
	}

	second, err := e.AcceptAll(ctx, scope)
	if err != nil {
		t.Fatalf("second AcceptAll: %v", err)
	}
	if second.AddedCount != 0 {
		t.Errorf("second added = %d, want 0", second.AddedCount)
	}
	if second.DuplicateCount == 0 {
		t.Error("second run should report duplicates")
	}
	if len(second.Errors) != 0 {
		t.Errorf("second errors = %+v", second.Errors)
	}

	recs, _ := st.Decisions(ctx, "acct")
	if len(recs) != first.AcceptedCount+second.AcceptedCount {
		t.Errorf("audit records = %d", len(recs))
	}
}

func TestRejectNeverWrites(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	e := newTestEngine(t, st, nil)

	rep, err := e.Analyze(ctx, e.Scope("acct"))
	if err != nil {
		t.Fatal(err)
	}
	var decisions []review.Decision
	for _, s := range rep.Negatives {
		decisions = append(decisions, review.NegativeDecision(review.Reject, s))
	}
	for _, g := range rep.Conflicts {
		decisions = append(decisions, review.ConflictDecision(review.Reject, g))
	}
	res, err := e.Review(ctx, "acct", decisions)
	if err != nil {
		t.Fatal(err)
	}
	if res.RejectedCount != 2 || res.AddedCount != 0 {
		t.Errorf("res = %+v", res)
	}
	negs, _ := st.NegativeKeywords(ctx, "acct")
	if len(negs) != 0 {
		t.Errorf("rejections wrote negatives: %+v", negs)
	}
}

func TestNegativesCacheIsPurgedOnWrite(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	cfg := config.Default()
	cfg.CacheSize = 8
	e := newTestEngine(t, st, &cfg)
	scope := e.Scope("acct")

	first, err := e.Negatives(ctx, scope)
	if err != nil || len(first) != 1 {
		t.Fatalf("Negatives = %v, %v", first, err)
	}

	extra := []perf.Row{
		{Query: "refurbished earbuds", CampaignID: 1, MatchType: perf.MatchBroad, Clicks: 30, Spend: 25, Date: testDay},
		{Query: "refurbished earbuds", CampaignID: 3, MatchType: perf.MatchBroad, Clicks: 30, Spend: 25, Date: testDay},
	}
	if err := st.InsertRows(ctx, "acct", extra); err != nil {
		t.Fatal(err)
	}

	cached, _ := e.Negatives(ctx, scope)
	if len(cached) != 1 {
		t.Fatalf("expected cached result, got %d suggestions", len(cached))
	}

	if _, err := e.Review(ctx, "acct", []review.Decision{review.NegativeDecision(review.Accept, first[0])}); err != nil {
		t.Fatal(err)
	}

	fresh, _ := e.Negatives(ctx, scope)
	if len(fresh) != 1 || fresh[0].Root != "refurbished" {
		t.Errorf("after purge = %+v", fresh)
	}
}

func TestCachedNegativesAreCopies(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.CacheSize = 8
	e := newTestEngine(t, seedStore(t), &cfg)
	scope := e.Scope("acct")

	first, err := e.Negatives(ctx, scope)
	if err != nil || len(first) != 1 {
		t.Fatalf("Negatives = %v, %v", first, err)
	}
	first[0].Root = "changed"
	first[0].Targets[0] = 99

	hit, _ := e.Negatives(ctx, scope)
	if len(hit) != 1 || hit[0].Root != "cheap" || hit[0].Targets[0] != 1 {
		t.Fatalf("first cache hit = %+v", hit)
	}
	hit[0].SampleQueries[0] = "changed"

	again, _ := e.Negatives(ctx, scope)
	if again[0].SampleQueries[0] != "cheap wireless earbuds" {
		t.Errorf("second cache hit = %+v", again[0])
	}
}

func TestScopeUsesLookback(t *testing.T) {
	cfg := config.Default()
	cfg.LookbackDays = 7
	e := newTestEngine(t, memstore.New(), &cfg)
	s := e.Scope("acct", 4, 2)
	if s.WindowDays != 7 || !s.Until.Equal(testDay) || len(s.CampaignIDs) != 2 {
		t.Errorf("scope = %+v", s)
	}
	if e.keyFor(s) != e.keyFor(e.Scope("acct", 2, 4)) {
		t.Error("cache key should not depend on campaign order")
	}
}
