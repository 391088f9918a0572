// Package termintel analyzes search-term performance and turns it into
// reviewable keyword suggestions: negative roots, match-type migrations and
// cross-campaign traffic conflicts.
package termintel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cognicore/termintel/pkg/termintel/config"
	"github.com/cognicore/termintel/pkg/termintel/conflict"
	"github.com/cognicore/termintel/pkg/termintel/coreroots"
	"github.com/cognicore/termintel/pkg/termintel/funnel"
	"github.com/cognicore/termintel/pkg/termintel/ingest"
	"github.com/cognicore/termintel/pkg/termintel/negative"
	"github.com/cognicore/termintel/pkg/termintel/ngram"
	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/review"
	"github.com/cognicore/termintel/pkg/termintel/store"
)

// Engine is the search-term intelligence facade.
type Engine struct {
	rows      store.RowSource
	keywords  store.KeywordSource
	negatives store.NegativeSource
	gateway   *review.Gateway
	cfg       config.Config
	ruleset   string
	logger    *slog.Logger
	now       func() time.Time

	tokenizer  *ingest.Tokenizer
	aggregator *ngram.Aggregator
	classifier *negative.Classifier
	funnel     *funnel.Analyzer

	cache *lru.Cache[cacheKey, []negative.Suggestion]
}

// Options configures an Engine. Rows is required; the rest is optional.
type Options struct {
	Rows        store.RowSource
	Keywords    store.KeywordSource
	Negatives   store.NegativeSource
	Writer      store.NegativeWriter
	DecisionLog store.DecisionLog
	Config      *config.Config // nil means config.Default()
	Logger      *slog.Logger
	Now         func() time.Time
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Rows == nil {
		return nil, fmt.Errorf("termintel: nil row source")
	}
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		rows:      opts.Rows,
		keywords:  opts.Keywords,
		negatives: opts.Negatives,
		cfg:       cfg,
		ruleset:   cfg.Fingerprint(),
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}

	e.tokenizer = cfg.Tokenizer()
	e.aggregator = ngram.NewAggregator(e.tokenizer, cfg.NgramOptions())
	e.classifier = negative.NewClassifier(cfg.NegativeConfig())
	e.funnel = funnel.NewAnalyzer(cfg.FunnelConfig())
	e.gateway = review.NewGateway(review.Options{
		Writer: opts.Writer,
		Log:    opts.DecisionLog,
		Logger: e.logger,
		Now:    e.now,
	})

	if cfg.CacheSize > 0 {
		cache, err := lru.New[cacheKey, []negative.Suggestion](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create analysis cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Config returns the active settings.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Ruleset identifies the active rule settings.
func (e *Engine) Ruleset() string {
	return e.ruleset
}

// Scope builds the default analysis scope for an account, ending now.
func (e *Engine) Scope(accountID string, campaignIDs ...int64) store.Scope {
	return store.Scope{
		AccountID:   accountID,
		CampaignIDs: campaignIDs,
		WindowDays:  e.cfg.LookbackDays,
		Until:       e.now(),
	}
}

type cacheKey struct {
	account   string
	campaigns string
	window    int
	since     string
	ruleset   string
}

func (e *Engine) keyFor(scope store.Scope) cacheKey {
	ids := append([]int64(nil), scope.CampaignIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return cacheKey{
		account:   scope.AccountID,
		campaigns: strings.Join(parts, ","),
		window:    scope.WindowDays,
		since:     scope.Since().Format("2006-01-02"),
		ruleset:   e.ruleset,
	}
}

// Negatives suggests word roots to negate. Results are memoized per scope and
// ruleset when a cache is configured.
func (e *Engine) Negatives(ctx context.Context, scope store.Scope) ([]negative.Suggestion, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(e.keyFor(scope)); ok {
			e.logger.Debug("negative analysis cache hit", "account", scope.AccountID, "ruleset", e.ruleset)
			return cloneSuggestions(cached), nil
		}
	}
	rows, err := e.rows.PerformanceRows(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load performance rows: %w", err)
	}
	return e.negativesFrom(ctx, scope, rows, false)
}

func (e *Engine) negativesFrom(ctx context.Context, scope store.Scope, rows []perf.Row, useCache bool) ([]negative.Suggestion, error) {
	key := e.keyFor(scope)
	if useCache && e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			e.logger.Debug("negative analysis cache hit", "account", scope.AccountID, "ruleset", e.ruleset)
			return cloneSuggestions(cached), nil
		}
	}

	core, err := e.coreRoots(ctx, scope)
	if err != nil {
		return nil, err
	}
	roots := e.aggregator.Aggregate(rows, core)
	negated, err := e.dropNegated(ctx, scope, roots)
	if err != nil {
		return nil, err
	}
	suggestions := e.classifier.Suggest(ngram.Sorted(roots))

	e.logger.Debug("negative analysis",
		"account", scope.AccountID,
		"rows", len(rows),
		"core_roots", len(core),
		"roots", len(roots),
		"already_negated", negated,
		"suggestions", len(suggestions))

	if e.cache != nil {
		e.cache.Add(key, cloneSuggestions(suggestions))
	}
	return suggestions, nil
}

func (e *Engine) coreRoots(ctx context.Context, scope store.Scope) (coreroots.Set, error) {
	if e.keywords == nil {
		return coreroots.Set{}, nil
	}
	texts, err := e.keywords.ActiveKeywordTexts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load keyword inventory: %w", err)
	}
	return coreroots.Build(texts, e.tokenizer), nil
}

// dropNegated removes roots whose text already exists as a negative with the
// match type the root would be suggested at. Negatives never join the core
// roots: an exact negative on one query must not hide its tokens elsewhere.
func (e *Engine) dropNegated(ctx context.Context, scope store.Scope, roots map[ngram.Key]*ngram.Root) (int, error) {
	if e.negatives == nil || len(roots) == 0 {
		return 0, nil
	}
	existing, err := e.negatives.ExistingNegatives(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("load existing negatives: %w", err)
	}
	blocked := make(map[string]struct{}, len(existing))
	for _, nk := range existing {
		if text := strings.Join(e.tokenizer.Tokenize(nk.Text), " "); text != "" {
			blocked[string(nk.MatchType)+" "+text] = struct{}{}
		}
	}

	dropped := 0
	for k, r := range roots {
		if _, ok := blocked[string(negative.MatchTypeFor(r.N))+" "+r.Root]; ok {
			delete(roots, k)
			dropped++
		}
	}
	return dropped, nil
}

// Migrations suggests match-type promotions.
func (e *Engine) Migrations(ctx context.Context, scope store.Scope) ([]funnel.Suggestion, error) {
	rows, err := e.rows.PerformanceRows(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load performance rows: %w", err)
	}
	return e.funnel.Analyze(rows), nil
}

// Conflicts detects queries served by more than one campaign and resolves
// each to a single winner.
func (e *Engine) Conflicts(ctx context.Context, scope store.Scope) ([]conflict.Group, error) {
	rows, err := e.rows.PerformanceRows(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load performance rows: %w", err)
	}
	return conflict.Detect(rows), nil
}

// Report bundles all three suggestion streams of one scope.
type Report struct {
	AccountID   string                `json:"account_id"`
	Since       time.Time             `json:"since"`
	WindowDays  int                   `json:"window_days"`
	Ruleset     string                `json:"ruleset"`
	Rows        int                   `json:"rows"`
	Negatives   []negative.Suggestion `json:"negatives"`
	Migrations  []funnel.Suggestion   `json:"migrations"`
	Conflicts   []conflict.Group      `json:"conflicts"`
	WastedSpend float64               `json:"wasted_spend"`
	Savings     float64               `json:"estimated_savings"`
}

// Analyze runs every analyzer over one load of the scope's rows.
func (e *Engine) Analyze(ctx context.Context, scope store.Scope) (Report, error) {
	return e.analyze(ctx, scope, true)
}

func (e *Engine) analyze(ctx context.Context, scope store.Scope, useCache bool) (Report, error) {
	rows, err := e.rows.PerformanceRows(ctx, scope)
	if err != nil {
		return Report{}, fmt.Errorf("load performance rows: %w", err)
	}
	negs, err := e.negativesFrom(ctx, scope, rows, useCache)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		AccountID:  scope.AccountID,
		Since:      scope.Since(),
		WindowDays: scope.WindowDays,
		Ruleset:    e.ruleset,
		Rows:       len(rows),
		Negatives:  negs,
		Migrations: e.funnel.Analyze(rows),
		Conflicts:  conflict.Detect(rows),
	}
	for _, s := range rep.Negatives {
		rep.Savings += s.EstimatedSavings
	}
	for _, g := range rep.Conflicts {
		rep.WastedSpend += g.WastedSpend
	}
	rep.Savings = round2(rep.Savings)
	rep.WastedSpend = round2(rep.WastedSpend)
	return rep, nil
}

// Review applies human decisions through the gateway. Cached analyses of the
// account are dropped once any negative keyword was added.
func (e *Engine) Review(ctx context.Context, accountID string, decisions []review.Decision) (review.Result, error) {
	res, err := e.gateway.Review(ctx, accountID, decisions)
	if err != nil {
		return res, err
	}
	if res.AddedCount > 0 {
		e.purge(accountID)
	}
	return res, nil
}

// AcceptAll regenerates every suggestion for the scope from fresh data and
// accepts all of them.
func (e *Engine) AcceptAll(ctx context.Context, scope store.Scope) (review.Result, error) {
	rep, err := e.analyze(ctx, scope, false)
	if err != nil {
		return review.Result{}, err
	}

	decisions := make([]review.Decision, 0, len(rep.Negatives)+len(rep.Migrations)+len(rep.Conflicts))
	for _, s := range rep.Negatives {
		decisions = append(decisions, review.NegativeDecision(review.Accept, s))
	}
	for _, s := range rep.Migrations {
		decisions = append(decisions, review.MigrationDecision(review.Accept, s))
	}
	for _, g := range rep.Conflicts {
		decisions = append(decisions, review.ConflictDecision(review.Accept, g))
	}

	e.logger.Info("accepting all suggestions",
		"account", scope.AccountID,
		"negatives", len(rep.Negatives),
		"migrations", len(rep.Migrations),
		"conflicts", len(rep.Conflicts))
	return e.Review(ctx, scope.AccountID, decisions)
}

func (e *Engine) purge(accountID string) {
	if e.cache == nil {
		return
	}
	for _, k := range e.cache.Keys() {
		if k.account == accountID {
			e.cache.Remove(k)
		}
	}
}

func cloneSuggestions(in []negative.Suggestion) []negative.Suggestion {
	if in == nil {
		return nil
	}
	out := make([]negative.Suggestion, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
