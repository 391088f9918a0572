package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cognicore/termintel/pkg/termintel/internalerr"
	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu        sync.RWMutex
	rows      map[string][]perf.Row
	keywords  map[string][]store.Keyword
	negatives map[string][]store.NegativeKeyword
	negIndex  map[string]struct{}
	decisions map[string][]store.DecisionRecord

	// FailOn makes AddNegativeKeyword fail for matching texts. Used to
	// exercise partial failures.
	FailOn map[string]error
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		rows:      make(map[string][]perf.Row),
		keywords:  make(map[string][]store.Keyword),
		negatives: make(map[string][]store.NegativeKeyword),
		negIndex:  make(map[string]struct{}),
		decisions: make(map[string][]store.DecisionRecord),
		FailOn:    make(map[string]error),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// InsertRows appends performance rows for an account.
func (s *Store) InsertRows(ctx context.Context, accountID string, rows []perf.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[accountID] = append(s.rows[accountID], rows...)
	return nil
}

// AddKeyword adds a positive keyword to the inventory.
func (s *Store) AddKeyword(ctx context.Context, kw store.Keyword) error {
	if strings.TrimSpace(kw.Text) == "" {
		return fmt.Errorf("%w: empty keyword text", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[kw.AccountID] = append(s.keywords[kw.AccountID], kw)
	return nil
}

// PerformanceRows returns the account's rows inside the scope, in insertion order.
func (s *Store) PerformanceRows(ctx context.Context, scope store.Scope) ([]perf.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []perf.Row
	for _, r := range s.rows[scope.AccountID] {
		if scope.Includes(r.CampaignID) && scope.Covers(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ActiveKeywordTexts returns enabled keyword texts for campaigns in scope.
func (s *Store) ActiveKeywordTexts(ctx context.Context, scope store.Scope) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, kw := range s.keywords[scope.AccountID] {
		if kw.Enabled() && scope.Includes(kw.CampaignID) {
			out = append(out, kw.Text)
		}
	}
	return out, nil
}

// ExistingNegatives returns negatives for campaigns in scope, in insertion order.
func (s *Store) ExistingNegatives(ctx context.Context, scope store.Scope) ([]store.NegativeKeyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.NegativeKeyword
	for _, nk := range s.negatives[scope.AccountID] {
		if scope.Includes(nk.CampaignID) {
			out = append(out, nk)
		}
	}
	return out, nil
}

func negKey(nk store.NegativeKeyword) string {
	return fmt.Sprintf("%s\x00%d\x00%d\x00%s\x00%s",
		nk.AccountID, nk.CampaignID, nk.AdGroupID, perf.NormalizeQuery(nk.Text), nk.MatchType)
}

// AddNegativeKeyword adds a negative keyword once.
func (s *Store) AddNegativeKeyword(ctx context.Context, nk store.NegativeKeyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.FailOn[nk.Text]; ok {
		return err
	}
	key := negKey(nk)
	if _, ok := s.negIndex[key]; ok {
		return fmt.Errorf("negative %q in campaign %d: %w", nk.Text, nk.CampaignID, internalerr.ErrDuplicate)
	}
	s.negIndex[key] = struct{}{}
	s.negatives[nk.AccountID] = append(s.negatives[nk.AccountID], nk)
	return nil
}

// NegativeKeywords lists an account's negatives ordered by campaign, ad group and text.
func (s *Store) NegativeKeywords(ctx context.Context, accountID string) ([]store.NegativeKeyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]store.NegativeKeyword(nil), s.negatives[accountID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		if out[i].AdGroupID != out[j].AdGroupID {
			return out[i].AdGroupID < out[j].AdGroupID
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

// RecordDecision appends an audit record.
func (s *Store) RecordDecision(ctx context.Context, rec store.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[rec.AccountID] = append(s.decisions[rec.AccountID], rec)
	return nil
}

// Decisions returns an account's audit records in the order recorded.
func (s *Store) Decisions(ctx context.Context, accountID string) ([]store.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.DecisionRecord(nil), s.decisions[accountID]...), nil
}

var _ store.Store = (*Store)(nil)
