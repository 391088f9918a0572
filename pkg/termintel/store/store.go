package store

import (
	"context"
	"time"

	"github.com/cognicore/termintel/pkg/termintel/perf"
)

// Scope selects the rows and keywords of one analysis run.
type Scope struct {
	AccountID   string
	CampaignIDs []int64 // empty means every campaign of the account
	WindowDays  int
	Until       time.Time // zero means now
}

// Since returns the first day included in the window.
func (s Scope) Since() time.Time {
	until := s.Until
	if until.IsZero() {
		until = time.Now()
	}
	until = until.UTC().Truncate(24 * time.Hour)
	if s.WindowDays <= 0 {
		return until
	}
	return until.AddDate(0, 0, -(s.WindowDays - 1))
}

// Covers reports whether a row dated d falls inside the window. Undated rows
// are always covered.
func (s Scope) Covers(d time.Time) bool {
	if d.IsZero() {
		return true
	}
	day := d.UTC().Truncate(24 * time.Hour)
	until := s.Until
	if until.IsZero() {
		until = time.Now()
	}
	return !day.Before(s.Since()) && !day.After(until.UTC().Truncate(24*time.Hour))
}

// Includes reports whether campaignID is inside the scope.
func (s Scope) Includes(campaignID int64) bool {
	if len(s.CampaignIDs) == 0 {
		return true
	}
	for _, id := range s.CampaignIDs {
		if id == campaignID {
			return true
		}
	}
	return false
}

// RowSource fetches aggregated performance rows, one per query, campaign, ad
// group, match type and day.
type RowSource interface {
	PerformanceRows(ctx context.Context, scope Scope) ([]perf.Row, error)
}

// KeywordSource fetches the texts of the enabled positive keywords in scope.
type KeywordSource interface {
	ActiveKeywordTexts(ctx context.Context, scope Scope) ([]string, error)
}

// NegativeSource fetches the negative keywords already present in scope.
type NegativeSource interface {
	ExistingNegatives(ctx context.Context, scope Scope) ([]NegativeKeyword, error)
}

// Keyword states.
const (
	StateEnabled  = "enabled"
	StatePaused   = "paused"
	StateArchived = "archived"
)

// Keyword is a positive keyword of the inventory.
type Keyword struct {
	AccountID  string         `json:"account_id"`
	CampaignID int64          `json:"campaign_id"`
	AdGroupID  int64          `json:"ad_group_id,omitempty"`
	Text       string         `json:"text"`
	MatchType  perf.MatchType `json:"match_type"`
	State      string         `json:"state,omitempty"` // empty means enabled
}

// Enabled reports whether the keyword is live.
func (k Keyword) Enabled() bool {
	return k.State == "" || k.State == StateEnabled
}

// NegativeKeyword is one negative keyword write. AdGroupID 0 means campaign scope.
type NegativeKeyword struct {
	AccountID  string         `json:"account_id"`
	CampaignID int64          `json:"campaign_id"`
	AdGroupID  int64          `json:"ad_group_id,omitempty"`
	Text       string         `json:"text"`
	MatchType  perf.MatchType `json:"match_type"`
}

// NegativeWriter adds negative keywords. Implementations return an error
// wrapping internalerr.ErrDuplicate when the keyword already exists.
type NegativeWriter interface {
	AddNegativeKeyword(ctx context.Context, nk NegativeKeyword) error
}

// DecisionRecord is the audit entry of one review decision.
type DecisionRecord struct {
	ID           string    `json:"id"`
	BatchID      string    `json:"batch_id"`
	AccountID    string    `json:"account_id"`
	SuggestionID string    `json:"suggestion_id"`
	Kind         string    `json:"kind"`
	Action       string    `json:"action"`
	Before       string    `json:"before"` // JSON snapshot before the decision
	After        string    `json:"after"`  // JSON snapshot after execution
	DecidedAt    time.Time `json:"decided_at"`
}

// DecisionLog persists review decisions.
type DecisionLog interface {
	RecordDecision(ctx context.Context, rec DecisionRecord) error
}

// Store is a backend holding performance data, the keyword inventory and the
// review audit log.
type Store interface {
	RowSource
	KeywordSource
	NegativeSource
	NegativeWriter
	DecisionLog

	InsertRows(ctx context.Context, accountID string, rows []perf.Row) error
	AddKeyword(ctx context.Context, kw Keyword) error
	NegativeKeywords(ctx context.Context, accountID string) ([]NegativeKeyword, error)
	Decisions(ctx context.Context, accountID string) ([]DecisionRecord, error)
	Close() error
}
