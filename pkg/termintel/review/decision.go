package review

import (
	"fmt"

	"github.com/cognicore/termintel/pkg/termintel/conflict"
	"github.com/cognicore/termintel/pkg/termintel/funnel"
	"github.com/cognicore/termintel/pkg/termintel/internalerr"
	"github.com/cognicore/termintel/pkg/termintel/negative"
	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/store"
)

// Kind tags the suggestion a decision refers to.
type Kind string

const (
	KindNegative  Kind = "negative"
	KindMigration Kind = "migration"
	KindConflict  Kind = "conflict"
)

// Action is the human verdict.
type Action string

const (
	Accept Action = "accept"
	Reject Action = "reject"
)

// Decision is a verdict on exactly one suggestion. The payload field matching
// Kind must be set; the others must be nil.
type Decision struct {
	Kind      Kind                 `json:"kind"`
	Action    Action               `json:"action"`
	Negative  *negative.Suggestion `json:"negative,omitempty"`
	Migration *funnel.Suggestion   `json:"migration,omitempty"`
	Conflict  *conflict.Group      `json:"conflict,omitempty"`
}

// NegativeDecision wraps a negative-keyword suggestion.
func NegativeDecision(action Action, s negative.Suggestion) Decision {
	return Decision{Kind: KindNegative, Action: action, Negative: &s}
}

// MigrationDecision wraps a funnel migration suggestion.
func MigrationDecision(action Action, s funnel.Suggestion) Decision {
	return Decision{Kind: KindMigration, Action: action, Migration: &s}
}

// ConflictDecision wraps a conflict resolution.
func ConflictDecision(action Action, g conflict.Group) Decision {
	return Decision{Kind: KindConflict, Action: action, Conflict: &g}
}

// Validate checks that the tag and payload agree.
func (d Decision) Validate() error {
	if d.Action != Accept && d.Action != Reject {
		return fmt.Errorf("%w: unknown action %q", internalerr.ErrInvalidInput, d.Action)
	}
	set := 0
	for _, p := range []bool{d.Negative != nil, d.Migration != nil, d.Conflict != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: decision needs exactly one payload, got %d", internalerr.ErrInvalidInput, set)
	}
	switch d.Kind {
	case KindNegative:
		if d.Negative == nil {
			return fmt.Errorf("%w: negative decision without negative payload", internalerr.ErrInvalidInput)
		}
		if d.Action == Accept && len(d.Negative.Targets) == 0 {
			return fmt.Errorf("%w: negative %q has no target campaigns", internalerr.ErrInvalidInput, d.Negative.Root)
		}
	case KindMigration:
		if d.Migration == nil {
			return fmt.Errorf("%w: migration decision without migration payload", internalerr.ErrInvalidInput)
		}
	case KindConflict:
		if d.Conflict == nil {
			return fmt.Errorf("%w: conflict decision without conflict payload", internalerr.ErrInvalidInput)
		}
		if d.Action == Accept && len(d.Conflict.Resolution.Losers) == 0 {
			return fmt.Errorf("%w: conflict %q has no losing campaigns", internalerr.ErrInvalidInput, d.Conflict.Query)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", internalerr.ErrInvalidInput, d.Kind)
	}
	return nil
}

// SuggestionID identifies the suggestion under review.
func (d Decision) SuggestionID() string {
	switch d.Kind {
	case KindNegative:
		if d.Negative != nil {
			return d.Negative.ID()
		}
	case KindMigration:
		if d.Migration != nil {
			return d.Migration.ID()
		}
	case KindConflict:
		if d.Conflict != nil {
			return d.Conflict.ID()
		}
	}
	return string(d.Kind) + ":invalid"
}

// Actions lists the negative keyword writes an accepted decision implies.
func (d Decision) Actions(accountID string) []store.NegativeKeyword {
	switch d.Kind {
	case KindNegative:
		s := d.Negative
		out := make([]store.NegativeKeyword, 0, len(s.Targets))
		for _, campaignID := range s.Targets {
			out = append(out, store.NegativeKeyword{
				AccountID:  accountID,
				CampaignID: campaignID,
				Text:       s.Root,
				MatchType:  s.MatchType,
			})
		}
		return out

	case KindMigration:
		s := d.Migration
		if !s.Negation.Required {
			return nil
		}
		return scoped(accountID, s.CampaignID, s.Query, s.Negation.Scope, s.Negation.AdGroupIDs)

	case KindConflict:
		g := d.Conflict
		var out []store.NegativeKeyword
		for _, l := range g.Resolution.Losers {
			out = append(out, scoped(accountID, l.CampaignID, g.Query, l.Scope, l.AdGroupIDs)...)
		}
		return out
	}
	return nil
}

// scoped isolates an exact query in a campaign, or in each listed ad group.
func scoped(accountID string, campaignID int64, query string, scope perf.NegationScope, adGroups []int64) []store.NegativeKeyword {
	if scope != perf.ScopeAdGroup || len(adGroups) == 0 {
		return []store.NegativeKeyword{{
			AccountID:  accountID,
			CampaignID: campaignID,
			Text:       query,
			MatchType:  perf.MatchExact,
		}}
	}
	out := make([]store.NegativeKeyword, 0, len(adGroups))
	for _, ag := range adGroups {
		out = append(out, store.NegativeKeyword{
			AccountID:  accountID,
			CampaignID: campaignID,
			AdGroupID:  ag,
			Text:       query,
			MatchType:  perf.MatchExact,
		})
	}
	return out
}
