// Package review batches suggestions for accept/reject decisions and executes
// the accepted ones through the negative keyword writer.
package review

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/termintel/pkg/termintel/internalerr"
	"github.com/cognicore/termintel/pkg/termintel/store"
)

// ItemError is a failure tied to one decision or one write.
type ItemError struct {
	SuggestionID string                 `json:"suggestion_id"`
	Keyword      *store.NegativeKeyword `json:"keyword,omitempty"`
	Message      string                 `json:"message"`
	Err          error                  `json:"-"`
}

func (e ItemError) Error() string {
	return e.SuggestionID + ": " + e.Message
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Result summarizes one review call. A non-empty Errors list means only the
// listed items failed; everything else was applied.
type Result struct {
	BatchID        string            `json:"batch_id"`
	AcceptedCount  int               `json:"accepted_count"`
	RejectedCount  int               `json:"rejected_count"`
	AddedCount     int               `json:"added_count"`
	DuplicateCount int               `json:"duplicate_count"`
	Errors         []ItemError       `json:"errors,omitempty"`
	Statuses       map[string]Status `json:"statuses"`
}

// Options configures a Gateway.
type Options struct {
	Writer store.NegativeWriter
	Log    store.DecisionLog // optional audit log
	Logger *slog.Logger
	Now    func() time.Time
}

// Gateway is the only component that writes to the keyword inventory.
type Gateway struct {
	writer store.NegativeWriter
	log    store.DecisionLog
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGateway creates a gateway.
func NewGateway(opts Options) *Gateway {
	g := &Gateway{
		writer:  opts.Writer,
		log:     opts.Log,
		logger:  opts.Logger,
		now:     opts.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *Gateway) newID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Review applies decisions in the order given. Rejections are recorded and
// never reach the writer. Each accepted decision's writes are attempted once;
// duplicates count as already applied, other failures are collected and the
// batch carries on.
func (g *Gateway) Review(ctx context.Context, accountID string, decisions []Decision) (Result, error) {
	if g.writer == nil {
		return Result{}, errors.New("review gateway: nil negative writer")
	}

	ids := make([]string, len(decisions))
	for i, d := range decisions {
		ids[i] = d.SuggestionID()
	}
	batch := NewBatch(g.newID(), ids...)
	batch.Open()

	res := Result{BatchID: batch.ID}
	for _, d := range decisions {
		g.apply(ctx, accountID, batch, d, &res)
	}
	res.Statuses = batch.Statuses()

	g.logger.Info("review batch complete",
		"batch", batch.ID,
		"account", accountID,
		"accepted", res.AcceptedCount,
		"rejected", res.RejectedCount,
		"added", res.AddedCount,
		"duplicates", res.DuplicateCount,
		"errors", len(res.Errors))
	return res, nil
}

type outcome struct {
	Status     Status `json:"status"`
	Added      int    `json:"added"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

func (g *Gateway) apply(ctx context.Context, accountID string, batch *Batch, d Decision, res *Result) {
	sid := d.SuggestionID()
	if err := d.Validate(); err != nil {
		res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: err.Error(), Err: err})
		return
	}

	var out outcome
	switch d.Action {
	case Reject:
		if err := batch.Transition(sid, StatusRejected); err != nil {
			res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: err.Error(), Err: err})
			return
		}
		res.RejectedCount++
		out.Status = StatusRejected

	case Accept:
		if err := batch.Transition(sid, StatusAccepted); err != nil {
			res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: err.Error(), Err: err})
			return
		}
		res.AcceptedCount++
		out = g.execute(ctx, accountID, sid, d, res)
		if out.Failed == 0 {
			if err := batch.Transition(sid, StatusExecuted); err != nil {
				res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: err.Error(), Err: err})
			}
		}
		out.Status, _ = batch.Status(sid)
	}

	g.record(ctx, accountID, batch.ID, sid, d, out, res)
}

func (g *Gateway) execute(ctx context.Context, accountID, sid string, d Decision, res *Result) outcome {
	var out outcome
	for _, nk := range d.Actions(accountID) {
		err := g.writer.AddNegativeKeyword(ctx, nk)
		switch {
		case err == nil:
			out.Added++
			res.AddedCount++
		case errors.Is(err, internalerr.ErrDuplicate):
			out.Duplicates++
			res.DuplicateCount++
			g.logger.Debug("negative keyword already present",
				"suggestion", sid, "campaign", nk.CampaignID, "ad_group", nk.AdGroupID, "text", nk.Text)
		default:
			out.Failed++
			kw := nk
			res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Keyword: &kw, Message: err.Error(), Err: err})
			g.logger.Warn("add negative keyword failed",
				"suggestion", sid, "campaign", nk.CampaignID, "ad_group", nk.AdGroupID, "text", nk.Text, "err", err)
		}
	}
	return out
}

func (g *Gateway) record(ctx context.Context, accountID, batchID, sid string, d Decision, out outcome, res *Result) {
	if g.log == nil {
		return
	}
	before, err := json.Marshal(d)
	if err != nil {
		res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: "encode snapshot: " + err.Error(), Err: err})
		return
	}
	after, err := json.Marshal(out)
	if err != nil {
		res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: "encode snapshot: " + err.Error(), Err: err})
		return
	}
	rec := store.DecisionRecord{
		ID:           g.newID(),
		BatchID:      batchID,
		AccountID:    accountID,
		SuggestionID: sid,
		Kind:         string(d.Kind),
		Action:       string(d.Action),
		Before:       string(before),
		After:        string(after),
		DecidedAt:    g.now().UTC(),
	}
	if err := g.log.RecordDecision(ctx, rec); err != nil {
		res.Errors = append(res.Errors, ItemError{SuggestionID: sid, Message: "record decision: " + err.Error(), Err: err})
	}
}
