package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/termintel/pkg/termintel/internalerr"
	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/store"
)

const dayLayout = "2006-01-02"

// sqliteStore implements store.Store using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS performance_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	query TEXT NOT NULL,
	campaign_id INTEGER NOT NULL,
	campaign_name TEXT NOT NULL DEFAULT '',
	campaign_type TEXT NOT NULL DEFAULT '',
	ad_group_id INTEGER NOT NULL DEFAULT 0,
	match_type TEXT NOT NULL,
	targeting_type TEXT NOT NULL DEFAULT '',
	impressions INTEGER NOT NULL DEFAULT 0,
	clicks INTEGER NOT NULL DEFAULT 0,
	spend REAL NOT NULL DEFAULT 0,
	orders INTEGER NOT NULL DEFAULT 0,
	sales REAL NOT NULL DEFAULT 0,
	day TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_rows_account_day ON performance_rows(account_id, day);

CREATE TABLE IF NOT EXISTS keywords (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	campaign_id INTEGER NOT NULL,
	ad_group_id INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL,
	match_type TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'enabled'
);

CREATE INDEX IF NOT EXISTS idx_keywords_account ON keywords(account_id);

CREATE TABLE IF NOT EXISTS negative_keywords (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	campaign_id INTEGER NOT NULL,
	ad_group_id INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL,
	match_type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(account_id, campaign_id, ad_group_id, text, match_type)
);

CREATE TABLE IF NOT EXISTS review_decisions (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	suggestion_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	action TEXT NOT NULL,
	before_json TEXT NOT NULL,
	after_json TEXT NOT NULL,
	decided_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_account ON review_decisions(account_id, decided_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// InsertRows stores performance rows in one transaction.
func (s *sqliteStore) InsertRows(ctx context.Context, accountID string, rows []perf.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO performance_rows (account_id, query, campaign_id, campaign_name, campaign_type,
	ad_group_id, match_type, targeting_type, impressions, clicks, spend, orders, sales, day)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, accountID, r.Query, r.CampaignID, r.CampaignName, r.CampaignType,
			r.AdGroupID, string(r.MatchType), string(r.TargetingType), r.Impressions, r.Clicks,
			r.Spend, r.Orders, r.Sales, formatDay(r.Date)); err != nil {
			return fmt.Errorf("insert row %q: %w", r.Query, err)
		}
	}
	return tx.Commit()
}

// AddKeyword adds a positive keyword to the inventory.
func (s *sqliteStore) AddKeyword(ctx context.Context, kw store.Keyword) error {
	if strings.TrimSpace(kw.Text) == "" {
		return fmt.Errorf("%w: empty keyword text", internalerr.ErrInvalidInput)
	}
	state := kw.State
	if state == "" {
		state = store.StateEnabled
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO keywords (account_id, campaign_id, ad_group_id, text, match_type, state)
VALUES (?, ?, ?, ?, ?, ?)`,
		kw.AccountID, kw.CampaignID, kw.AdGroupID, kw.Text, string(kw.MatchType), state)
	return err
}

// PerformanceRows returns the account's rows inside the scope.
func (s *sqliteStore) PerformanceRows(ctx context.Context, scope store.Scope) ([]perf.Row, error) {
	until := scope.Until
	if until.IsZero() {
		until = time.Now()
	}
	query := `
SELECT query, campaign_id, campaign_name, campaign_type, ad_group_id, match_type, targeting_type,
	impressions, clicks, spend, orders, sales, day
FROM performance_rows
WHERE account_id = ? AND (day = '' OR (day >= ? AND day <= ?))`
	args := []any{scope.AccountID, formatDay(scope.Since()), formatDay(until)}
	clause, campaignArgs := campaignFilter(scope.CampaignIDs)
	query += clause + " ORDER BY id"
	args = append(args, campaignArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []perf.Row
	for rows.Next() {
		var (
			r                    perf.Row
			match, targeting, dy string
		)
		if err := rows.Scan(&r.Query, &r.CampaignID, &r.CampaignName, &r.CampaignType, &r.AdGroupID,
			&match, &targeting, &r.Impressions, &r.Clicks, &r.Spend, &r.Orders, &r.Sales, &dy); err != nil {
			return nil, err
		}
		r.MatchType = perf.MatchType(match)
		r.TargetingType = perf.TargetingType(targeting)
		if dy != "" {
			if r.Date, err = time.Parse(dayLayout, dy); err != nil {
				return nil, fmt.Errorf("parse day %q: %w", dy, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveKeywordTexts returns enabled keyword texts for campaigns in scope.
func (s *sqliteStore) ActiveKeywordTexts(ctx context.Context, scope store.Scope) ([]string, error) {
	clause, campaignArgs := campaignFilter(scope.CampaignIDs)
	query := `SELECT text FROM keywords WHERE account_id = ? AND state = 'enabled'` + clause + ` ORDER BY id`
	args := append([]any{scope.AccountID}, campaignArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// ExistingNegatives returns negatives for campaigns in scope, in insertion order.
func (s *sqliteStore) ExistingNegatives(ctx context.Context, scope store.Scope) ([]store.NegativeKeyword, error) {
	clause, campaignArgs := campaignFilter(scope.CampaignIDs)
	query := `SELECT campaign_id, ad_group_id, text, match_type FROM negative_keywords WHERE account_id = ?` +
		clause + ` ORDER BY id`
	args := append([]any{scope.AccountID}, campaignArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return scanNegatives(rows, scope.AccountID)
}

// AddNegativeKeyword inserts a negative keyword once. Existing entries
// return internalerr.ErrDuplicate.
func (s *sqliteStore) AddNegativeKeyword(ctx context.Context, nk store.NegativeKeyword) error {
	text := perf.NormalizeQuery(nk.Text)
	if text == "" {
		return fmt.Errorf("%w: empty negative keyword text", internalerr.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO negative_keywords (account_id, campaign_id, ad_group_id, text, match_type, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(account_id, campaign_id, ad_group_id, text, match_type) DO NOTHING`,
		nk.AccountID, nk.CampaignID, nk.AdGroupID, text, string(nk.MatchType), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert negative %q: %w", text, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("negative %q in campaign %d: %w", text, nk.CampaignID, internalerr.ErrDuplicate)
	}
	return nil
}

// NegativeKeywords lists an account's negatives ordered by campaign, ad group and text.
func (s *sqliteStore) NegativeKeywords(ctx context.Context, accountID string) ([]store.NegativeKeyword, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT campaign_id, ad_group_id, text, match_type FROM negative_keywords
WHERE account_id = ? ORDER BY campaign_id, ad_group_id, text`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNegatives(rows, accountID)
}

// RecordDecision appends an audit record.
func (s *sqliteStore) RecordDecision(ctx context.Context, rec store.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO review_decisions (id, batch_id, account_id, suggestion_id, kind, action, before_json, after_json, decided_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BatchID, rec.AccountID, rec.SuggestionID, rec.Kind, rec.Action,
		rec.Before, rec.After, rec.DecidedAt.UTC().Format(time.RFC3339Nano))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("decision %s: %w", rec.ID, internalerr.ErrDuplicate)
	}
	return err
}

// Decisions returns an account's audit records in the order recorded.
func (s *sqliteStore) Decisions(ctx context.Context, accountID string) ([]store.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, batch_id, suggestion_id, kind, action, before_json, after_json, decided_at
FROM review_decisions WHERE account_id = ? ORDER BY rowid`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DecisionRecord
	for rows.Next() {
		rec := store.DecisionRecord{AccountID: accountID}
		var decided string
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.SuggestionID, &rec.Kind, &rec.Action,
			&rec.Before, &rec.After, &decided); err != nil {
			return nil, err
		}
		if rec.DecidedAt, err = time.Parse(time.RFC3339Nano, decided); err != nil {
			return nil, fmt.Errorf("parse decided_at %q: %w", decided, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanNegatives(rows *sql.Rows, accountID string) ([]store.NegativeKeyword, error) {
	var out []store.NegativeKeyword
	for rows.Next() {
		nk := store.NegativeKeyword{AccountID: accountID}
		var match string
		if err := rows.Scan(&nk.CampaignID, &nk.AdGroupID, &nk.Text, &match); err != nil {
			return nil, err
		}
		nk.MatchType = perf.MatchType(match)
		out = append(out, nk)
	}
	return out, rows.Err()
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dayLayout)
}

func campaignFilter(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return " AND campaign_id IN (" + strings.Join(placeholders, ",") + ")", args
}
