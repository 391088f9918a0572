// Package jsonl reads newline-delimited JSON exports of performance rows and
// keyword inventories.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cognicore/termintel/pkg/termintel/perf"
)

const maxLine = 1 << 20

// Load reads every well-formed record of a JSONL file. Malformed lines are
// logged and skipped; a file without any valid record is an error.
func Load[T any](path string, logger *slog.Logger) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read[T](f, path, logger)
}

// Read is Load over an open reader. name labels log lines and errors.
func Read[T any](r io.Reader, name string, logger *slog.Logger) ([]T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var items []T
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			logger.Warn("skipping malformed JSON", "file", name, "line", line, "err", err)
			continue
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no valid records found in %s", name)
	}
	return items, nil
}

// RowRecord is one exported search-term report line. Date is YYYY-MM-DD.
type RowRecord struct {
	Query         string  `json:"query"`
	CampaignID    int64   `json:"campaign_id"`
	CampaignName  string  `json:"campaign_name"`
	CampaignType  string  `json:"campaign_type"`
	AdGroupID     int64   `json:"ad_group_id"`
	MatchType     string  `json:"match_type"`
	TargetingType string  `json:"targeting_type"`
	Impressions   int64   `json:"impressions"`
	Clicks        int64   `json:"clicks"`
	Spend         float64 `json:"spend"`
	Orders        int64   `json:"orders"`
	Sales         float64 `json:"sales"`
	Date          string  `json:"date"`
}

// Row converts the record, validating the enumerations and the date.
func (rec RowRecord) Row() (perf.Row, error) {
	match := perf.MatchType(strings.ToLower(rec.MatchType))
	switch match {
	case perf.MatchBroad, perf.MatchPhrase, perf.MatchExact:
	default:
		return perf.Row{}, fmt.Errorf("query %q: unknown match type %q", rec.Query, rec.MatchType)
	}
	targeting := perf.TargetingType(strings.ToLower(rec.TargetingType))
	switch targeting {
	case "", perf.TargetingKeyword, perf.TargetingProduct:
	default:
		return perf.Row{}, fmt.Errorf("query %q: unknown targeting type %q", rec.Query, rec.TargetingType)
	}

	row := perf.Row{
		Query:         rec.Query,
		CampaignID:    rec.CampaignID,
		CampaignName:  rec.CampaignName,
		CampaignType:  rec.CampaignType,
		AdGroupID:     rec.AdGroupID,
		MatchType:     match,
		TargetingType: targeting,
		Impressions:   rec.Impressions,
		Clicks:        rec.Clicks,
		Spend:         rec.Spend,
		Orders:        rec.Orders,
		Sales:         rec.Sales,
	}
	if rec.Date != "" {
		d, err := time.Parse("2006-01-02", rec.Date)
		if err != nil {
			return perf.Row{}, fmt.Errorf("query %q: bad date: %w", rec.Query, err)
		}
		row.Date = d
	}
	return row, nil
}

// Rows converts records, logging and skipping the invalid ones.
func Rows(recs []RowRecord, logger *slog.Logger) []perf.Row {
	if logger == nil {
		logger = slog.Default()
	}
	rows := make([]perf.Row, 0, len(recs))
	for i, rec := range recs {
		row, err := rec.Row()
		if err != nil {
			logger.Warn("skipping invalid row", "record", i+1, "err", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
