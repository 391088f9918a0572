package jsonl

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cognicore/termintel/pkg/termintel/perf"
	"github.com/cognicore/termintel/pkg/termintel/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	content := `{"query":"wireless earbuds","campaign_id":1,"match_type":"broad","clicks":10,"spend":5.5,"date":"2024-06-30"}
not json

{"query":"earbuds case","campaign_id":2,"match_type":"PHRASE","targeting_type":"product"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	recs, err := Load[RowRecord](path, quiet)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	rows := Rows(recs, quiet)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if !rows[0].Date.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)) || rows[0].Spend != 5.5 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].MatchType != perf.MatchPhrase || !rows[1].ProductTargeted() {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestRowsRejectsBadEnums(t *testing.T) {
	recs := []RowRecord{
		{Query: "a", MatchType: "fuzzy"},
		{Query: "b", MatchType: "exact", TargetingType: "audience"},
		{Query: "c", MatchType: "exact", Date: "30/06/2024"},
		{Query: "d", MatchType: "exact"},
	}
	rows := Rows(recs, quiet)
	if len(rows) != 1 || rows[0].Query != "d" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReadKeywords(t *testing.T) {
	in := `{"account_id":"acct","campaign_id":1,"text":"wireless earbuds","match_type":"broad"}
{"account_id":"acct","campaign_id":1,"text":"old","state":"paused"}`
	kws, err := Read[store.Keyword](strings.NewReader(in), "keywords", quiet)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(kws) != 2 || !kws[0].Enabled() || kws[1].Enabled() {
		t.Errorf("keywords = %+v", kws)
	}
}

func TestReadEmpty(t *testing.T) {
	if _, err := Read[RowRecord](strings.NewReader("\n\n"), "empty", quiet); err == nil {
		t.Error("expected error for input without records")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load[RowRecord](filepath.Join(t.TempDir(), "nope.jsonl"), quiet); err == nil {
		t.Error("expected error")
	}
}
