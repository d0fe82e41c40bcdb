package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"natgas_trading/internal/models"

	"github.com/shopspring/decimal"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func sampleDecision() models.Decision {
	return models.Decision{
		Timestamp:  time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
		Signals:    models.Signals{Temperature: 0.8, Inventory: 0.2, Storm: 0.3},
		Total:      0.51,
		Action:     models.ActionBuy,
		Symbol:     "BOIL",
		Confidence: 1.7,
	}
}

func TestFileJournal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	j, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}

	price := decimal.NewFromFloat(20.5)
	if err := j.RecordSignal(sampleDecision()); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordTrade(&models.TradeResult{OrderID: "o1", Symbol: "BOIL", Side: models.SideBuy, Qty: 48, Status: "filled", FilledAvgPrice: &price}); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordTrade(nil); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordPortfolio(&models.Portfolio{Equity: decimal.NewFromInt(10000)}); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordError("fetch inventory", errors.New("EIA down")); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	signals := readLines(t, filepath.Join(dir, SignalsFile))
	if len(signals) != 1 || signals[0]["action"] != "BUY" || signals[0]["total_signal"] != 0.51 {
		t.Errorf("unexpected signal record %v", signals)
	}

	trades := readLines(t, filepath.Join(dir, TradesFile))
	if len(trades) != 2 {
		t.Fatalf("expected 2 trade records, got %d", len(trades))
	}
	trade, ok := trades[0]["trade"].(map[string]interface{})
	if !ok || trade["order_id"] != "o1" || trade["filled_avg_price"] != "20.5" {
		t.Errorf("unexpected trade record %v", trades[0])
	}
	if trades[1]["executed"] != false || trades[1]["trade"] != nil {
		t.Errorf("expected explicit absence, got %v", trades[1])
	}

	errs := readLines(t, filepath.Join(dir, ErrorsFile))
	if len(errs) != 1 || errs[0]["context"] != "fetch inventory" || errs[0]["error_message"] != "EIA down" {
		t.Errorf("unexpected error record %v", errs)
	}
}

func TestFileJournal_Appends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		j, err := NewFileJournal(dir)
		if err != nil {
			t.Fatal(err)
		}
		j.RecordSignal(sampleDecision())
		j.Close()
	}
	if n := len(readLines(t, filepath.Join(dir, SignalsFile))); n != 2 {
		t.Errorf("expected 2 lines after reopen, got %d", n)
	}
}

func TestFileJournal_ReportsWriteFailure(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if err := j.RecordSignal(sampleDecision()); err != nil {
		t.Fatalf("first write: %v", err)
	}
	j.files[SignalsFile].f.Close()

	if err := j.RecordSignal(sampleDecision()); err == nil {
		t.Fatal("expected an error writing to a closed file")
	}
	if n := len(readLines(t, filepath.Join(dir, SignalsFile))); n != 1 {
		t.Errorf("expected 1 line on disk, got %d", n)
	}
}

func TestSQLiteJournal(t *testing.T) {
	s, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJournal: %v", err)
	}
	defer s.Close()

	if err := s.RecordSignal(sampleDecision()); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTrade(&models.TradeResult{OrderID: "o1", Symbol: "BOIL", Side: models.SideBuy, Qty: 48, Status: "accepted"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTrade(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPortfolio(&models.Portfolio{Equity: decimal.NewFromInt(10000)}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordError("cycle", errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	var executed, total int
	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(executed), 0) FROM trades`).Scan(&total, &executed); err != nil {
		t.Fatal(err)
	}
	if total != 2 || executed != 1 {
		t.Errorf("expected 2 trades with 1 executed, got %d/%d", total, executed)
	}

	var symbol string
	if err := s.db.QueryRow(`SELECT symbol FROM signals`).Scan(&symbol); err != nil || symbol != "BOIL" {
		t.Errorf("expected BOIL signal, got %q (%v)", symbol, err)
	}
}

type failingJournal struct{ Journal }

func (failingJournal) RecordSignal(models.Decision) error { return errors.New("disk full") }

func TestMulti_JoinsErrors(t *testing.T) {
	dir := t.TempDir()
	fj, err := NewFileJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := Multi{failingJournal{}, fj}

	err = m.RecordSignal(sampleDecision())
	if err == nil || err.Error() != "disk full" {
		t.Errorf("expected joined error, got %v", err)
	}
	fj.Close()
	if n := len(readLines(t, filepath.Join(dir, SignalsFile))); n != 1 {
		t.Errorf("healthy journal should still record, got %d lines", n)
	}
}
