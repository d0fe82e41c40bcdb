package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"natgas_trading/internal/models"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	temperature REAL NOT NULL,
	inventory REAL NOT NULL,
	storm REAL NOT NULL,
	total REAL NOT NULL,
	action TEXT NOT NULL,
	symbol TEXT NOT NULL,
	confidence REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	executed INTEGER NOT NULL,
	order_id TEXT,
	symbol TEXT,
	side TEXT,
	qty INTEGER,
	status TEXT,
	payload TEXT
);
CREATE TABLE IF NOT EXISTS portfolio (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	equity TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	context TEXT NOT NULL,
	message TEXT NOT NULL
);`

// SQLiteJournal mirrors the journal into a SQLite database for ad-hoc queries.
type SQLiteJournal struct {
	db  *sql.DB
	now func() time.Time
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (or creates) the database at dbPath and its tables.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal %s: %w", dbPath, err)
	}
	// One writer at a time; cycles are sequential anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}
	return &SQLiteJournal{db: db, now: time.Now}, nil
}

func (s *SQLiteJournal) RecordSignal(d models.Decision) error {
	_, err := s.db.Exec(
		`INSERT INTO signals (ts, temperature, inventory, storm, total, action, symbol, confidence) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Timestamp.UTC().Format(time.RFC3339), d.Signals.Temperature, d.Signals.Inventory, d.Signals.Storm,
		d.Total, string(d.Action), d.Symbol, d.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (s *SQLiteJournal) RecordTrade(t *models.TradeResult) error {
	ts := s.now().UTC().Format(time.RFC3339)
	if t == nil {
		_, err := s.db.Exec(`INSERT INTO trades (ts, executed) VALUES (?, 0)`, ts)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		return nil
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO trades (ts, executed, order_id, symbol, side, qty, status, payload) VALUES (?, 1, ?, ?, ?, ?, ?, ?)`,
		ts, t.OrderID, t.Symbol, string(t.Side), t.Qty, t.Status, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *SQLiteJournal) RecordPortfolio(p *models.Portfolio) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO portfolio (ts, equity, payload) VALUES (?, ?, ?)`,
		s.now().UTC().Format(time.RFC3339), p.Equity.String(), string(payload))
	if err != nil {
		return fmt.Errorf("insert portfolio: %w", err)
	}
	return nil
}

func (s *SQLiteJournal) RecordError(context string, err error) error {
	_, dbErr := s.db.Exec(`INSERT INTO errors (ts, context, message) VALUES (?, ?, ?)`,
		s.now().UTC().Format(time.RFC3339), context, errString(err))
	if dbErr != nil {
		return fmt.Errorf("insert error: %w", dbErr)
	}
	return nil
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}
