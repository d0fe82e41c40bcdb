package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"natgas_trading/internal/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Journal file names under the journal directory.
const (
	SignalsFile   = "signals.log"
	TradesFile    = "trades.log"
	PortfolioFile = "portfolio.log"
	ErrorsFile    = "errors.log"
)

// FileJournal writes one JSON object per line to a file per event kind.
type FileJournal struct {
	dir   string
	mu    sync.Mutex
	files map[string]*journalFile
	now   func() time.Time
}

// journalFile remembers the last write error so a lost record is reported
// to the caller instead of only to zerolog's error handler.
type journalFile struct {
	f   *os.File
	log zerolog.Logger
	err error
}

func (jf *journalFile) Write(p []byte) (int, error) {
	n, err := jf.f.Write(p)
	if err != nil {
		jf.err = err
	}
	return n, err
}

var _ Journal = (*FileJournal)(nil)

// NewFileJournal creates dir if needed. Files are opened lazily in append mode.
func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
	}
	return &FileJournal{
		dir:     dir,
		files: make(map[string]*journalFile),
		now:   time.Now,
	}, nil
}

func (j *FileJournal) RecordSignal(d models.Decision) error {
	return j.write(SignalsFile, func(e *zerolog.Event) {
		e.Time("timestamp", d.Timestamp).
			Float64("temperature_signal", d.Signals.Temperature).
			Float64("inventory_signal", d.Signals.Inventory).
			Float64("storm_signal", d.Signals.Storm).
			Float64("total_signal", d.Total).
			Str("action", string(d.Action)).
			Str("symbol", d.Symbol).
			Float64("confidence", d.Confidence)
	})
}

func (j *FileJournal) RecordTrade(t *models.TradeResult) error {
	if t == nil {
		log.Info().Msg("No trade executed")
	}
	return j.write(TradesFile, func(e *zerolog.Event) {
		e.Time("timestamp", j.now().UTC()).
			Bool("executed", t != nil).
			Interface("trade", t)
	})
}

func (j *FileJournal) RecordPortfolio(p *models.Portfolio) error {
	return j.write(PortfolioFile, func(e *zerolog.Event) {
		e.Time("timestamp", j.now().UTC()).Interface("portfolio", p)
	})
}

func (j *FileJournal) RecordError(context string, err error) error {
	return j.write(ErrorsFile, func(e *zerolog.Event) {
		e.Time("timestamp", j.now().UTC()).
			Str("context", context).
			Str("error_type", fmt.Sprintf("%T", err)).
			Str("error_message", errString(err))
	})
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for name, jf := range j.files {
		if err := jf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
		delete(j.files, name)
	}
	return firstErr
}

func (j *FileJournal) write(name string, fill func(e *zerolog.Event)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jf, ok := j.files[name]
	if !ok {
		path := filepath.Join(j.dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Error opening journal file")
			return fmt.Errorf("open %s: %w", path, err)
		}
		jf = &journalFile{f: f}
		jf.log = zerolog.New(jf)
		j.files[name] = jf
	}

	jf.err = nil
	e := jf.log.Log()
	fill(e)
	e.Send()
	if jf.err != nil {
		return fmt.Errorf("write %s: %w", name, jf.err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
