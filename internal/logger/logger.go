package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Rotator implements io.Writer and handles log file rotation based on size.
type Rotator struct {
	Filename   string
	MaxSize    int64 // Bytes
	MaxBackups int
	file       *os.File
	size       int64
	mu         sync.Mutex
}

// NewRotator opens (or creates) filename for appending.
func NewRotator(filename string, maxSizeMB int64, maxBackups int) (*Rotator, error) {
	r := &Rotator{
		Filename:   filename,
		MaxSize:    maxSizeMB * 1024 * 1024,
		MaxBackups: maxBackups,
	}
	if err := r.openExistingOrNew(); err != nil {
		return nil, err
	}
	return r, nil
}

// Setup points the global zerolog logger at stdout (human readable) and a
// size-rotated file (JSON). The standard library logger is redirected too.
// If the file cannot be opened, logging continues on stdout only.
func Setup(filename string, maxSizeMB int64, maxBackups int, level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var out io.Writer = console

	rotator, err := NewRotator(filename, maxSizeMB, maxBackups)
	if err == nil {
		out = zerolog.MultiLevelWriter(console, rotator)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	if err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("Failed to open log file, using stdout only")
	}
}

// ParseLevel maps debug|info|warn|error (any case) to a zerolog level; anything else is info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (r *Rotator) openExistingOrNew() error {
	info, err := os.Stat(r.Filename)
	if os.IsNotExist(err) {
		return r.openNew()
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) openNew() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// Write satisfies the io.Writer interface. It checks size and rotates if needed.
func (r *Rotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err = r.openExistingOrNew(); err != nil {
			return 0, err
		}
	}

	if r.size > 0 && r.size+int64(len(p)) > r.MaxSize {
		if err := r.rotate(); err != nil {
			// Keep writing to whatever is open rather than dropping the line.
			fmt.Fprintf(os.Stderr, "Log rotation failed: %v\n", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the current file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate closes the current file, shifts backups (log.2 -> log.3, log.1 ->
// log.2, log -> log.1) and opens a fresh file. The oldest backup is overwritten.
func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	if r.MaxBackups < 1 {
		return r.openNew()
	}

	for i := r.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.Filename, i)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		newPath := fmt.Sprintf("%s.%d", r.Filename, i+1)
		if err := os.Rename(oldPath, newPath); err != nil {
			fmt.Fprintf(os.Stderr, "Log backup shift %s -> %s failed: %v\n", oldPath, newPath, err)
		}
	}

	if _, err := os.Stat(r.Filename); err == nil {
		if err := os.Rename(r.Filename, r.Filename+".1"); err != nil {
			return err
		}
	}

	return r.openNew()
}
