// Package audit persists dispatch events to SQLite and reads them back
// for reports.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"restgraph/internal/redact"
	"restgraph/internal/runtime"
)

const (
	flushEvery    = 5 * time.Second
	flushAtEvents = 100
)

const ddl = `
CREATE TABLE IF NOT EXISTS dispatch_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   DATETIME NOT NULL,
	operation   TEXT NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	duration_ms INTEGER,
	status_code INTEGER,
	success     BOOLEAN NOT NULL,
	error_msg   TEXT,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_dispatch_timestamp ON dispatch_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_dispatch_operation ON dispatch_events(operation);
`

// Event is one audited dispatch. Request and response bodies are never
// recorded.
type Event struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	DurationMs int64     `json:"duration_ms"`
	StatusCode int       `json:"status_code,omitempty"`
	Success    bool      `json:"success"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
}

// Logger batches dispatch events into SQLite. It implements
// runtime.Observer.
type Logger struct {
	db       *sql.DB
	dbMu     sync.Mutex
	redactor *redact.Redactor

	pendingMu sync.Mutex
	pending   []Event

	stop chan struct{}
	done chan struct{}
}

// NewLogger opens or creates the database at dbPath. Error messages are
// passed through redactor before they are stored.
func NewLogger(dbPath string, redactor *redact.Redactor) (*Logger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	l := &Logger{
		db:       db,
		redactor: redactor,
		pending:  make([]Event, 0, flushAtEvents),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.flushLoop()
	return l, nil
}

// Observe records one dispatch.
func (l *Logger) Observe(_ context.Context, e runtime.Event) {
	ev := Event{
		Timestamp:  e.At,
		Operation:  e.Operation,
		Method:     e.Method,
		URL:        e.URL,
		DurationMs: e.Duration.Milliseconds(),
		StatusCode: e.StatusCode,
		Success:    e.Err == nil && e.StatusCode/100 == 2,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if e.Err != nil {
		ev.ErrorMsg = l.redactor.Redact(e.Err.Error())
	}

	l.pendingMu.Lock()
	l.pending = append(l.pending, ev)
	full := len(l.pending) >= flushAtEvents
	l.pendingMu.Unlock()
	if full {
		go l.Flush()
	}
}

// Flush writes every pending event in one transaction.
func (l *Logger) Flush() error {
	l.pendingMu.Lock()
	batch := l.pending
	l.pending = make([]Event, 0, flushAtEvents)
	l.pendingMu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	l.dbMu.Lock()
	defer l.dbMu.Unlock()
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO dispatch_events
		(timestamp, operation, method, url, duration_ms, status_code, success, error_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}
	defer stmt.Close()
	for _, ev := range batch {
		if _, err := stmt.Exec(ev.Timestamp.UTC(), ev.Operation, ev.Method, ev.URL,
			ev.DurationMs, ev.StatusCode, ev.Success, ev.ErrorMsg); err != nil {
			return fmt.Errorf("audit flush: %w", err)
		}
	}
	return tx.Commit()
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = l.Flush()
		case <-l.stop:
			return
		}
	}
}

// Close stops the periodic flush, writes what is pending and closes the
// database.
func (l *Logger) Close() error {
	close(l.stop)
	<-l.done
	if err := l.Flush(); err != nil {
		l.db.Close()
		return err
	}
	return l.db.Close()
}
