package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"restgraph/internal/runtime"
)

const (
	defaultQueryLimit = 100
	replayPageSize    = 500
)

// QueryOptions filters Query. Zero values do not filter.
type QueryOptions struct {
	Operation string
	Method    string
	StartTime time.Time
	EndTime   time.Time
	Success   *bool
	Limit     int
	Offset    int
	OrderBy   string // "timestamp" (default) or "duration_ms"
	OrderDir  string // "DESC" (default) or "ASC"
}

// Stats aggregates the events matched by GetStats.
type Stats struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	ErrorRate          float64 `json:"error_rate"`
	AvgDurationMs      int64   `json:"avg_duration_ms"`
	MaxDurationMs      int64   `json:"max_duration_ms"`
	MinDurationMs      int64   `json:"min_duration_ms"`
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Query returns stored events. Events still waiting for a flush are not
// visible.
func (l *Logger) Query(opts QueryOptions) ([]Event, error) {
	var w where
	if opts.Operation != "" {
		w.add("operation = ?", opts.Operation)
	}
	if opts.Method != "" {
		w.add("method = ?", opts.Method)
	}
	if !opts.StartTime.IsZero() {
		w.add("timestamp >= ?", opts.StartTime.UTC())
	}
	if !opts.EndTime.IsZero() {
		w.add("timestamp <= ?", opts.EndTime.UTC())
	}
	if opts.Success != nil {
		w.add("success = ?", *opts.Success)
	}

	// Only whitelisted identifiers reach the ORDER BY clause.
	column, dir := "timestamp", "DESC"
	if opts.OrderBy == "duration_ms" {
		column = "duration_ms"
	}
	if strings.EqualFold(opts.OrderDir, "ASC") {
		dir = "ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	q := "SELECT id, timestamp, operation, method, url, duration_ms, status_code, success, error_msg FROM dispatch_events" +
		w.String() +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d OFFSET %d", column, dir, dir, limit, opts.Offset)

	l.dbMu.Lock()
	defer l.dbMu.Unlock()
	rows, err := l.db.Query(q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var errMsg sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Operation, &ev.Method, &ev.URL,
			&ev.DurationMs, &ev.StatusCode, &ev.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.ErrorMsg = errMsg.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetStats aggregates events since the given time, restricted to one
// operation when operation is set. Zero durations are left out of the
// average and the minimum.
func (l *Logger) GetStats(operation string, since time.Time) (*Stats, error) {
	var w where
	if operation != "" {
		w.add("operation = ?", operation)
	}
	if !since.IsZero() {
		w.add("timestamp >= ?", since.UTC())
	}
	q := `SELECT
		COUNT(*),
		COALESCE(SUM(success = 1), 0),
		COALESCE(SUM(success = 0), 0),
		AVG(NULLIF(duration_ms, 0)),
		COALESCE(MAX(duration_ms), 0),
		MIN(NULLIF(duration_ms, 0))
	FROM dispatch_events` + w.String()

	l.dbMu.Lock()
	defer l.dbMu.Unlock()
	var s Stats
	var avg, minDur sql.NullFloat64
	if err := l.db.QueryRow(q, w.args...).Scan(&s.TotalRequests, &s.SuccessfulRequests,
		&s.FailedRequests, &avg, &s.MaxDurationMs, &minDur); err != nil {
		return nil, fmt.Errorf("query audit stats: %w", err)
	}
	s.AvgDurationMs = int64(avg.Float64)
	s.MinDurationMs = int64(minDur.Float64)
	if s.TotalRequests > 0 {
		s.ErrorRate = float64(s.FailedRequests) / float64(s.TotalRequests) * 100
	}
	return &s, nil
}

// Replay feeds the stored events matching opts to obs, oldest first.
// Limit, Offset and ordering in opts are ignored. It returns the number
// of events replayed.
func (l *Logger) Replay(ctx context.Context, opts QueryOptions, obs runtime.Observer) (int, error) {
	opts.OrderBy, opts.OrderDir = "timestamp", "ASC"
	opts.Limit = replayPageSize
	n := 0
	for offset := 0; ; offset += replayPageSize {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		opts.Offset = offset
		page, err := l.Query(opts)
		if err != nil {
			return n, err
		}
		for _, ev := range page {
			obs.Observe(ctx, ev.dispatch())
		}
		n += len(page)
		if len(page) < replayPageSize {
			return n, nil
		}
	}
}

// dispatch converts a stored event back to the observer form. Stored
// error messages are already redacted.
func (e Event) dispatch() runtime.Event {
	out := runtime.Event{
		Operation:  e.Operation,
		Method:     e.Method,
		URL:        e.URL,
		StatusCode: e.StatusCode,
		Duration:   time.Duration(e.DurationMs) * time.Millisecond,
		At:         e.Timestamp,
	}
	if e.ErrorMsg != "" {
		out.Err = errors.New(e.ErrorMsg)
	}
	return out
}
