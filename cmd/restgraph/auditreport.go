package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"restgraph/internal/audit"
	"restgraph/internal/config"
	"restgraph/internal/metrics"
	"restgraph/internal/redact"
)

// auditSummary is the JSON form of -audit-report.
type auditSummary struct {
	DBPath      string           `json:"db_path"`
	Operation   string           `json:"operation,omitempty"`
	Since       *time.Time       `json:"since,omitempty"`
	Stats       *audit.Stats     `json:"stats"`
	Operations  map[string]int64 `json:"operations"`
	StatusCodes map[int]int64    `json:"status_codes"`
	Recent      []audit.Event    `json:"recent"`
}

// auditReport summarizes the audit trail the config points at. Stored
// events are replayed through a metrics collector for the per-operation
// and per-status counts, or for the Prometheus text output.
func auditReport(ctx context.Context, cfg *config.Config, baseDir string, o *options, w io.Writer) error {
	if cfg.Audit == nil {
		return errors.New("the config has no audit section")
	}
	dbPath := resolvePath(baseDir, cfg.Audit.DBPath)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	auditLog, err := audit.NewLogger(dbPath, redact.New(cfg.Secrets()...))
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer auditLog.Close()

	filter := audit.QueryOptions{Operation: o.auditOperation}
	if o.auditSince > 0 {
		filter.StartTime = time.Now().Add(-o.auditSince)
	}
	collector := metrics.NewCollector()
	if _, err := auditLog.Replay(ctx, filter, collector); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if o.auditFormat == "prometheus" {
		_, err := io.WriteString(w, collector.PrometheusFormat())
		return err
	}

	stats, err := auditLog.GetStats(o.auditOperation, filter.StartTime)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	recent := []audit.Event{}
	if o.auditLimit > 0 {
		filter.Limit = o.auditLimit
		events, err := auditLog.Query(filter)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		recent = append(recent, events...)
	}
	snap := collector.Snapshot()
	summary := auditSummary{
		DBPath:      dbPath,
		Operation:   o.auditOperation,
		Stats:       stats,
		Operations:  snap.OperationRequests,
		StatusCodes: snap.StatusCodes,
		Recent:      recent,
	}
	if !filter.StartTime.IsZero() {
		since := filter.StartTime.UTC()
		summary.Since = &since
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
