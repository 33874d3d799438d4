package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"restgraph/internal/audit"
	"restgraph/internal/circuitbreaker"
	"restgraph/internal/config"
	"restgraph/internal/diag"
	"restgraph/internal/ratelimit"
	"restgraph/internal/redact"
	"restgraph/internal/runtime"
	"restgraph/internal/schema"
	"restgraph/internal/scripting"
	"restgraph/internal/spec"
)

// build holds everything a translation needs, derived from one config.
type build struct {
	cfg     *config.Config
	baseDir string
	logger  *slog.Logger

	docs     []*spec.Document
	opts     schema.Options
	auditLog *audit.Logger
	redactor *redact.Redactor
}

func newBuild(ctx context.Context, cfg *config.Config, baseDir string, logger *slog.Logger) (*build, error) {
	b := &build{
		cfg:      cfg,
		baseDir:  baseDir,
		logger:   logger,
		redactor: redact.New(cfg.Secrets()...),
	}

	docs, err := b.loadSpecs(ctx)
	if err != nil {
		return nil, err
	}
	b.docs = docs

	opts := cfg.Options()
	if len(cfg.CustomResolvers) > 0 {
		table, err := scripting.Compile(cfg.CustomResolvers, baseDir, logger)
		if err != nil {
			return nil, err
		}
		opts.CustomResolvers = table
	}

	var observers []runtime.Observer
	if cfg.Audit != nil {
		auditLog, err := audit.NewLogger(b.path(cfg.Audit.DBPath), b.redactor)
		if err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
		b.auditLog = auditLog
		observers = append(observers, auditLog)
	}

	b.opts = schema.Options{
		Options:   opts,
		Transport: b.transport(),
		Observer:  runtime.Observers(observers...),
		Logger:    logger,
	}
	return b, nil
}

// transport stacks the configured decorators over plain HTTP. The breaker
// is outermost so an open circuit never waits on the rate limiter.
func (b *build) transport() runtime.Transport {
	t := b.cfg.Transport
	var tr runtime.Transport = runtime.NewHTTPTransport(t.Timeout())
	if t.RateLimitPerSecond > 0 || t.RateLimitPerMinute > 0 {
		tr = runtime.WithRateLimit(tr, ratelimit.NewRegistry(t.RateLimitPerSecond, t.Burst, t.RateLimitPerMinute))
	}
	if t.BreakerFailures > 0 {
		tr = runtime.WithCircuitBreaker(tr, circuitbreaker.NewRegistry(t.BreakerFailures, t.BreakerCooldown()))
	}
	return tr
}

// loadSpecs loads every configured document concurrently, keeping config
// order in the result.
func (b *build) loadSpecs(ctx context.Context) ([]*spec.Document, error) {
	docs := make([]*spec.Document, len(b.cfg.Specs))
	fetcher := spec.NewFetcher(30 * time.Second)
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range b.cfg.Specs {
		g.Go(func() error {
			var (
				doc *spec.Document
				err error
			)
			if src.URL != "" {
				header := http.Header{}
				for k, v := range src.Headers {
					header.Set(k, v)
				}
				doc, err = fetcher.LoadURL(gctx, src.URL, header)
				if err != nil {
					return fmt.Errorf("specs[%d] %s: %w", i, b.redactor.URL(src.URL), err)
				}
			} else {
				doc, err = spec.LoadFile(gctx, b.path(src.File))
				if err != nil {
					return fmt.Errorf("specs[%d] %s: %w", i, src.File, err)
				}
			}
			doc.BaseURL = src.BaseURL
			docs[i] = doc
			b.logger.Debug("loaded spec", "title", doc.Title(), "format", doc.Format, "paths", len(doc.PathOrder))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *build) path(p string) string {
	return resolvePath(b.baseDir, p)
}

// resolvePath anchors a relative config path at baseDir.
func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

func (b *build) translate(ctx context.Context) (*schema.Schema, *diag.Report, error) {
	return schema.Translate(ctx, b.opts, b.docs...)
}

func (b *build) Close() error {
	if b.auditLog != nil {
		return b.auditLog.Close()
	}
	return nil
}
