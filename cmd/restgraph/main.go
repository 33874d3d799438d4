// Command restgraph translates OpenAPI documents into a GraphQL schema,
// prints the SDL and the warning report, and optionally validates query
// documents against the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"restgraph/internal/config"
	"restgraph/internal/logging"
)

// Version is set via -ldflags at build time
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	color := term.IsTerminal(int(os.Stderr.Fd()))
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, color))
}

type options struct {
	configPath  string
	configToken string
	specs       stringList
	queries     stringList
	out         string
	quiet       bool
	validate    bool
	version     bool

	auditReport    bool
	auditOperation string
	auditSince     time.Duration
	auditLimit     int
	auditFormat    string
}

type stringList []string

func (l *stringList) String() string     { return fmt.Sprint(*l) }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("restgraph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path or http(s) URL of the YAML config")
	fs.StringVar(&o.configToken, "config-token", os.Getenv("RESTGRAPH_CONFIG_TOKEN"), "Bearer token for a remote config (defaults to RESTGRAPH_CONFIG_TOKEN)")
	fs.Var(&o.specs, "spec", "OpenAPI document to translate when no config is given (repeatable)")
	fs.Var(&o.queries, "query", "GraphQL query document to validate against the schema (repeatable)")
	fs.StringVar(&o.out, "out", "", "Write the SDL to this file instead of stdout")
	fs.BoolVar(&o.quiet, "quiet", false, "Do not print the SDL")
	fs.BoolVar(&o.validate, "validate-config", false, "Validate the config file and exit")
	fs.BoolVar(&o.version, "version", false, "Show version information")
	fs.BoolVar(&o.auditReport, "audit-report", false, "Summarize the audit trail named by -config and exit")
	fs.StringVar(&o.auditOperation, "audit-operation", "", "Restrict the audit report to one operation")
	fs.DurationVar(&o.auditSince, "audit-since", 0, "Only report events newer than this (e.g. 24h)")
	fs.IntVar(&o.auditLimit, "audit-limit", 20, "Number of recent events listed in the audit report")
	fs.StringVar(&o.auditFormat, "audit-format", "json", "Audit report format: json or prometheus")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.version || o.validate {
		return &o, nil
	}
	if o.auditReport {
		if o.configPath == "" {
			return nil, errors.New("-audit-report needs -config")
		}
		if o.auditFormat != "json" && o.auditFormat != "prometheus" {
			return nil, fmt.Errorf("-audit-format must be json or prometheus, got %q", o.auditFormat)
		}
		return &o, nil
	}
	if o.configPath == "" && len(o.specs) == 0 {
		return nil, errors.New("either -config or at least one -spec is required")
	}
	if o.configPath != "" && len(o.specs) > 0 {
		return nil, errors.New("-config and -spec are mutually exclusive")
	}
	return &o, nil
}

// run returns the process exit code: 0 on success, 1 when translation or
// query validation fails, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, color bool) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "restgraph: %v\n", err)
		}
		return 2
	}
	if o.version {
		fmt.Fprintf(stdout, "restgraph %s\n", Version)
		return 0
	}
	if o.validate {
		if err := validateConfig(o.configPath); err != nil {
			fmt.Fprintf(stderr, "restgraph: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "config ok")
		return 0
	}

	cfg, baseDir, err := loadConfig(ctx, o)
	if err != nil {
		fmt.Fprintf(stderr, "restgraph: %v\n", err)
		return 1
	}
	if o.auditReport {
		if err := auditReport(ctx, cfg, baseDir, o, stdout); err != nil {
			fmt.Fprintf(stderr, "restgraph: %v\n", err)
			return 1
		}
		return 0
	}
	logger := logging.New(stderr, cfg.Log.Format, cfg.Log.Level)

	b, err := newBuild(ctx, cfg, baseDir, logger)
	if err != nil {
		fmt.Fprintf(stderr, "restgraph: %v\n", err)
		return 1
	}
	defer b.Close()

	s, report, err := b.translate(ctx)
	printReport(stderr, report, color)
	if err != nil {
		fmt.Fprintf(stderr, "restgraph: %v\n", err)
		return 1
	}

	if !o.quiet {
		if o.out != "" {
			if err := os.WriteFile(o.out, []byte(s.SDL), 0o644); err != nil {
				fmt.Fprintf(stderr, "restgraph: write sdl: %v\n", err)
				return 1
			}
		} else {
			fmt.Fprint(stdout, s.SDL)
		}
	}

	failed := false
	for _, path := range o.queries {
		if err := validateQuery(s.AST, path); err != nil {
			printQueryError(stderr, path, err, color)
			failed = true
		}
	}
	if failed {
		return 1
	}
	return 0
}

// loadConfig reads the config from a file or URL, or builds one from
// -spec flags. baseDir anchors relative script files.
func loadConfig(ctx context.Context, o *options) (*config.Config, string, error) {
	if o.configPath == "" {
		cfg := &config.Config{}
		for _, s := range o.specs {
			cfg.Specs = append(cfg.Specs, config.SpecSource{File: s})
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	data, err := config.Read(ctx, o.configPath, o.configToken)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, "", err
	}
	if config.IsRemote(o.configPath) {
		return cfg, "", nil
	}
	return cfg, filepath.Dir(o.configPath), nil
}

func validateConfig(path string) error {
	if path == "" {
		return errors.New("-validate-config needs -config")
	}
	data, err := config.Read(context.Background(), path, "")
	if err != nil {
		return err
	}
	return config.Check(data)
}
