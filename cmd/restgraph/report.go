package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"restgraph/internal/diag"
)

const (
	colorReset  = "\033[0m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorDim    = "\033[2m"
)

func paint(s, c string, color bool) string {
	if !color {
		return s
	}
	return c + s + colorReset
}

// printReport writes one line per warning followed by a per-category
// summary.
func printReport(w io.Writer, report *diag.Report, color bool) {
	if report == nil || report.Len() == 0 {
		return
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "%s %s\n", paint("warning:", colorYellow, color), warning)
	}
	counts := report.Counts()
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	summary := fmt.Sprintf("%d warning(s):", report.Len())
	for _, c := range categories {
		summary += fmt.Sprintf(" %s=%d", c, counts[diag.WarningCategory(c)])
	}
	fmt.Fprintln(w, paint(summary, colorDim, color))
}

// validateQuery parses and validates the query document at path.
func validateQuery(schema *ast.Schema, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}
	if _, errs := gqlparser.LoadQuery(schema, string(data)); len(errs) > 0 {
		return errs
	}
	return nil
}

func printQueryError(w io.Writer, path string, err error, color bool) {
	var list gqlerror.List
	if !errors.As(err, &list) {
		fmt.Fprintf(w, "%s %s: %v\n", paint("error:", colorRed, color), path, err)
		return
	}
	for _, e := range list {
		loc := path
		if len(e.Locations) > 0 {
			loc = fmt.Sprintf("%s:%d:%d", path, e.Locations[0].Line, e.Locations[0].Column)
		}
		fmt.Fprintf(w, "%s %s: %s\n", paint("error:", colorRed, color), loc, e.Message)
	}
}
