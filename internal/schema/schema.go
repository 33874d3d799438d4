// Package schema assembles the GraphQL schema of one or more OpenAPI
// documents: root types, link fields, viewers and the resolver table.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vektah/gqlparser/v2/ast"

	"restgraph/internal/apierr"
	"restgraph/internal/diag"
	"restgraph/internal/logging"
	"restgraph/internal/preprocess"
	"restgraph/internal/runtime"
	"restgraph/internal/spec"
	"restgraph/internal/typebuilder"
)

// Root type names.
const (
	QueryType    = "Query"
	MutationType = "Mutation"
)

// Options are the translation options plus the runtime collaborators the
// synthesized resolvers use.
type Options struct {
	preprocess.Options

	// Transport dispatches outbound requests. Nil means plain HTTP.
	Transport runtime.Transport
	// Observer receives one event per dispatch.
	Observer runtime.Observer
	Logger   *slog.Logger
}

// Schema is a translated, validated GraphQL schema.
type Schema struct {
	AST *ast.Schema
	SDL string
	// Resolvers maps type name and field name to the field's resolver.
	Resolvers map[string]map[string]runtime.ResolverFunc
	Data      *preprocess.Data
	Types     *typebuilder.Builder
}

// Resolver returns the resolver of typeName.fieldName.
func (s *Schema) Resolver(typeName, fieldName string) (runtime.ResolverFunc, bool) {
	fn, ok := s.Resolvers[typeName][fieldName]
	return fn, ok
}

// Translate turns docs into a schema. The report collects every non-fatal
// issue; it is returned even when translation fails.
func Translate(ctx context.Context, opts Options, docs ...*spec.Document) (*Schema, *diag.Report, error) {
	logger := logging.Component(opts.Logger, "schema")
	report := &diag.Report{}

	data, err := preprocess.Preprocess(opts.Options, report, opts.Logger, docs...)
	if err != nil {
		return nil, report, err
	}
	types := typebuilder.New(data.Options.Naming, data.Names, report, opts.Logger)
	synth := runtime.NewSynthesizer(data.Options.Settings(), types, opts.Transport, opts.Logger)
	synth.Observer = opts.Observer

	a := newAssembler(data, types, synth, report, logger)
	for _, op := range data.Operations {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		if err := a.addOperation(op); err != nil {
			return nil, report, err
		}
	}
	if err := a.addLinks(); err != nil {
		return nil, report, err
	}
	a.addViewers()

	if err := a.checkRoots(); err != nil {
		return nil, report, err
	}
	doc := a.document()
	sdl := format(doc)
	parsed, err := load(sdl)
	if err != nil {
		return nil, report, apierr.ErrConfiguration.Wrap(fmt.Errorf("generated schema is invalid: %w", err))
	}
	data.Names.Freeze()

	for _, w := range report.Warnings {
		logger.Warn("translation warning", "code", w.Code, "operation", w.Operation, "message", w.Message)
	}
	logger.Info("schema translated",
		"operations", len(data.Operations),
		"query_fields", len(a.query.fields),
		"mutation_fields", len(a.mutation.fields),
		"types", types.Len(),
		"warnings", report.Len())

	return &Schema{
		AST:       parsed,
		SDL:       sdl,
		Resolvers: a.resolvers,
		Data:      data,
		Types:     types,
	}, report, nil
}
