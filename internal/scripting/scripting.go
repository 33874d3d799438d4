// Package scripting compiles custom resolver overrides written in
// JavaScript or TypeScript. A script defines
//
//	function resolve(parent, args, context) { ... }
//
// and returns the field value. TypeScript is transpiled with esbuild; every
// call runs in a fresh goja VM.
package scripting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"restgraph/internal/apierr"
	"restgraph/internal/config"
	"restgraph/internal/logging"
	"restgraph/internal/runtime"
)

const entryPoint = "resolve"

// DefaultTimeout bounds a single script call.
const DefaultTimeout = 10 * time.Second

// Script is one compiled override.
type Script struct {
	name    string
	program *goja.Program
	timeout time.Duration
	logger  *slog.Logger
}

// transpile turns TypeScript into plain JavaScript. Top-level declarations
// are kept so resolve stays a global.
func transpile(name, source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ES2020,
		Sourcefile: name,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		var errs []string
		for _, e := range result.Errors {
			errs = append(errs, e.Text)
		}
		return "", fmt.Errorf("transpile errors: %s", strings.Join(errs, "; "))
	}
	return string(result.Code), nil
}

// New compiles source. language is "javascript" or "typescript".
func New(name, language, source string, timeout time.Duration, logger *slog.Logger) (*Script, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	js := source
	switch language {
	case "", "javascript":
	case "typescript":
		out, err := transpile(name, source)
		if err != nil {
			return nil, apierr.Configuration("%s: %w", name, err)
		}
		js = out
	default:
		return nil, apierr.Configuration("%s: unsupported language %q", name, language)
	}

	program, err := goja.Compile(name, js, false)
	if err != nil {
		return nil, apierr.Configuration("%s: %w", name, err)
	}
	s := &Script{name: name, program: program, timeout: timeout, logger: logger}

	// Catch a missing entry point at load time rather than on first call.
	if _, _, err := s.load(); err != nil {
		return nil, apierr.ErrConfiguration.Wrap(err)
	}
	return s, nil
}

func (s *Script) load() (*goja.Runtime, goja.Callable, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	registerConsole(vm, s.logger.With("script", s.name))
	if _, err := vm.RunProgram(s.program); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", s.name, err)
	}
	fn, ok := goja.AssertFunction(vm.Get(entryPoint))
	if !ok {
		return nil, nil, fmt.Errorf("%s: script must define a function named %q", s.name, entryPoint)
	}
	return vm, fn, nil
}

// Call runs the script's resolve function. The result is normalized to
// the JSON value model used by the dispatch runtime.
func (s *Script) Call(ctx context.Context, parent any, args map[string]any, caller any) (any, error) {
	vm, fn, err := s.load()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()
	timer := time.AfterFunc(s.timeout, func() { vm.Interrupt(fmt.Errorf("execution timeout after %s", s.timeout)) })
	defer timer.Stop()

	res, err := fn(goja.Undefined(), vm.ToValue(parent), vm.ToValue(args), vm.ToValue(caller))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, fmt.Errorf("%s: %w", s.name, cause)
			}
		}
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	if p, ok := res.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			res = p.Result()
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("%s: promise rejected: %s", s.name, p.Result().String())
		default:
			return nil, fmt.Errorf("%s: promise did not settle", s.name)
		}
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return normalize(res.Export())
}

// normalize round-trips v through JSON so numbers become float64 and
// objects map[string]any, matching decoded upstream responses.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("script result is not JSON-serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolver adapts the script to a field resolver. The parent's branch is
// passed through unchanged.
func (s *Script) Resolver() runtime.ResolverFunc {
	return func(p runtime.ResolveParams) (runtime.Resolved, error) {
		ctx := p.Context
		if ctx == nil {
			ctx = context.Background()
		}
		data, err := s.Call(ctx, p.Source, p.Args, p.Caller)
		if err != nil {
			return runtime.Resolved{}, apierr.Field(p.Path, err)
		}
		branch := p.SourceBranch
		if branch == nil {
			branch = runtime.NewBranch()
		}
		return runtime.Resolved{Data: data, Branch: branch}, nil
	}
}

// Compile builds the override table for preprocess.Options.CustomResolvers.
// Relative script files are resolved against baseDir.
func Compile(resolvers []config.CustomResolver, baseDir string, logger *slog.Logger) (map[string]map[string]map[string]runtime.ResolverFunc, error) {
	logger = logging.Component(logger, "scripting")
	out := map[string]map[string]map[string]runtime.ResolverFunc{}
	for _, r := range resolvers {
		source := r.Source
		name := fmt.Sprintf("%s %s %s", r.Title, strings.ToUpper(r.Method), r.Path)
		if r.File != "" {
			path := r.File
			if !filepath.IsAbs(path) && baseDir != "" {
				path = filepath.Join(baseDir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, apierr.Configuration("custom resolver %s: %w", name, err)
			}
			source = string(data)
			name = filepath.Base(path)
		}
		script, err := New(name, r.Language, source, DefaultTimeout, logger)
		if err != nil {
			return nil, err
		}

		byPath, ok := out[r.Title]
		if !ok {
			byPath = map[string]map[string]runtime.ResolverFunc{}
			out[r.Title] = byPath
		}
		byMethod, ok := byPath[r.Path]
		if !ok {
			byMethod = map[string]runtime.ResolverFunc{}
			byPath[r.Path] = byMethod
		}
		byMethod[strings.ToUpper(r.Method)] = script.Resolver()
		logger.Debug("compiled custom resolver", "title", r.Title, "method", r.Method, "path", r.Path, "language", r.Language)
	}
	return out, nil
}

// registerConsole routes console.log/warn/error to the logger.
func registerConsole(vm *goja.Runtime, logger *slog.Logger) {
	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		logger.Info(formatJSArgs(call))
		return goja.Undefined()
	})
	console.Set("warn", func(call goja.FunctionCall) goja.Value {
		logger.Warn(formatJSArgs(call))
		return goja.Undefined()
	})
	console.Set("error", func(call goja.FunctionCall) goja.Value {
		logger.Error(formatJSArgs(call))
		return goja.Undefined()
	})
	vm.Set("console", console)
}

func formatJSArgs(call goja.FunctionCall) string {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		switch {
		case goja.IsUndefined(arg):
			parts[i] = "undefined"
		case goja.IsNull(arg):
			parts[i] = "null"
		default:
			exported := arg.Export()
			if s, ok := exported.(string); ok {
				parts[i] = s
			} else if b, err := json.Marshal(exported); err == nil {
				parts[i] = string(b)
			} else {
				parts[i] = arg.String()
			}
		}
	}
	return strings.Join(parts, " ")
}
