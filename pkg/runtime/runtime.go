// Package runtime wires configuration, the capability set and the sheet
// evaluator together for the CLI and the host server.
package runtime

import (
	"fmt"
	"io"
	"strings"

	"fortio.org/log"

	"github.com/thomasrohde/livecalc/pkg/capabilities"
	"github.com/thomasrohde/livecalc/pkg/config"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/evaluator"
	"github.com/thomasrohde/livecalc/pkg/formatter"
	"github.com/thomasrohde/livecalc/pkg/hostrpc"
	"github.com/thomasrohde/livecalc/pkg/session"
	"github.com/thomasrohde/livecalc/pkg/sheet"
	"github.com/thomasrohde/livecalc/pkg/stdlib"
	"github.com/thomasrohde/livecalc/pkg/validator"
)

// Runtime holds the settings shared by every sheet it evaluates.
type Runtime struct {
	stdlib    *stdlib.Registry
	policy    *capabilities.Policy
	format    sheet.Format
	prefix    string
	cacheSize int
	budget    evaluator.Budget
	filename  string
	trace     func(event evaluator.TraceEvent)
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithStdlib sets the capability registry.
func WithStdlib(r *stdlib.Registry) Option {
	return func(rt *Runtime) {
		rt.stdlib = r
	}
}

// WithPolicy sets the capability policy.
func WithPolicy(p *capabilities.Policy) Option {
	return func(rt *Runtime) {
		rt.policy = p
	}
}

// WithFormat sets the initial display format.
func WithFormat(f sheet.Format) Option {
	return func(rt *Runtime) {
		rt.format = f
	}
}

// WithAnonymousPrefix sets the name prefix of bare expression lines.
func WithAnonymousPrefix(p string) Option {
	return func(rt *Runtime) {
		rt.prefix = p
	}
}

// WithCacheSize sets the compile cache size per sheet; 0 disables caching.
func WithCacheSize(n int) Option {
	return func(rt *Runtime) {
		rt.cacheSize = n
	}
}

// WithBudget sets the evaluation budget.
func WithBudget(b evaluator.Budget) Option {
	return func(rt *Runtime) {
		rt.budget = b
	}
}

// WithFilename sets the file name used in diagnostic spans.
func WithFilename(name string) Option {
	return func(rt *Runtime) {
		rt.filename = name
	}
}

// WithTrace sets the trace callback.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// WithLogTrace sends trace events to the verbose log.
func WithLogTrace() Option {
	return WithTrace(LogTrace)
}

// LogTrace logs one trace event at verbose level.
func LogTrace(ev evaluator.TraceEvent) {
	loc := ""
	if ev.Span != nil {
		loc = fmt.Sprintf(" @%d:%d", ev.Span.StartLine, ev.Span.StartCol)
	}
	if ev.Err != "" {
		log.LogVf("trace %s %s%s: %s", ev.Event, ev.Name, loc, ev.Err)
		return
	}
	log.LogVf("trace %s %s%s", ev.Event, ev.Name, loc)
}

// New creates a Runtime. By default every default builtin is allowed and
// values display in decimal.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		stdlib:    stdlib.Default(),
		policy:    capabilities.AllowAll(),
		format:    sheet.Decimal,
		prefix:    sheet.DefaultAnonymousPrefix,
		cacheSize: config.DefaultCacheSize,
		filename:  sheet.DefaultFilename,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// FromConfig creates a Runtime from cfg. Options are applied after the
// configuration and override it.
func FromConfig(cfg *config.Config, opts ...Option) (*Runtime, error) {
	f, err := sheet.ParseFormat(cfg.Format)
	if err != nil {
		return nil, &config.ValidationError{Path: cfg.Path, Issues: []string{"format: " + err.Error()}}
	}
	budget := evaluator.Budget{MaxStringBytes: cfg.MaxStringBytes}
	if cfg.MaxStringBytes == 0 {
		budget.MaxStringBytes = -1
	}
	policy := capabilities.NewPolicy(cfg.Builtins.Allow, cfg.Builtins.Deny)
	base := []Option{
		WithFormat(f),
		WithAnonymousPrefix(cfg.AnonymousPrefix),
		WithCacheSize(cfg.CacheSize),
		WithBudget(budget),
		WithPolicy(policy),
	}
	rt := New(append(base, opts...)...)
	if err := rt.policy.Validate(rt.stdlib.Names()); err != nil {
		return nil, &config.ValidationError{Path: cfg.Path, Issues: []string{"builtins: " + err.Error()}}
	}
	return rt, nil
}

// ForFile returns a copy of rt that names filename in diagnostics.
func (rt *Runtime) ForFile(filename string) *Runtime {
	cp := *rt
	cp.filename = filename
	return &cp
}

// Format returns the initial display format.
func (rt *Runtime) Format() sheet.Format {
	return rt.format
}

// Capabilities returns the registry entries the policy allows.
func (rt *Runtime) Capabilities() *stdlib.Registry {
	return rt.stdlib.Filter(rt.policy.IsAllowed)
}

// NewEnv creates an empty environment over the allowed capabilities.
func (rt *Runtime) NewEnv() *evaluator.Env {
	return evaluator.NewEnv(rt.Capabilities())
}

// NewCompiler creates a compile cache of the configured size.
func (rt *Runtime) NewCompiler() *sheet.Compiler {
	return sheet.NewCompiler(rt.cacheSize)
}

// SheetOptions returns the evaluation options derived from the runtime.
func (rt *Runtime) SheetOptions() []sheet.Option {
	opts := []sheet.Option{
		sheet.WithAnonymousPrefix(rt.prefix),
		sheet.WithFilename(rt.filename),
		sheet.WithBudget(rt.budget),
	}
	if rt.trace != nil {
		opts = append(opts, sheet.WithTrace(rt.trace))
	}
	return opts
}

// Evaluate runs one pass over lines. A nil env gets a fresh environment.
func (rt *Runtime) Evaluate(lines []string, env *evaluator.Env, f sheet.Format, extra ...sheet.Option) *sheet.Result {
	if env == nil {
		env = rt.NewEnv()
	}
	opts := append(rt.SheetOptions(), extra...)
	return sheet.Evaluate(lines, env, f, opts...)
}

// Check validates lines without evaluating them.
func (rt *Runtime) Check(lines []string) []diagnostics.Diagnostic {
	return validator.Validate(lines, rt.Capabilities(),
		validator.WithFilename(rt.filename),
		validator.WithAnonymousPrefix(rt.prefix))
}

// FormatSheet canonicalizes lines. Lines that do not compile are kept as
// they are and reported in a *DiagnosticError.
func (rt *Runtime) FormatSheet(lines []string) ([]string, error) {
	out, diags := formatter.FormatSheet(lines, rt.filename)
	if len(diags) > 0 {
		return out, &DiagnosticError{Diagnostics: diags}
	}
	return out, nil
}

// NewManager creates a session registry whose sessions use the runtime's
// capabilities and settings. extra options are applied last.
func (rt *Runtime) NewManager(extra ...session.Option) *session.Manager {
	return session.NewManager(append(rt.sessionOptions(), extra...)...)
}

// NewServer creates a host server over in and out.
func (rt *Runtime) NewServer(in io.Reader, out io.Writer) *hostrpc.Server {
	return hostrpc.NewServer(in, out, rt.sessionOptions()...)
}

func (rt *Runtime) sessionOptions() []session.Option {
	return []session.Option{
		session.WithEnvFactory(rt.NewEnv),
		session.WithCacheSize(rt.cacheSize),
		session.WithDefaultFormat(rt.format),
		session.WithSheetOptions(rt.SheetOptions()...),
	}
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}
