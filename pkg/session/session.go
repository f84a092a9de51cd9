// Package session keeps one environment and display state per open document
// and drives evaluation passes for a host editor.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"fortio.org/log"

	"github.com/thomasrohde/livecalc/pkg/evaluator"
	"github.com/thomasrohde/livecalc/pkg/sheet"
	"github.com/thomasrohde/livecalc/pkg/stdlib"
)

// ErrUnknownSession is returned for operations on a document that is not open.
var ErrUnknownSession = errors.New("unknown session")

// Style tells the host how to draw a rendered line annotation.
type Style int

const (
	StyleValue Style = iota
	StyleError
)

func (s Style) String() string {
	if s == StyleError {
		return "error"
	}
	return "value"
}

// Renderer draws per-line annotations in the host.
type Renderer interface {
	// ClearRenders removes every annotation of a document. It is called
	// before each pass.
	ClearRenders(id string)
	Render(id string, line int, text string, style Style)
}

// Notifier shows a short status message to the user.
type Notifier interface {
	Notify(id, message string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithRenderer sets the renderer called after every pass.
func WithRenderer(r Renderer) Option {
	return func(m *Manager) { m.renderer = r }
}

// WithNotifier sets the notifier called after format changes.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithEnvFactory sets how a new session's environment is built.
func WithEnvFactory(f func() *evaluator.Env) Option {
	return func(m *Manager) { m.newEnv = f }
}

// WithCacheSize sets the per-session compile cache size.
func WithCacheSize(n int) Option {
	return func(m *Manager) { m.cacheSize = n }
}

// WithDefaultFormat sets the format of newly opened sessions.
func WithDefaultFormat(f sheet.Format) Option {
	return func(m *Manager) { m.format = f }
}

// WithSheetOptions adds options passed to every evaluation pass.
func WithSheetOptions(opts ...sheet.Option) Option {
	return func(m *Manager) { m.sheetOpts = append(m.sheetOpts, opts...) }
}

// Manager is the registry of open sessions keyed by opaque document id.
// Sessions live until Close; nothing is reclaimed implicitly.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	renderer  Renderer
	notifier  Notifier
	newEnv    func() *evaluator.Env
	cacheSize int
	format    sheet.Format
	sheetOpts []sheet.Option
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		newEnv:    func() *evaluator.Env { return evaluator.NewEnv(stdlib.Default()) },
		cacheSize: 256,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session is the state of one document: its environment, format, last lines
// and last pass result. Passes on a session are serialized.
type Session struct {
	id       string
	mu       sync.Mutex
	env      *evaluator.Env
	compiler *sheet.Compiler
	format   sheet.Format
	lines    []string
	last     *sheet.Result
	closed   bool
}

// ID returns the document id.
func (s *Session) ID() string {
	return s.id
}

// Open returns the session for id, creating it if needed.
func (m *Manager) Open(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &Session{
		id:       id,
		env:      m.newEnv(),
		compiler: sheet.NewCompiler(m.cacheSize),
		format:   m.format,
	}
	m.sessions[id] = s
	log.Infof("session %q opened", id)
	return s
}

// Close discards the session for id and reports whether it existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	// Wait for a running pass so its renders are cleared too.
	s.mu.Lock()
	s.closed = true
	if m.renderer != nil {
		m.renderer.ClearRenders(id)
	}
	s.mu.Unlock()
	log.Infof("session %q closed", id)
	return true
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return s, nil
}

// lock returns the open session for id with its mutex held.
func (m *Manager) lock(id string) (*Session, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return s, nil
}

// Sessions returns the sorted ids of open sessions.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnContentChanged runs a pass over the full new content of document id,
// opening the session first if needed, and renders the outcome.
func (m *Manager) OnContentChanged(id string, lines []string) (*sheet.Result, error) {
	s := m.Open(id)
	s.mu.Lock()
	for s.closed {
		// Closed after Open returned it; the change belongs to a new session.
		s.mu.Unlock()
		s = m.Open(id)
		s.mu.Lock()
	}
	defer s.mu.Unlock()
	s.lines = append([]string(nil), lines...)
	return m.pass(s), nil
}

// SetFormat changes the display format of id and re-runs the last pass.
func (m *Manager) SetFormat(id string, f sheet.Format) (*sheet.Result, error) {
	s, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return m.changeFormat(s, f), nil
}

// ToggleFormat flips the display format of id between decimal and hex and
// re-runs the last pass. It returns the new format.
func (m *Manager) ToggleFormat(id string) (sheet.Format, error) {
	s, err := m.lock(id)
	if err != nil {
		return sheet.Decimal, err
	}
	defer s.mu.Unlock()
	m.changeFormat(s, s.format.Toggle())
	return s.format, nil
}

// Format returns the current display format of id.
func (m *Manager) Format(id string) (sheet.Format, error) {
	s, err := m.lock(id)
	if err != nil {
		return sheet.Decimal, err
	}
	defer s.mu.Unlock()
	return s.format, nil
}

// LastDisplayText returns the display text line produced in the last pass of
// id. Lines that failed or were blank have none.
func (m *Manager) LastDisplayText(id string, line int) (string, bool) {
	s, err := m.lock(id)
	if err != nil {
		return "", false
	}
	defer s.mu.Unlock()
	if s.last == nil {
		return "", false
	}
	text, ok := s.last.Display[line]
	return text, ok
}

// LastResult returns the result of the last pass of id, nil if none ran.
func (m *Manager) LastResult(id string) (*sheet.Result, error) {
	s, err := m.lock(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.last, nil
}

// Env returns the environment of id.
func (m *Manager) Env(id string) (*evaluator.Env, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.env, nil
}

// changeFormat must be called with s.mu held.
func (m *Manager) changeFormat(s *Session, f sheet.Format) *sheet.Result {
	s.format = f
	res := m.pass(s)
	if m.notifier != nil {
		m.notifier.Notify(s.id, "livecalc: format "+f.String())
	}
	return res
}

// pass must be called with s.mu held.
func (m *Manager) pass(s *Session) *sheet.Result {
	opts := append([]sheet.Option{sheet.WithCompiler(s.compiler)}, m.sheetOpts...)
	res := sheet.Evaluate(s.lines, s.env, s.format, opts...)
	s.last = res
	m.render(s.id, res)
	log.LogVf("session %q: pass over %d lines, %d errors", s.id, len(s.lines), len(res.Errors()))
	return res
}

func (m *Manager) render(id string, res *sheet.Result) {
	if m.renderer == nil {
		return
	}
	m.renderer.ClearRenders(id)
	for _, rec := range res.Lines() {
		style := StyleValue
		if !rec.OK() {
			style = StyleError
		}
		m.renderer.Render(id, rec.Line, rec.Text(), style)
	}
}
