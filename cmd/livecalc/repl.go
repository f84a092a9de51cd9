package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fortio.org/log"
	"github.com/peterh/liner"

	"github.com/thomasrohde/livecalc/pkg/config"
	"github.com/thomasrohde/livecalc/pkg/help"
	"github.com/thomasrohde/livecalc/pkg/runtime"
	"github.com/thomasrohde/livecalc/pkg/session"
	"github.com/thomasrohde/livecalc/pkg/sheet"
)

const (
	replSession = "repl"
	historyFile = "history"
)

const replHelp = `:hex :dec :toggle   switch the display format
:vars               list bindings
:list               show the lines entered so far
:clear              forget every line and binding
:quit               leave
`

// repl is an interactive sheet. Each entered line becomes the next line of
// the sheet and is evaluated against the bindings of all earlier lines.
type repl struct {
	out     io.Writer
	manager *session.Manager
	lines   []string
}

func newRepl(rt *runtime.Runtime, out io.Writer) *repl {
	r := &repl{out: out}
	r.manager = rt.NewManager(session.WithNotifier(r))
	r.manager.Open(replSession)
	return r
}

// Notify implements session.Notifier.
func (r *repl) Notify(_, message string) {
	fmt.Fprintln(r.out, message)
}

func (r *repl) prompt() string {
	return fmt.Sprintf("%d> ", len(r.lines)+1)
}

// handle processes one line of input and reports whether to keep going.
func (r *repl) handle(input string) bool {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, ":") {
		return r.command(strings.ToLower(trimmed))
	}
	if trimmed == "" {
		return true
	}

	// Earlier lines already ran; only the new one is evaluated, at its own
	// line number, against the bindings they left.
	r.lines = append(r.lines, input)
	pass := make([]string, len(r.lines))
	pass[len(pass)-1] = input
	res, err := r.manager.OnContentChanged(replSession, pass)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return true
	}
	// A format change re-runs the last pass; the line must not run twice.
	if _, err := r.manager.OnContentChanged(replSession, nil); err != nil {
		fmt.Fprintln(r.out, "error:", err)
	}
	rec, ok := res.Records[len(r.lines)]
	switch {
	case !ok:
	case rec.OK():
		fmt.Fprintf(r.out, "%s = %s\n", rec.Name, rec.Display)
	default:
		fmt.Fprintf(r.out, "%s: %s\n", rec.Err.Kind, rec.Err.Message)
	}
	return true
}

func (r *repl) command(cmd string) bool {
	switch cmd {
	case ":quit", ":q", ":exit":
		return false
	case ":hex":
		r.setFormat(sheet.Hex)
	case ":dec", ":decimal":
		r.setFormat(sheet.Decimal)
	case ":toggle":
		if _, err := r.manager.ToggleFormat(replSession); err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
	case ":vars":
		r.printVars()
	case ":list":
		for i, l := range r.lines {
			fmt.Fprintf(r.out, "%3d  %s\n", i+1, l)
		}
	case ":clear":
		f, _ := r.manager.Format(replSession)
		r.manager.Close(replSession)
		r.manager.Open(replSession)
		r.lines = nil
		if cur, _ := r.manager.Format(replSession); cur != f {
			r.setFormat(f)
		}
	case ":help", ":h", ":?":
		fmt.Fprint(r.out, replHelp)
	default:
		fmt.Fprintf(r.out, "unknown command %s (:help lists commands)\n", cmd)
	}
	return true
}

func (r *repl) setFormat(f sheet.Format) {
	if _, err := r.manager.SetFormat(replSession, f); err != nil {
		fmt.Fprintln(r.out, "error:", err)
	}
}

func (r *repl) printVars() {
	env, err := r.manager.Env(replSession)
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	f, _ := r.manager.Format(replSession)
	for _, b := range env.Bindings() {
		fmt.Fprintf(r.out, "%s = %s\n", b.Name, sheet.FormatValue(b.Value, f))
	}
}

// complete offers binding and builtin names for the identifier ending line.
func (r *repl) complete(line string) []string {
	start := len(line)
	for start > 0 && isNameByte(line[start-1]) {
		start--
	}
	prefix := line[start:]
	if prefix == "" {
		return nil
	}
	env, err := r.manager.Env(replSession)
	if err != nil {
		return nil
	}
	names := env.Builtins()
	for _, b := range env.Bindings() {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	var out []string
	last := ""
	for _, n := range names {
		if n != last && strings.HasPrefix(n, prefix) {
			out = append(out, line[:start]+n)
		}
		last = n
	}
	return out
}

func isNameByte(c byte) bool {
	return c == '_' || c == '.' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func (a *app) cmdRepl(_ []string) int {
	r := newRepl(a.rt, a.stdout)
	fmt.Fprintf(a.stdout, "livecalc %s - :help for commands, :quit to leave\n", help.Version)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(r.complete)

	histPath := ""
	if dir, err := config.UserConfigDir(); err == nil {
		histPath = filepath.Join(dir, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if err := os.MkdirAll(filepath.Dir(histPath), 0o755); err != nil {
			log.Warnf("repl: cannot create %s: %v", filepath.Dir(histPath), err)
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		input, err := ln.Prompt(r.prompt())
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(a.stdout)
			return exitOK
		}
		if err != nil {
			log.Errf("repl: %v", err)
			return exitUsage
		}
		if strings.TrimSpace(input) != "" {
			ln.AppendHistory(input)
		}
		if !r.handle(input) {
			return exitOK
		}
	}
}
