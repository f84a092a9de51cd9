package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"fortio.org/log"

	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/help"
	"github.com/thomasrohde/livecalc/pkg/runtime"
	"github.com/thomasrohde/livecalc/pkg/sheet"
)

func (a *app) cmdEval(args []string) int {
	var file string
	pretty := false
	jsonOut := false
	format := a.rt.Format()

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--pretty":
			pretty = true
		case "--json":
			jsonOut = true
		case "--hex":
			format = sheet.Hex
		case "--dec", "--decimal":
			format = sheet.Decimal
		default:
			if args[i] == "-" || !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(a.stderr, "usage: livecalc eval <file|-> [--hex] [--json] [--pretty]")
		return exitUsage
	}

	lines, filename, code := a.readSource(file, pretty)
	if code != exitOK {
		return code
	}

	rt := a.rt.ForFile(filename)
	res := rt.Evaluate(lines, nil, format, sheet.WithCompiler(rt.NewCompiler()))

	if jsonOut {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(a.stderr, "error serializing result: %s\n", err)
			return exitUsage
		}
		fmt.Fprintln(a.stdout, string(b))
	} else {
		writeAnnotated(a.stdout, lines, res)
	}

	if diags := res.Diagnostics(); len(diags) > 0 {
		fmt.Fprintln(a.stderr, diagnostics.FormatDiagnostics(diags, pretty))
		return exitDiagnostics
	}
	return exitOK
}

// writeAnnotated prints every line of the sheet with its value or error
// aligned to the right of the longest evaluated line.
func writeAnnotated(w io.Writer, lines []string, res *sheet.Result) {
	width := 0
	for n := range res.Records {
		width = max(width, utf8.RuneCountInString(strings.TrimRight(lines[n-1], " \t")))
	}
	for i, text := range lines {
		text = strings.TrimRight(text, " \t")
		rec, ok := res.Records[i+1]
		switch {
		case !ok:
			fmt.Fprintln(w, text)
		case rec.OK():
			fmt.Fprintf(w, "%-*s  => %s\n", width, text, rec.Display)
		default:
			fmt.Fprintf(w, "%-*s  !! %s\n", width, text, rec.Err.Message)
		}
	}
}

func (a *app) cmdCheck(args []string) int {
	var file string
	pretty := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--pretty":
			pretty = true
		default:
			if args[i] == "-" || !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(a.stderr, "usage: livecalc check <file|-> [--pretty]")
		return exitUsage
	}

	lines, filename, code := a.readSource(file, pretty)
	if code != exitOK {
		return code
	}

	diags := a.rt.ForFile(filename).Check(lines)
	if len(diags) > 0 {
		fmt.Fprintln(a.stderr, diagnostics.FormatDiagnostics(diags, pretty))
		if diagnostics.HasErrors(diags) {
			return exitDiagnostics
		}
		return exitOK
	}

	if pretty {
		fmt.Fprintln(a.stdout, "No errors found.")
	} else {
		fmt.Fprintln(a.stdout, "[]")
	}
	return exitOK
}

func (a *app) cmdFmt(args []string) int {
	var file string
	write := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--write":
			write = true
		default:
			if args[i] == "-" || !strings.HasPrefix(args[i], "-") {
				file = args[i]
			}
		}
	}

	if file == "" || (write && file == "-") {
		fmt.Fprintln(a.stderr, "usage: livecalc fmt <file> [--write]")
		return exitUsage
	}

	lines, filename, code := a.readSource(file, false)
	if code != exitOK {
		return code
	}

	formatted, err := a.rt.ForFile(filename).FormatSheet(lines)
	if err != nil {
		var diagErr *runtime.DiagnosticError
		if errors.As(err, &diagErr) {
			fmt.Fprintln(a.stderr, diagnostics.FormatDiagnostics(diagErr.Diagnostics, false))
			return exitDiagnostics
		}
		fmt.Fprintln(a.stderr, err.Error())
		return exitDiagnostics
	}

	out := strings.Join(formatted, "\n")
	if len(formatted) > 0 {
		out += "\n"
	}
	if write {
		mode := os.FileMode(0o644)
		if info, err := os.Stat(file); err == nil {
			mode = info.Mode().Perm()
		}
		if err := os.WriteFile(file, []byte(out), mode); err != nil {
			fmt.Fprintf(a.stderr, "error writing file: %s\n", err)
			return exitUsage
		}
		return exitOK
	}
	fmt.Fprint(a.stdout, out)
	return exitOK
}

func (a *app) cmdServe(_ []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("livecalc %s serving on stdio", help.Version)
	// Serve logs its own read failures.
	if err := a.rt.NewServer(a.stdin, a.stdout).Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return exitUsage
	}
	return exitOK
}

func (a *app) cmdConfig(_ []string) int {
	b, err := a.cfg.Marshal()
	if err != nil {
		fmt.Fprintf(a.stderr, "error serializing config: %s\n", err)
		return exitUsage
	}
	source := a.cfg.Path
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(a.stdout, "# source: %s\n%s", source, b)
	return exitOK
}

func (a *app) cmdHelp(args []string) int {
	topic := ""
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			topic = arg
		}
	}

	if topic == "" {
		fmt.Fprint(a.stdout, help.QUICKREF)
		return exitOK
	}

	name, content, err := help.MatchTopic(topic)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitUsage
	}
	fmt.Fprint(a.stdout, content)
	if name == "functions" {
		fmt.Fprintln(a.stdout)
		fmt.Fprint(a.stdout, help.FunctionIndex(a.rt.Capabilities()))
	}
	return exitOK
}
