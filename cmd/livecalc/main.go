// Command livecalc evaluates calculator sheets and serves them to editors.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"fortio.org/log"

	"github.com/thomasrohde/livecalc/pkg/config"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/help"
	"github.com/thomasrohde/livecalc/pkg/runtime"
)

// Exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitDiagnostics = 2
)

const usage = "usage: livecalc [--config <file>] [--log-level <level>] <command> [options]\n" +
	"commands: eval, check, fmt, repl, serve, config, help, version"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app carries what every command needs.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	rt     *runtime.Runtime
}

type globalFlags struct {
	configPath string
	logLevel   string
}

// splitGlobalFlags removes --config and --log-level from args wherever they
// appear.
func splitGlobalFlags(args []string) (globalFlags, []string, error) {
	var g globalFlags
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--log-level":
			if !hasValue {
				if i+1 >= len(args) {
					return g, nil, fmt.Errorf("%s requires a value", name)
				}
				i++
				value = args[i]
			}
			if name == "--config" {
				g.configPath = value
			} else {
				g.logLevel = value
			}
		default:
			rest = append(rest, arg)
		}
	}
	return g, rest, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	log.SetDefaultsForClientTools()
	log.SetOutput(stderr)

	g, rest, err := splitGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage)
		return exitUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "version", "--version":
		fmt.Fprintln(stdout, "livecalc", help.Version)
		return exitOK
	case "--help", "-h":
		cmd = "help"
	}

	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	if code := a.setup(g); code != exitOK {
		return code
	}

	switch cmd {
	case "eval":
		return a.cmdEval(cmdArgs)
	case "check":
		return a.cmdCheck(cmdArgs)
	case "fmt":
		return a.cmdFmt(cmdArgs)
	case "repl":
		return a.cmdRepl(cmdArgs)
	case "serve":
		return a.cmdServe(cmdArgs)
	case "config":
		return a.cmdConfig(cmdArgs)
	case "help":
		return a.cmdHelp(cmdArgs)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n%s\n", cmd, usage)
		return exitUsage
	}
}

// setup loads the configuration, applies the log level and builds the
// runtime.
func (a *app) setup(g globalFlags) int {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg, err := config.Load(g.configPath, wd)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitUsage
	}
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	if err := log.SetLogLevelStr(level); err != nil {
		fmt.Fprintf(a.stderr, "invalid log level %q: %v\n", level, err)
		return exitUsage
	}
	rt, err := runtime.FromConfig(cfg, runtime.WithLogTrace())
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitUsage
	}
	a.cfg, a.rt = cfg, rt
	return exitOK
}

// readSource reads a sheet from file, or from stdin when file is "-". It
// returns the lines, the name used in diagnostics, and a nonzero exit code
// after reporting a read failure.
func (a *app) readSource(file string, pretty bool) ([]string, string, int) {
	if file == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			fmt.Fprintf(a.stderr, "error reading stdin: %s\n", err)
			return nil, "", exitUsage
		}
		return splitLines(string(data)), "<stdin>", exitOK
	}
	data, err := os.ReadFile(file)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, "")
		fmt.Fprintln(a.stderr, diagnostics.FormatDiagnostics([]diagnostics.Diagnostic{diag}, pretty))
		return nil, "", exitUsage
	}
	return splitLines(string(data)), file, exitOK
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
