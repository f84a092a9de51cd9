// Package help holds the text behind "livecalc help".
package help

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thomasrohde/livecalc/pkg/stdlib"
)

// Version is the livecalc release shown in help output.
const Version = "v0.1.0"

// TopicList is the display order of help topics.
var TopicList = []string{"syntax", "functions", "formats", "sessions", "config", "diagnostics", "examples"}

// QUICKREF is printed by "livecalc help" with no topic.
var QUICKREF = `livecalc ` + Version + ` - a live calculator sheet

Each line of a sheet is either
  name = expression     bind the value to name
  expression            bind the value to _<line>, e.g. _4
  # comment             ignored
Later lines see names bound by earlier lines. A failing line shows its error
and leaves every binding untouched; the other lines still run.

Commands:
  livecalc eval <file|->   evaluate a sheet and print each line's value
  livecalc check <file|->  report problems without evaluating
  livecalc fmt <file>      canonicalize expressions (--write to rewrite)
  livecalc repl            interactive sheet
  livecalc serve           JSON-RPC host for editors on stdin/stdout
  livecalc config          print the effective configuration
  livecalc help <topic>    more help

Topics: ` + strings.Join(TopicList, ", ") + `
`

// Topics maps a topic name to its text.
var Topics = map[string]string{
	"syntax": `Syntax

Operators, loosest first:
  == != < > <= >=        comparison (numbers or strings)
  + -                    add, subtract; + also joins two strings
  * / %                  multiply, divide, floor modulo (sign of the divisor)
  -x                     negation
  ^                      power, right associative: 2 ^ 3 ^ 2 is 2 ^ 9

-2 ^ 2 is -(2 ^ 2) = -4. Parentheses group as usual.

Literals: 42, 3.5, .5, 1e-3, 0xff, "text", 'text', true, false.
String escapes: \" \' \\ \n \t \r.
Names start with a letter or underscore. Dotted names such as math.pi
refer to the same builtin as pi.
Calls: name(arg, ...). Only builtins can be called.
"x == 1" is a comparison, not an assignment.
`,

	"functions": `Functions and constants

Every builtin works on numbers. Names can be written with a math. prefix.
The list below honors the builtins.allow and builtins.deny settings.
`,

	"formats": `Display formats

decimal (default): integers print without a decimal point (1200), other
numbers with up to 14 significant digits (0.1 + 0.2 prints 0.3).
Infinity prints inf, and results that are not a number are errors.

hex: whole numbers in the 64-bit range print as lowercase hex (255 -> 0xff,
-255 -> -0xff). Fractions, strings and booleans print as in decimal.

Switch with --hex on eval, :hex / :dec / :toggle in the repl, or the
livecalc/setFormat and livecalc/toggleFormat requests of livecalc serve.
Changing the format re-runs the sheet.
`,

	"sessions": `Sessions

livecalc serve keeps one session per open document, keyed by an id chosen
by the editor. A session owns the variable bindings, the display format and
the values shown by its last pass.

Requests (JSON-RPC 2.0 with Content-Length framing):
  livecalc/didOpen      {id, lines?}
  livecalc/didChange    {id, lines}      full content, re-runs every line
  livecalc/didClose     {id}
  livecalc/setFormat    {id, format}     "decimal" or "hex"
  livecalc/toggleFormat {id}
  livecalc/lastValue    {id, line}       text shown for that line
  livecalc/sessions
  shutdown, then the exit notification

Notifications sent to the editor:
  livecalc/clear  {id}
  livecalc/render {id, line, text, style}   style is "value" or "error"
  livecalc/status {id, message}

Bindings of deleted lines stay until the session is closed.
`,

	"config": `Configuration

Settings are read from the first of:
  --config <file>
  .livecalc.yaml in the working directory
  $LIVECALC_HOME/config.yaml, else ~/.livecalc/config.yaml

Keys:
  format: decimal | hex
  anonymous_prefix: _          name prefix for bare expression lines
  log_level: info              debug, verbose, info, warning, error
  cache_size: 256              compiled expressions kept per session, 0 = off
  max_string_bytes: 1048576    longest string a line may build, 0 = no limit
  builtins:
    allow: [sqrt, pow]         only these (empty = all)
    deny: [exp]                never these; deny wins

Unknown keys and unknown builtin names are errors.
`,

	"diagnostics": `Diagnostics

  E_LEX          malformed token, e.g. an unterminated string
  E_PARSE        malformed expression
  E_EMPTY        "name =" with nothing after it
  E_UNBOUND      name not bound by an earlier line
  E_UNKNOWN_FN   call of a name that is not a builtin
  E_NOT_CALLABLE call of a value, e.g. pi(2) or a shadowed builtin
  E_ARITY        wrong number of arguments
  E_TYPE         operator or function applied to the wrong kind of value
  E_DIV_ZERO     division or modulo by zero
  E_DOMAIN       result is not a number or overflows
  E_FN           a builtin reported a failure
  E_BUDGET       a string grew past max_string_bytes
  E_IO           file could not be read or written
  E_CONFIG       invalid configuration
  W_SHADOW       assignment hides a builtin (warning)

livecalc eval and check exit with status 2 when any error is reported.
`,

	"examples": `Examples

  rent = 1200
  food = 350
  rent + food                 # 1550, bound to _3
  _3 * 12                     # 18600
  rate = 0.045
  round(rent * (1 + rate))    # 1254
  mask = 0xf0 + 0x0f          # 255, 0xff in hex
  hypot(3, 4)                 # 5
  log(8, 2)                   # 3
  "total: " + "ok"            # total: ok
`,
}

// MatchTopic resolves name to a topic, by exact name or unique prefix.
func MatchTopic(name string) (string, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if content, ok := Topics[name]; ok {
		return name, content, nil
	}
	var matches []string
	if name != "" {
		for _, t := range TopicList {
			if strings.HasPrefix(t, name) {
				matches = append(matches, t)
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], Topics[matches[0]], nil
	case 0:
		return "", "", fmt.Errorf("unknown help topic %q (topics: %s)", name, strings.Join(TopicList, ", "))
	default:
		return "", "", fmt.Errorf("ambiguous help topic %q: %s", name, strings.Join(matches, ", "))
	}
}

// FunctionIndex lists the entries of reg with their signatures and docs.
func FunctionIndex(reg *stdlib.Registry) string {
	var fns, consts []*stdlib.Entry
	for _, e := range reg.Entries() {
		if e.Signature() == e.Name {
			consts = append(consts, e)
		} else {
			fns = append(fns, e)
		}
	}
	var b strings.Builder
	write := func(title string, entries []*stdlib.Entry) {
		if len(entries) == 0 {
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		width := 0
		for _, e := range entries {
			width = max(width, len(e.Signature()))
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, e := range entries {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, e.Signature(), e.Doc)
		}
		b.WriteString("\n")
	}
	write("Functions", fns)
	write("Constants", consts)
	fmt.Fprintf(&b, "Total: %d functions, %d constants\n", len(fns), len(consts))
	return b.String()
}
