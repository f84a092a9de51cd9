// Package config loads livecalc settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/log"
	"gopkg.in/yaml.v3"

	"github.com/thomasrohde/livecalc/pkg/lexer"
)

// File names searched by Load.
const (
	ProjectFile = ".livecalc.yaml"
	UserDir     = ".livecalc"
	UserFile    = "config.yaml"
	HomeEnv     = "LIVECALC_HOME"
)

// Defaults.
const (
	DefaultFormat          = "decimal"
	DefaultAnonymousPrefix = "_"
	DefaultLogLevel        = "info"
	DefaultCacheSize       = 256
	DefaultMaxStringBytes  = 1 << 20
)

// Config holds the effective settings.
type Config struct {
	// Path is the file the settings were read from; empty for defaults.
	Path string `yaml:"-"`

	Format          string   `yaml:"format"`
	AnonymousPrefix string   `yaml:"anonymous_prefix"`
	LogLevel        string   `yaml:"log_level"`
	CacheSize       int      `yaml:"cache_size"`
	MaxStringBytes  int      `yaml:"max_string_bytes"`
	Builtins        Builtins `yaml:"builtins"`
}

// Builtins selects which capability-set entries documents can use.
type Builtins struct {
	Allow StringList `yaml:"allow,omitempty"`
	Deny  StringList `yaml:"deny,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Format:          DefaultFormat,
		AnonymousPrefix: DefaultAnonymousPrefix,
		LogLevel:        DefaultLogLevel,
		CacheSize:       DefaultCacheSize,
		MaxStringBytes:  DefaultMaxStringBytes,
	}
}

// ValidationError aggregates configuration problems.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": invalid configuration:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load resolves the configuration. An explicit path must exist; otherwise the
// project file in dir, then the user file, then Defaults are used.
func Load(explicit, dir string) (*Config, error) {
	if explicit != "" {
		return LoadFile(explicit)
	}
	candidates := []string{filepath.Join(dir, ProjectFile)}
	if home, err := UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, UserFile))
	} else {
		log.LogVf("config: no user config dir: %v", err)
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return LoadFile(path)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	log.LogVf("config: no config file found, using defaults")
	return Defaults(), nil
}

// UserConfigDir returns $LIVECALC_HOME, or ~/.livecalc when it is unset.
func UserConfigDir() (string, error) {
	if home := strings.TrimSpace(os.Getenv(HomeEnv)); home != "" {
		return filepath.Abs(home)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(home, UserDir), nil
}

// LoadFile reads and validates one configuration file. Keys missing from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = path
			return nil, verr
		}
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Path = path
	log.LogVf("config: loaded %s", path)
	return cfg, nil
}

// Parse decodes and validates YAML from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and names the offending keys.
func (c *Config) Validate() error {
	var errs ValidationError
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "decimal" && c.Format != "hex" {
		errs.Issues = append(errs.Issues, fmt.Sprintf("format: must be decimal or hex, got %q", c.Format))
	}
	if !lexer.IsIdentifier(c.AnonymousPrefix) || lexer.IsKeyword(c.AnonymousPrefix) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("anonymous_prefix: %q is not an identifier", c.AnonymousPrefix))
	}
	if _, err := log.ValidateLevel(c.LogLevel); err != nil {
		errs.Issues = append(errs.Issues, fmt.Sprintf("log_level: %v", err))
	}
	if c.CacheSize < 0 {
		errs.Issues = append(errs.Issues, fmt.Sprintf("cache_size: must be >= 0, got %d", c.CacheSize))
	}
	if c.MaxStringBytes < 0 {
		errs.Issues = append(errs.Issues, fmt.Sprintf("max_string_bytes: must be >= 0, got %d", c.MaxStringBytes))
	}
	for i, n := range c.Builtins.Allow {
		if !isBuiltinName(n) {
			errs.Issues = append(errs.Issues, fmt.Sprintf("builtins.allow[%d]: %q is not a builtin name", i, n))
		}
	}
	for i, n := range c.Builtins.Deny {
		if !isBuiltinName(n) {
			errs.Issues = append(errs.Issues, fmt.Sprintf("builtins.deny[%d]: %q is not a builtin name", i, n))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func isBuiltinName(n string) bool {
	return lexer.IsIdentifier(strings.TrimPrefix(n, "math."))
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// StringList accepts either a single scalar or a sequence of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*l = nil
			return nil
		}
		*l = StringList{strings.TrimSpace(value.Value)}
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			var str string
			if err := node.Decode(&str); err != nil {
				return err
			}
			if str = strings.TrimSpace(str); str != "" {
				items = append(items, str)
			}
		}
		*l = StringList(items)
		return nil
	case yaml.AliasNode:
		return l.UnmarshalYAML(value.Alias)
	default:
		return fmt.Errorf("expected string or sequence but found %s", value.ShortTag())
	}
}
