package sheet

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/parser"
)

// DefaultFilename names the source in spans produced by a Compiler.
const DefaultFilename = "sheet"

type compiled struct {
	expr  ast.Expr
	diags []diagnostics.Diagnostic
}

// CacheStats reports Compiler cache activity.
type CacheStats struct {
	Hits   int
	Misses int
	Len    int
}

// Compiler parses expression text, caching results by text in an LRU.
// Cached trees are shared and must not be mutated. A Compiler is safe for
// concurrent use.
type Compiler struct {
	filename string

	mu     sync.Mutex
	cache  *lru.Cache // nil when caching is disabled
	hits   int
	misses int
}

// NewCompiler returns a compiler caching up to size expressions; size <= 0
// disables caching.
func NewCompiler(size int) *Compiler {
	c := &Compiler{filename: DefaultFilename}
	if size > 0 {
		c.cache = lru.New(size)
	}
	return c
}

// Compile parses src as a single expression. Spans are relative to src.
func (c *Compiler) Compile(src string) (ast.Expr, []diagnostics.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil {
		if v, ok := c.cache.Get(src); ok {
			c.hits++
			e := v.(compiled)
			return e.expr, e.diags
		}
	}
	c.misses++
	expr, diags := parser.ParseExpr(src, c.filename)
	if c.cache != nil {
		c.cache.Add(src, compiled{expr: expr, diags: diags})
	}
	return expr, diags
}

// Stats returns cache counters.
func (c *Compiler) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{Hits: c.hits, Misses: c.misses}
	if c.cache != nil {
		s.Len = c.cache.Len()
	}
	return s
}

// Reset drops every cached expression.
func (c *Compiler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		c.cache.Clear()
	}
	c.hits, c.misses = 0, 0
}
