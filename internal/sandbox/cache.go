package sandbox

import (
	"sync"

	"github.com/dop251/goja"
)

// lowerSource wraps the author's script body in a function expression so
// top-level `return` is legal and the compiled program lowers to a callable.
// The wrapper stays on the first line so reported positions still point into
// the author's text.
func lowerSource(source string) string {
	return "(function(){" + source + "\n})"
}

// compileSource lowers and compiles a script body. The resulting program
// embeds no context values and may be run on any runtime.
func compileSource(source string) (*goja.Program, *ScriptError) {
	prog, err := goja.Compile("script", lowerSource(source), false)
	if err != nil {
		return nil, newCompileError(err)
	}
	return prog, nil
}

// Validate compiles source without executing or caching it. Returns nil
// when the source is syntactically valid.
func Validate(source string) *ScriptError {
	_, serr := compileSource(source)
	return serr
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache memoizes compiled programs keyed by exact source text. Capacity is
// bounded; overflow evicts the oldest-inserted entry (pure FIFO). Failed
// compilations are never stored.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	entries   map[string]*goja.Program
	order     []string
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewCache creates a cache with the given capacity, falling back to the
// default when capacity is not positive.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*goja.Program, capacity),
	}
}

// GetOrCompile returns the cached program for source, compiling and storing
// it on a miss.
func (c *Cache) GetOrCompile(source string) (*goja.Program, *ScriptError) {
	c.mu.Lock()
	if prog, ok := c.entries[source]; ok {
		c.hits++
		c.mu.Unlock()
		return prog, nil
	}
	c.misses++
	c.mu.Unlock()

	// Compile outside the lock; programs are deterministic per source, so a
	// concurrent duplicate compile is wasted work, not a correctness issue.
	prog, serr := compileSource(source)
	if serr != nil {
		return nil, serr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[source]; !ok {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
			c.evictions++
		}
		c.entries[source] = prog
		c.order = append(c.order, source)
	}
	return prog, nil
}

// Contains reports whether source is currently cached.
func (c *Cache) Contains(source string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[source]
	return ok
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all cached programs. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*goja.Program, c.capacity)
	c.order = nil
}

// Stats returns current cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
