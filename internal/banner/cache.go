package banner

import (
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
)

// Key identifies one per-view cache entry.
type Key struct {
	Path     string
	ViewID   string
	Shuffled bool
}

func (k Key) String() string {
	return url.PathEscape(k.Path) + "|" + k.ViewID + "|" + strconv.FormatBool(k.Shuffled)
}

// Entry is the cached state of one view showing one note.
type Entry struct {
	Timestamp  time.Time
	Snapshot   map[string]any
	Path       string
	ViewID     string
	Shuffled   bool
	Input      Source
	Image      ResolvedImage
	Display    Display
	Decoration *Decoration
}

// Revoker releases transient handles.
type Revoker interface {
	Revoke(ref string) bool
}

// StateCache is a bounded per-view cache. Entries never expire on their own:
// age is checked against the class TTL by Sweep and by callers. Every
// transient image handle is counted per owning entry and revoked when the
// last owner leaves, whatever the reason.
type StateCache struct {
	mu    sync.Mutex
	items *cache.Cache
	refs  map[string]int

	revoker    Revoker
	clock      clockwork.Clock
	maxEntries int
	ttl        time.Duration
	shuffleTTL time.Duration
}

// NewStateCache creates a cache bounded by cfg.
func NewStateCache(cfg CacheSettings, revoker Revoker, clock clockwork.Clock) *StateCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &StateCache{
		items:      cache.New(cache.NoExpiration, 0),
		refs:       make(map[string]int),
		revoker:    revoker,
		clock:      clock,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		shuffleTTL: cfg.ShuffleTTL,
	}
	// Runs inside Delete, so c.mu is already held.
	c.items.OnEvicted(func(_ string, v any) {
		c.release(v.(*Entry).Image)
	})
	return c
}

func (c *StateCache) hold(img ResolvedImage) {
	if img.Transient {
		c.refs[img.Reference]++
	}
}

func (c *StateCache) release(img ResolvedImage) {
	if !img.Transient {
		return
	}
	n, ok := c.refs[img.Reference]
	if !ok {
		return
	}
	if n > 1 {
		c.refs[img.Reference] = n - 1
		return
	}
	delete(c.refs, img.Reference)
	c.revoker.Revoke(img.Reference)
}

// Get returns a copy of the entry for key. It does not touch the entry.
func (c *StateCache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items.Get(key.String())
	if !ok {
		return Entry{}, false
	}
	return *v.(*Entry), true
}

// Touch refreshes the timestamp of an entry.
func (c *StateCache) Touch(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items.Get(key.String()); ok {
		v.(*Entry).Timestamp = c.clock.Now()
	}
}

// Put inserts or replaces the entry for key, stamping it with the current
// time, then evicts the oldest other entries while over capacity. It returns
// the stored entry. A shared image (fresh == false) is only adopted while
// another entry still owns it; Put reports false otherwise.
func (c *StateCache) Put(key Key, e Entry, fresh bool) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !fresh && e.Image.Transient && c.refs[e.Image.Reference] == 0 {
		return Entry{}, false
	}
	e.Timestamp = c.clock.Now()
	k := key.String()
	c.hold(e.Image)
	if old, ok := c.items.Get(k); ok {
		// Set does not fire OnEvicted.
		c.release(old.(*Entry).Image)
	}
	c.items.Set(k, &e, cache.NoExpiration)
	for c.items.ItemCount() > c.maxEntries {
		if !c.evictOldest(k) {
			break
		}
	}
	return e, true
}

// evictOldest removes the least recently touched entry other than keep.
func (c *StateCache) evictOldest(keep string) bool {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, it := range c.items.Items() {
		if k == keep {
			continue
		}
		ts := it.Object.(*Entry).Timestamp
		if !found || ts.Before(oldest) || ts.Equal(oldest) && k < oldestKey {
			oldestKey, oldest, found = k, ts, true
		}
	}
	if found {
		c.items.Delete(oldestKey)
	}
	return found
}

// Delete removes the entry for key.
func (c *StateCache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Delete(key.String())
}

// Invalidate removes every entry owned by viewID and returns how many.
func (c *StateCache) Invalidate(viewID string) int {
	return c.deleteWhere(func(e *Entry) bool { return e.ViewID == viewID })
}

// InvalidatePath removes every entry for a note.
func (c *StateCache) InvalidatePath(notePath string) int {
	return c.deleteWhere(func(e *Entry) bool { return e.Path == notePath })
}

// Sweep removes entries older than their class TTL, or all entries if force.
func (c *StateCache) Sweep(force bool) int {
	return c.deleteWhere(func(e *Entry) bool { return force || c.expired(e) })
}

func (c *StateCache) deleteWhere(match func(*Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, it := range c.items.Items() {
		if match(it.Object.(*Entry)) {
			c.items.Delete(k)
			n++
		}
	}
	return n
}

func (c *StateCache) expired(e *Entry) bool {
	return c.clock.Since(e.Timestamp) > c.TTL(e.Shuffled)
}

// TTL returns the freshness window for an entry class.
func (c *StateCache) TTL(shuffled bool) time.Duration {
	if shuffled {
		return c.shuffleTTL
	}
	return c.ttl
}

// Age returns how long ago an entry was last touched.
func (c *StateCache) Age(e Entry) time.Duration {
	return c.clock.Since(e.Timestamp)
}

// Retained reports whether some entry still owns a transient handle.
func (c *StateCache) Retained(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[ref] > 0
}

// Len returns the number of entries.
func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.ItemCount()
}

// Paths returns the notes that still have at least one entry.
func (c *StateCache) Paths() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct{}, c.items.ItemCount())
	for _, it := range c.items.Items() {
		out[it.Object.(*Entry).Path] = struct{}{}
	}
	return out
}
