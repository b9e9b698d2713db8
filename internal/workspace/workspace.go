// Package workspace models the editor host: open leaves (views), the active
// leaf, and the events that drive banner updates.
//
// Events are delivered by a single loop goroutine in the order they were
// emitted. The loop claims each view for its note before handing the
// resolution to its own goroutine, so a slow image search never holds up
// later events and the banner service discards results a later event has
// superseded.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/bannerd/internal/apperr"
	"github.com/starford/bannerd/internal/banner"
	"github.com/starford/bannerd/internal/index"
	"github.com/starford/bannerd/internal/models"
)

// ViewMarkdown is the leaf type of note views.
const ViewMarkdown = "markdown"

// Leaf is one open pane.
type Leaf struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// EventKind identifies a host event.
type EventKind int

const (
	ActiveLeafChanged EventKind = iota
	LayoutChanged
	MetadataChanged
	LeafClosed
	FileDeleted
)

func (k EventKind) String() string {
	switch k {
	case ActiveLeafChanged:
		return "active-leaf-changed"
	case LayoutChanged:
		return "layout-changed"
	case MetadataChanged:
		return "metadata-changed"
	case LeafClosed:
		return "leaf-closed"
	case FileDeleted:
		return "file-deleted"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a host event.
type Event struct {
	Kind   EventKind
	LeafID string
	Path   string
}

// Banners is the banner service as seen by the workspace.
type Banners interface {
	ResolveAndAcquire(ctx context.Context, notePath, viewID string, mode banner.UpdateMode) *banner.State
	Claim(viewID, notePath string) uint64
	ResolveClaimed(ctx context.Context, notePath, viewID string, gen uint64, mode banner.UpdateMode) *banner.State
	Invalidate(viewID string) int
	InvalidatePath(notePath string) int
}

// Workspace tracks leaves and dispatches events to the banner service.
type Workspace struct {
	banners   Banners
	debouncer *Debouncer
	logger    *slog.Logger

	mu     sync.RWMutex
	leaves map[string]Leaf
	active string

	events   chan Event
	stopped  chan struct{}
	closed   atomic.Bool
	inflight sync.WaitGroup
	handled  atomic.Int64
}

// New creates a Workspace. debounce coalesces layout and metadata events.
func New(banners Banners, debounce time.Duration, logger *slog.Logger) *Workspace {
	return &Workspace{
		banners:   banners,
		debouncer: NewDebouncer(debounce),
		logger:    logger,
		leaves:    make(map[string]Leaf),
		events:    make(chan Event, 256),
		stopped:   make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then waits for in-flight
// handlers.
func (w *Workspace) Run(ctx context.Context) error {
	defer close(w.stopped)
	w.logger.Info("workspace: event loop started")
	for {
		select {
		case <-ctx.Done():
			w.closed.Store(true)
			w.debouncer.Stop()
			w.inflight.Wait()
			return nil
		case ev := <-w.events:
			w.handle(ctx, ev)
			w.handled.Add(1)
		}
	}
}

// Emit queues an event. Events emitted after Run has returned are dropped.
func (w *Workspace) Emit(ev Event) {
	if w.closed.Load() {
		return
	}
	select {
	case w.events <- ev:
	case <-w.stopped:
	}
}

// Handled returns the number of events delivered so far.
func (w *Workspace) Handled() int64 { return w.handled.Load() }

func (w *Workspace) handle(ctx context.Context, ev Event) {
	w.logger.Debug("workspace: event",
		slog.String("kind", ev.Kind.String()),
		slog.String("leaf", ev.LeafID),
		slog.String("path", ev.Path))

	switch ev.Kind {
	case ActiveLeafChanged:
		if leaf, ok := w.Leaf(ev.LeafID); ok && leaf.Path != "" {
			w.resolve(ctx, leaf, banner.UpdateFull)
		}
	case LayoutChanged:
		for _, leaf := range w.Leaves(ViewMarkdown) {
			if leaf.Path != "" {
				w.resolve(ctx, leaf, banner.UpdateEnsureVisible)
			}
		}
	case MetadataChanged:
		for _, leaf := range w.showing(ev.Path) {
			w.resolve(ctx, leaf, banner.UpdateFull)
		}
	case LeafClosed:
		w.banners.Invalidate(ev.LeafID)
	case FileDeleted:
		w.banners.InvalidatePath(ev.Path)
	}
}

func (w *Workspace) resolve(ctx context.Context, leaf Leaf, mode banner.UpdateMode) {
	gen := w.banners.Claim(leaf.ID, leaf.Path)
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.banners.ResolveClaimed(ctx, leaf.Path, leaf.ID, gen, mode)
	}()
}

// Open shows notePath in leaf id, creating the leaf if needed, and makes it
// active.
func (w *Workspace) Open(id, notePath string) Leaf {
	leaf := Leaf{ID: id, Path: notePath, Type: ViewMarkdown}
	w.mu.Lock()
	w.leaves[id] = leaf
	w.active = id
	w.mu.Unlock()
	w.Emit(Event{Kind: ActiveLeafChanged, LeafID: id})
	return leaf
}

// SetActive makes an existing leaf active.
func (w *Workspace) SetActive(id string) error {
	w.mu.Lock()
	if _, ok := w.leaves[id]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("leaf %s: %w", id, apperr.ErrNotFound)
	}
	w.active = id
	w.mu.Unlock()
	w.Emit(Event{Kind: ActiveLeafChanged, LeafID: id})
	return nil
}

// Close removes a leaf and releases its banner state.
func (w *Workspace) Close(id string) error {
	w.mu.Lock()
	if _, ok := w.leaves[id]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("leaf %s: %w", id, apperr.ErrNotFound)
	}
	delete(w.leaves, id)
	if w.active == id {
		w.active = ""
	}
	w.mu.Unlock()
	w.Emit(Event{Kind: LeafClosed, LeafID: id})
	return nil
}

// Activate makes a leaf active and resolves its banner in the caller's
// goroutine.
func (w *Workspace) Activate(ctx context.Context, id string, mode banner.UpdateMode) (*banner.State, error) {
	w.mu.Lock()
	leaf, ok := w.leaves[id]
	if ok {
		w.active = id
	}
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("leaf %s: %w", id, apperr.ErrNotFound)
	}
	if leaf.Path == "" {
		return nil, nil
	}
	return w.banners.ResolveAndAcquire(ctx, leaf.Path, leaf.ID, mode), nil
}

// Active returns the active leaf.
func (w *Workspace) Active() (Leaf, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	leaf, ok := w.leaves[w.active]
	return leaf, ok
}

// Leaf returns a leaf by id.
func (w *Workspace) Leaf(id string) (Leaf, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	leaf, ok := w.leaves[id]
	return leaf, ok
}

// Leaves returns the leaves of one type, sorted by id.
func (w *Workspace) Leaves(typ string) []Leaf {
	var out []Leaf
	for _, leaf := range w.All() {
		if leaf.Type == typ {
			out = append(out, leaf)
		}
	}
	return out
}

// All returns every leaf, sorted by id.
func (w *Workspace) All() []Leaf {
	w.mu.RLock()
	out := make([]Leaf, 0, len(w.leaves))
	for _, leaf := range w.leaves {
		out = append(out, leaf)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Workspace) showing(notePath string) []Leaf {
	var out []Leaf
	for _, leaf := range w.All() {
		if leaf.Path == notePath {
			out = append(out, leaf)
		}
	}
	return out
}

// NotifyLayout reports a layout change; bursts collapse into one event.
func (w *Workspace) NotifyLayout() {
	w.debouncer.Do("layout", func() {
		w.Emit(Event{Kind: LayoutChanged})
	})
}

// NotifyMetadata reports a frontmatter change of one note; bursts per note
// collapse into one event.
func (w *Workspace) NotifyMetadata(notePath string) {
	w.debouncer.Do("metadata:"+notePath, func() {
		w.Emit(Event{Kind: MetadataChanged, Path: notePath})
	})
}

// HandleFileChange adapts watcher callbacks to workspace events.
func (w *Workspace) HandleFileChange(kind, p string) {
	switch kind {
	case index.ChangeDeleted:
		w.debouncer.Cancel("metadata:" + p)
		w.Emit(Event{Kind: FileDeleted, Path: p})
	case index.ChangeCreated, index.ChangeUpdated:
		if models.IsNotePath(p) {
			w.NotifyMetadata(p)
		}
	}
}
