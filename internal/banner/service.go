// Package banner decides which banner image a note view shows and keeps a
// small per-view cache of that decision.
//
// A view activation goes through ResolveAndAcquire: the cache entry for
// (note, view, shuffle flag) is reused while it is fresh; otherwise the
// Resolver picks a Source, the Acquirer turns it into a ResolvedImage and the
// result is committed back into the StateCache, provided the view still shows
// the same note.
package banner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// UpdateMode says how much work an activation may reuse.
type UpdateMode int

const (
	// UpdateFull reuses a fresh cache entry and recomputes otherwise.
	UpdateFull UpdateMode = iota
	// UpdateEnsureVisible repaints from the cache, ignoring the shuffle window.
	UpdateEnsureVisible
	// UpdateForce drops the remembered image and recomputes.
	UpdateForce
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateEnsureVisible:
		return "ensure-visible"
	case UpdateForce:
		return "force"
	default:
		return "full"
	}
}

var errHandleReleased = errors.New("banner: shared image handle released before commit")

// State is what the presentation layer needs to draw a banner.
type State struct {
	Path       string        `json:"path"`
	ViewID     string        `json:"view_id"`
	Source     Source        `json:"source"`
	Image      ResolvedImage `json:"image"`
	Display    Display       `json:"display"`
	Decoration *Decoration   `json:"decoration,omitempty"`
	Shuffled   bool          `json:"shuffled"`
	Cached     bool          `json:"cached"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (e Entry) state(cached bool) *State {
	return &State{
		Path:       e.Path,
		ViewID:     e.ViewID,
		Source:     e.Input,
		Image:      e.Image,
		Display:    e.Display,
		Decoration: e.Decoration,
		Shuffled:   e.Shuffled,
		Cached:     cached,
		UpdatedAt:  e.Timestamp,
	}
}

// Stats are service counters since startup.
type Stats struct {
	Activations  int64 `json:"activations"`
	Hits         int64 `json:"hits"`
	Resolutions  int64 `json:"resolutions"`
	Acquisitions int64 `json:"acquisitions"`
	MemoReuses   int64 `json:"memo_reuses"`
	Dropped      int64 `json:"dropped"`
	Failures     int64 `json:"failures"`
	Entries      int   `json:"entries"`
	Remembered   int   `json:"remembered"`
}

// Deps are the collaborators of a Service. Renderer, Notifier, Clock and
// Rand are optional.
type Deps struct {
	Vault    Vault
	Meta     MetadataCache
	Blobs    Blobs
	Search   ImageSearch
	Renderer Renderer
	Notifier Notifier
	Clock    clockwork.Clock
	Rand     Rand
	Logger   *slog.Logger
}

type memo struct {
	input Source
	image ResolvedImage
}

type viewMark struct {
	path string
	gen  uint64
}

// Service is the banner resolution and cache entry point.
type Service struct {
	settings   Settings
	vault      Vault
	meta       MetadataCache
	blobs      Blobs
	folders    *Folders
	resolver   *Resolver
	acquirer   *Acquirer
	cache      *StateCache
	renderer   Renderer
	logger     *slog.Logger
	recognized []string

	mu      sync.Mutex
	memo    map[string]memo
	views   map[string]viewMark
	nextGen uint64

	activations  atomic.Int64
	hits         atomic.Int64
	resolutions  atomic.Int64
	acquisitions atomic.Int64
	memoReuses   atomic.Int64
	dropped      atomic.Int64
	failures     atomic.Int64
}

// NewService wires a Service. settings must already be validated.
func NewService(settings Settings, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = nopRenderer{}
	}
	s := &Service{
		settings: settings,
		vault:    deps.Vault,
		meta:     deps.Meta,
		blobs:    deps.Blobs,
		renderer: renderer,
		logger:   logger,
		memo:     make(map[string]memo),
		views:    make(map[string]viewMark),
	}
	s.settings.Folders = settings.ValidFolders(logger)
	s.recognized = s.settings.RecognizedFields()
	s.folders = NewFolders(s.settings.Folders)
	s.resolver = NewResolver(&s.settings, deps.Vault, deps.Rand, logger)
	s.acquirer = NewAcquirer(&s.settings, deps.Vault, deps.Blobs, deps.Search, deps.Notifier, deps.Rand, logger)
	s.cache = NewStateCache(s.settings.Cache, deps.Blobs, deps.Clock)
	return s
}

// Settings returns the effective settings, with invalid folder overrides removed.
func (s *Service) Settings() Settings { return s.settings }

// ResolveAndAcquire brings the banner of viewID, which shows notePath, up to
// date and tells the renderer. It returns the drawn state, or nil when the
// note has no banner. Failures never escape: a failed recomputation clears
// the view's cache and is retried once, then logged and dropped.
func (s *Service) ResolveAndAcquire(ctx context.Context, notePath, viewID string, mode UpdateMode) *State {
	return s.ResolveClaimed(ctx, notePath, viewID, s.Claim(viewID, notePath), mode)
}

// Claim records that viewID now shows notePath and returns the generation
// to pass to ResolveClaimed. A result is committed only while the view has
// not been claimed for another note since. Event loops claim in delivery
// order and may then resolve concurrently.
func (s *Service) Claim(viewID, notePath string) uint64 {
	return s.mark(viewID, notePath)
}

// ResolveClaimed is ResolveAndAcquire for a view claimed earlier.
func (s *Service) ResolveClaimed(ctx context.Context, notePath, viewID string, gen uint64, mode UpdateMode) *State {
	s.activations.Add(1)
	if mode != UpdateEnsureVisible {
		s.Sweep(false)
	}

	st, err := s.update(ctx, notePath, viewID, mode, gen)
	if err == nil {
		return st
	}
	s.logger.Warn("banner: update failed, retrying",
		slog.String("path", notePath),
		slog.String("view", viewID),
		slog.String("error", err.Error()))
	s.cache.Invalidate(viewID)
	s.trimMemo()

	st, err = s.update(ctx, notePath, viewID, mode, gen)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error("banner: update failed",
			slog.String("path", notePath),
			slog.String("view", viewID),
			slog.String("error", err.Error()))
		return nil
	}
	return st
}

func (s *Service) update(ctx context.Context, notePath, viewID string, mode UpdateMode, gen uint64) (st *State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("banner: panic: %v", r)
		}
	}()

	fm, err := s.meta.Frontmatter(notePath)
	if err != nil {
		return nil, fmt.Errorf("banner: frontmatter %s: %w", notePath, err)
	}
	override := s.folders.For(notePath)
	key := Key{Path: notePath, ViewID: viewID, Shuffled: s.resolver.Shuffled(fm, override)}
	snapshot := s.snapshot(fm)

	if mode == UpdateForce {
		s.forget(notePath)
		s.cache.Delete(key)
	} else if e, ok := s.cache.Get(key); ok && s.fresh(e, snapshot, mode) {
		s.cache.Touch(key)
		s.hits.Add(1)
		st := e.state(true)
		if s.relevant(viewID, notePath, gen) {
			s.renderer.Show(viewID, st)
		}
		return st, nil
	}
	return s.recompute(ctx, key, fm, override, snapshot, gen)
}

func (s *Service) fresh(e Entry, snapshot map[string]any, mode UpdateMode) bool {
	if e.Shuffled && mode != UpdateEnsureVisible && s.cache.Age(e) > s.cache.TTL(true) {
		s.forget(e.Path)
		return false
	}
	if !reflect.DeepEqual(e.Snapshot, snapshot) {
		return false
	}
	return s.remembered(e.Path)
}

func (s *Service) recompute(ctx context.Context, key Key, fm map[string]any, override *FolderOverride, snapshot map[string]any, gen uint64) (*State, error) {
	s.resolutions.Add(1)
	src := s.resolver.Resolve(key.Path, fm, override)
	if src == nil {
		s.clear(key, gen)
		return nil, nil
	}
	img, fresh, err := s.obtain(ctx, key.Path, *src, key.Shuffled)
	if err != nil {
		return nil, err
	}
	if img == nil {
		s.clear(key, gen)
		return nil, nil
	}
	entry := Entry{
		Snapshot:   snapshot,
		Path:       key.Path,
		ViewID:     key.ViewID,
		Shuffled:   key.Shuffled,
		Input:      *src,
		Image:      *img,
		Display:    deriveDisplay(fm, override, &s.settings),
		Decoration: deriveDecoration(fm, override, &s.settings),
	}
	stored, ok, err := s.commit(key, entry, fresh, gen)
	if err != nil || !ok {
		return nil, err
	}
	st := stored.state(false)
	s.renderer.Show(key.ViewID, st)
	return st, nil
}

// obtain reuses the remembered image of a non-shuffled note when the input
// is unchanged and its handle is still alive; otherwise it acquires anew.
// fresh reports whether the image was just acquired.
func (s *Service) obtain(ctx context.Context, notePath string, src Source, shuffled bool) (img *ResolvedImage, fresh bool, err error) {
	if !shuffled {
		s.mu.Lock()
		m, ok := s.memo[notePath]
		s.mu.Unlock()
		if ok && m.input == src && s.live(m.image) {
			s.memoReuses.Add(1)
			reused := m.image
			return &reused, false, nil
		}
	}
	s.acquisitions.Add(1)
	img, err = s.acquirer.Acquire(ctx, notePath, src)
	return img, true, err
}

// commit stores entry if the view still shows the same note and returns it as
// stored. A dropped result releases the handle it just created.
func (s *Service) commit(key Key, entry Entry, fresh bool, gen uint64) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.relevantLocked(key.ViewID, key.Path, gen) {
		s.dropped.Add(1)
		if fresh && entry.Image.Transient && !s.cache.Retained(entry.Image.Reference) {
			s.blobs.Revoke(entry.Image.Reference)
		}
		s.logger.Debug("banner: dropping stale result",
			slog.String("path", key.Path),
			slog.String("view", key.ViewID))
		return Entry{}, false, nil
	}
	stored, ok := s.cache.Put(key, entry, fresh)
	if !ok {
		delete(s.memo, key.Path)
		return Entry{}, false, errHandleReleased
	}
	s.memo[key.Path] = memo{input: stored.Input, image: stored.Image}
	s.trimMemoLocked()
	return stored, true, nil
}

// clear leaves no entry behind for a view whose note has no banner.
func (s *Service) clear(key Key, gen uint64) {
	if !s.relevant(key.ViewID, key.Path, gen) {
		return
	}
	s.cache.Delete(key)
	s.trimMemo()
	s.renderer.Hide(key.ViewID, key.Path)
}

// mark records that viewID shows notePath. The generation changes only when
// the view navigates to another note or is reopened.
func (s *Service) mark(viewID, notePath string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[viewID]
	if !ok || v.path != notePath {
		s.nextGen++
		v = viewMark{path: notePath, gen: s.nextGen}
		s.views[viewID] = v
	}
	return v.gen
}

func (s *Service) relevant(viewID, notePath string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relevantLocked(viewID, notePath, gen)
}

func (s *Service) relevantLocked(viewID, notePath string, gen uint64) bool {
	v, ok := s.views[viewID]
	return ok && v.gen == gen && v.path == notePath
}

func (s *Service) live(img ResolvedImage) bool {
	return !img.Transient || s.cache.Retained(img.Reference)
}

func (s *Service) remembered(notePath string) bool {
	s.mu.Lock()
	m, ok := s.memo[notePath]
	s.mu.Unlock()
	return ok && s.live(m.image)
}

// trimMemo drops the remembered images of notes that no entry shows anymore.
func (s *Service) trimMemo() {
	s.mu.Lock()
	s.trimMemoLocked()
	s.mu.Unlock()
}

func (s *Service) trimMemoLocked() {
	if len(s.memo) == 0 {
		return
	}
	live := s.cache.Paths()
	for p := range s.memo {
		if _, ok := live[p]; !ok {
			delete(s.memo, p)
		}
	}
}

func (s *Service) forget(notePath string) {
	s.mu.Lock()
	delete(s.memo, notePath)
	s.mu.Unlock()
}

func (s *Service) snapshot(fm map[string]any) map[string]any {
	out := make(map[string]any, len(s.recognized))
	for _, f := range s.recognized {
		if v, ok := fm[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Invalidate drops every entry of a closed view.
func (s *Service) Invalidate(viewID string) int {
	s.mu.Lock()
	delete(s.views, viewID)
	s.mu.Unlock()
	n := s.cache.Invalidate(viewID)
	s.trimMemo()
	return n
}

// InvalidatePath drops every entry and the remembered image of a note.
func (s *Service) InvalidatePath(notePath string) int {
	s.forget(notePath)
	return s.cache.InvalidatePath(notePath)
}

// Sweep removes expired entries, or every entry if force.
func (s *Service) Sweep(force bool) int {
	n := s.cache.Sweep(force)
	if n > 0 {
		s.trimMemo()
	}
	return n
}

// Current returns the cached state of a view without resolving anything.
func (s *Service) Current(viewID string) (*State, bool) {
	s.mu.Lock()
	v, ok := s.views[viewID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	for _, shuffled := range []bool{false, true} {
		if e, ok := s.cache.Get(Key{Path: v.path, ViewID: viewID, Shuffled: shuffled}); ok {
			return e.state(true), true
		}
	}
	return nil, false
}

// Classify returns the input type of a raw banner value.
func (s *Service) Classify(v any) InputType {
	return Classify(v, s.vault)
}

// Recognized reports whether a frontmatter key influences banners.
func (s *Service) Recognized(field string) bool {
	return slices.Contains(s.recognized, field)
}

// Stats returns the service counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	remembered := len(s.memo)
	s.mu.Unlock()
	return Stats{
		Activations:  s.activations.Load(),
		Hits:         s.hits.Load(),
		Resolutions:  s.resolutions.Load(),
		Acquisitions: s.acquisitions.Load(),
		MemoReuses:   s.memoReuses.Load(),
		Dropped:      s.dropped.Load(),
		Failures:     s.failures.Load(),
		Entries:      s.cache.Len(),
		Remembered:   remembered,
	}
}
