package banner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/bannerd/internal/models"
	"github.com/starford/bannerd/internal/provider"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVault is an in-memory vault. entered and gate, when set, let a test
// pause a read in flight.
type fakeVault struct {
	mu      sync.Mutex
	files   map[string][]byte
	reads   int
	entered chan struct{}
	gate    chan struct{}
}

func newFakeVault(paths ...string) *fakeVault {
	v := &fakeVault{files: make(map[string][]byte)}
	for _, p := range paths {
		v.files[p] = []byte("img:" + p)
	}
	return v
}

func (v *fakeVault) ImageExists(p string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.files[p]
	return ok && models.IsImagePath(p)
}

func (v *fakeVault) ReadBinary(p string) ([]byte, error) {
	if v.entered != nil {
		v.entered <- struct{}{}
	}
	if v.gate != nil {
		<-v.gate
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reads++
	data, ok := v.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (v *fakeVault) ResolveLink(link, _ string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.files[link]; ok {
		return link, true
	}
	for _, p := range v.sortedLocked() {
		if path.Base(p) == link {
			return p, true
		}
	}
	return "", false
}

func (v *fakeVault) ListImages(folder string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, p := range v.sortedLocked() {
		if parentDir(p) == folder && models.IsImagePath(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *fakeVault) sortedLocked() []string {
	out := make([]string, 0, len(v.files))
	for p := range v.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (v *fakeVault) readCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}

// fakeMeta serves frontmatter from a map. fail and panics make the next
// calls misbehave.
type fakeMeta struct {
	mu     sync.Mutex
	notes  map[string]map[string]any
	fail   int
	panics int
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{notes: make(map[string]map[string]any)}
}

func (m *fakeMeta) set(p string, fm map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[p] = fm
}

func (m *fakeMeta) Frontmatter(p string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics > 0 {
		m.panics--
		panic("frontmatter exploded")
	}
	if m.fail > 0 {
		m.fail--
		return nil, errors.New("metadata cache unavailable")
	}
	return m.notes[p], nil
}

// countingBlobs records every handle created and revoked.
type countingBlobs struct {
	*BlobStore
	mu      sync.Mutex
	created []string
	revoked map[string]int
}

func newCountingBlobs() *countingBlobs {
	return &countingBlobs{BlobStore: NewBlobStore(), revoked: make(map[string]int)}
}

func (b *countingBlobs) Create(data []byte, mimeType string) string {
	ref := b.BlobStore.Create(data, mimeType)
	b.mu.Lock()
	b.created = append(b.created, ref)
	b.mu.Unlock()
	return ref
}

func (b *countingBlobs) Revoke(ref string) bool {
	b.mu.Lock()
	b.revoked[ref]++
	b.mu.Unlock()
	return b.BlobStore.Revoke(ref)
}

func (b *countingBlobs) revokedCount(ref string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[ref]
}

func (b *countingBlobs) totalRevoked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.revoked {
		n += c
	}
	return n
}

func (b *countingBlobs) createdRefs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.created...)
}

// fakeSearch answers keyword searches from a map.
type fakeSearch struct {
	mu      sync.Mutex
	results map[string]string
	err     error
	calls   []string
}

func (s *fakeSearch) Pick(_ context.Context, keyword string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, keyword)
	if s.err != nil {
		return "", s.err
	}
	if u, ok := s.results[keyword]; ok {
		return u, nil
	}
	return "", provider.ErrNoResults
}

func (s *fakeSearch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// seqRand returns vals in order, each reduced modulo n.
type seqRand struct {
	mu   sync.Mutex
	vals []int
	i    int
}

func (r *seqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v % n
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notice(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type recordingRenderer struct {
	mu    sync.Mutex
	shown []string
	hid   []string
}

func (r *recordingRenderer) Show(viewID string, st *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, viewID+":"+st.Image.Reference)
}

func (r *recordingRenderer) Hide(viewID, notePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hid = append(r.hid, viewID+":"+notePath)
}

func (r *recordingRenderer) hides() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hid)
}

type testEnv struct {
	svc      *Service
	vault    *fakeVault
	meta     *fakeMeta
	blobs    *countingBlobs
	search   *fakeSearch
	clock    clockwork.FakeClock
	notifier *recordingNotifier
	renderer *recordingRenderer
}

func newTestEnv(t *testing.T, settings Settings, vault *fakeVault, r Rand) *testEnv {
	t.Helper()
	env := &testEnv{
		vault:    vault,
		meta:     newFakeMeta(),
		blobs:    newCountingBlobs(),
		search:   &fakeSearch{results: map[string]string{}},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		renderer: &recordingRenderer{},
	}
	env.svc = NewService(settings, Deps{
		Vault:    vault,
		Meta:     env.meta,
		Blobs:    env.blobs,
		Search:   env.search,
		Renderer: env.renderer,
		Notifier: env.notifier,
		Clock:    env.clock,
		Rand:     r,
		Logger:   quietLogger(),
	})
	return env
}

func testSettings() Settings {
	s := DefaultSettings()
	s.DefaultKeywords = []string{"nature"}
	return s
}

func hasPrefix(refs []string, prefix string) bool {
	for _, r := range refs {
		if !strings.HasPrefix(r, prefix) {
			return false
		}
	}
	return true
}
