package setaside

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/setaside/internal/blob"
	"github.com/hyperengineering/setaside/internal/metadata"
)

// seqIDs hands out UUID-shaped ids in order.
type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", s.n.Add(1))
}

// recorder is a subscriber channel that keeps what it is sent.
type recorder struct {
	id   string
	log  *orderLog
	fail error

	mu   sync.Mutex
	msgs []Outbound
}

// orderLog records which channel received each message, across channels.
type orderLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *orderLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *orderLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(_ context.Context, msg Outbound) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	if r.log != nil {
		r.log.add(r.id)
	}
	return nil
}

func (r *recorder) messages() []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outbound(nil), r.msgs...)
}

func (r *recorder) types() []string {
	var out []string
	for _, m := range r.messages() {
		out = append(out, m.Type)
	}
	return out
}

// waitFor waits until at least n messages have arrived.
func (r *recorder) waitFor(t *testing.T, n int) []Outbound {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := r.messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	msgs := r.messages()
	t.Fatalf("channel %s: got %d messages %v, want %d", r.id, len(msgs), r.types(), n)
	return nil
}

// openRecorder is a TabOpener that remembers the URLs it opened.
type openRecorder struct {
	mu   sync.Mutex
	urls []string
	fail map[string]error
}

func (o *openRecorder) Open(_ context.Context, url, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[url]; err != nil {
		return err
	}
	o.urls = append(o.urls, url)
	return nil
}

func (o *openRecorder) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

// gatedMetadata blocks GetAll until released, holding the coordinator in hydration.
type gatedMetadata struct {
	*metadata.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedMetadata(m *metadata.Memory) *gatedMetadata {
	return &gatedMetadata{Memory: m, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedMetadata) GetAll(ctx context.Context) (map[string][]byte, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Memory.GetAll(ctx)
}

// heldMetadata delays change delivery while hold is set, so echoes of local
// writes arrive late.
type heldMetadata struct {
	*metadata.Memory

	mu   sync.Mutex
	hold bool
	held []metadata.Change
	fn   func(metadata.Change)
}

func (h *heldMetadata) OnChange(fn func(metadata.Change)) func() {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
	return h.Memory.OnChange(func(c metadata.Change) {
		h.mu.Lock()
		if h.hold {
			h.held = append(h.held, c)
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
		fn(c)
	})
}

func (h *heldMetadata) setHold(v bool) {
	h.mu.Lock()
	h.hold = v
	h.mu.Unlock()
}

func (h *heldMetadata) releaseHeld() {
	h.mu.Lock()
	held, fn := h.held, h.fn
	h.held = nil
	h.hold = false
	h.mu.Unlock()
	for _, c := range held {
		fn(c)
	}
}

type fixture struct {
	meta   *metadata.Memory
	blobs  *blob.Memory
	coord  *Coordinator
	reg    *Registry
	opener *openRecorder
	ids    *seqIDs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		meta:   metadata.NewMemory(Area),
		blobs:  blob.NewMemory(),
		opener: &openRecorder{},
		ids:    &seqIDs{},
	}
	f.reg = NewRegistry(nil)
	return f
}

// build creates the coordinator over meta (f.meta when nil).
func (f *fixture) build(t *testing.T, meta MetadataStore) *Coordinator {
	t.Helper()
	if meta == nil {
		meta = f.meta
	}
	c, err := NewCoordinator(Options{
		Metadata: meta,
		Blobs:    f.blobs,
		Registry: f.reg,
		Opener:   f.opener,
		IDs:      f.ids,
		Now:      func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	f.coord = c
	return c
}

// start builds and initializes the coordinator over f.meta.
func (f *fixture) start(t *testing.T) *Coordinator {
	t.Helper()
	c := f.build(t, nil)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return c
}

func (f *fixture) subscribe(id string) *recorder {
	r := newRecorder(id)
	f.reg.Connect(r)
	return r
}

func (f *fixture) metaKeys(t *testing.T) map[string][]byte {
	t.Helper()
	all, err := f.meta.GetAll(context.Background())
	if err != nil {
		t.Fatalf("metadata GetAll failed: %v", err)
	}
	return all
}

func (f *fixture) blobKeys(t *testing.T) []string {
	t.Helper()
	keys, err := f.blobs.Keys(context.Background())
	if err != nil {
		t.Fatalf("blob Keys failed: %v", err)
	}
	return keys
}

// seed writes a collection straight into the stores, bypassing the coordinator.
func seed(t *testing.T, meta *metadata.Memory, blobs *blob.Memory, col *Collection) {
	t.Helper()
	ctx := context.Background()
	value, err := Serialize(col)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if err := meta.Set(ctx, col.Key(), value); err != nil {
		t.Fatalf("metadata Set failed: %v", err)
	}
	if blobs != nil {
		att, err := encodeAttachments(col)
		if err != nil {
			t.Fatalf("encodeAttachments failed: %v", err)
		}
		if err := blobs.Set(ctx, col.ID, att); err != nil {
			t.Fatalf("blob Set failed: %v", err)
		}
	}
}

func testCollection(id string, urls ...string) *Collection {
	col := &Collection{ID: id, CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC)}
	for i, u := range urls {
		col.Items = append(col.Items, Item{
			ID:    fmt.Sprintf("%s-item-%d", id[:8], i),
			URL:   u,
			Title: fmt.Sprintf("Page %d", i),
		})
	}
	return col
}

const (
	idA = "0a0a0a0a-0000-4000-8000-00000000000a"
	idB = "0b0b0b0b-0000-4000-8000-00000000000b"
	idC = "0c0c0c0c-0000-4000-8000-00000000000c"
)
