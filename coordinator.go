package setaside

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/setaside/internal/metadata"
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateHydrating
	stateReady
)

func (s lifecycle) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateHydrating:
		return "hydrating"
	case stateReady:
		return "ready"
	}
	return "unknown"
}

// Change kinds reported for metadata store events.
const (
	ChangeCreated = "created"
	ChangeRemoved = "removed"
	ChangeChanged = "changed"
)

// hydrationWorkers bounds concurrent blob lookups during Init.
const hydrationWorkers = 8

// Options configures a Coordinator. Metadata and Blobs are required.
type Options struct {
	Metadata MetadataStore
	Blobs    BlobStore
	Registry *Registry
	Opener   TabOpener
	Capturer Capturer
	IDs      IDGenerator
	Logger   log.Logger
	Now      func() time.Time
}

type queuedRequest struct {
	ch  Channel
	msg Inbound
}

// Coordinator owns the in-memory view of every collection and keeps it coherent
// with the metadata and blob stores. Mutations of one collection id run one at a
// time in arrival order, whether they come from subscribers, direct calls or the
// metadata store's change feed.
type Coordinator struct {
	meta     MetadataStore
	blobs    BlobStore
	registry *Registry
	opener   TabOpener
	capturer Capturer
	ids      IDGenerator
	logger   log.Logger
	now      func() time.Time

	queue *KeyedQueue
	ready chan struct{}

	mu          sync.Mutex
	state       lifecycle
	collections map[string]*Collection
	// pending holds, per metadata key, the values of local writes whose change
	// events have not come back yet. nil stands for a removal.
	pending     map[string][][]byte
	requests    []queuedRequest
	draining    bool
	buffering   bool
	buffered    []metadata.Change
	cancelWatch func()
}

// NewCoordinator returns an uninitialized coordinator. Call Init before use.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Metadata == nil {
		return nil, errors.New("coordinator: metadata store required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("coordinator: blob store required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.Logger)
	}
	if opts.Opener == nil {
		opts.Opener = noOpener{}
	}
	if opts.Capturer == nil {
		opts.Capturer = plainCapture{}
	}
	if opts.IDs == nil {
		opts.IDs = UUIDs{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		meta:        opts.Metadata,
		blobs:       opts.Blobs,
		registry:    opts.Registry,
		opener:      opts.Opener,
		capturer:    opts.Capturer,
		ids:         opts.IDs,
		logger:      log.With(opts.Logger, "component", "coordinator"),
		now:         opts.Now,
		queue:       NewKeyedQueue(),
		ready:       make(chan struct{}),
		collections: make(map[string]*Collection),
		pending:     make(map[string][][]byte),
	}, nil
}

// Registry returns the subscriber registry the coordinator broadcasts to.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Ready reports whether hydration has finished.
func (c *Coordinator) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Init hydrates the in-memory view from both stores, deletes blob records with no
// collection, then serves the requests that arrived in the meantime. Change events
// seen during Init are applied afterwards, in the order they arrived.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateUninitialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.state = stateHydrating
	c.buffering = true
	c.mu.Unlock()

	cancel := c.meta.OnChange(c.HandleExternalChange)
	c.mu.Lock()
	c.cancelWatch = cancel
	c.mu.Unlock()

	start := c.now()
	cols, err := c.hydrate(ctx)
	if err != nil {
		stats.Operation("init", err)
		return fmt.Errorf("hydrate: %w", err)
	}

	c.mu.Lock()
	for id, col := range cols {
		c.collections[id] = col
	}
	stats.collections.Set(float64(len(c.collections)))
	c.mu.Unlock()

	removed, err := c.collectGarbage(ctx, false)
	if err != nil {
		level.Warn(c.logger).Log("op", "init", "msg", "stale attachment cleanup skipped", "error", err)
	}

	c.mu.Lock()
	c.state = stateReady
	c.draining = true
	c.mu.Unlock()
	close(c.ready)

	level.Info(c.logger).Log("op", "init", "collections", len(cols), "stale", removed, "took", c.now().Sub(start))

	c.drain(ctx)

	c.mu.Lock()
	buffered := c.buffered
	c.buffered = nil
	c.buffering = false
	for _, ch := range buffered {
		c.submitChangeLocked(ch)
	}
	c.mu.Unlock()

	stats.Operation("init", nil)
	return nil
}

// Close stops following the metadata store and waits for queued work to finish.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	cancel := c.cancelWatch
	c.cancelWatch = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.queue.Wait()
	return nil
}

func (c *Coordinator) hydrate(ctx context.Context) (map[string]*Collection, error) {
	values, err := c.meta.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	cols := make(map[string]*Collection)
	for key, value := range values {
		id, ok := CollectionIDFromKey(key)
		if !ok {
			continue
		}
		col, err := decodeCollection(id, key, value)
		if err != nil {
			stats.malformed.Inc()
			level.Warn(c.logger).Log("op", "hydrate", "key", key, "msg", "skipping record", "error", err)
			continue
		}
		cols[id] = col
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrationWorkers)
	for _, col := range cols {
		g.Go(func() error {
			c.loadAttachments(gctx, col)
			return nil
		})
	}
	_ = g.Wait()

	return cols, ctx.Err()
}

func decodeCollection(id, key string, value []byte) (*Collection, error) {
	col, err := Deserialize(value)
	if err != nil {
		return nil, err
	}
	if col.ID != id {
		return nil, &RecordError{Key: key, Err: fmt.Errorf("record names collection %q", col.ID)}
	}
	return col, nil
}

// loadAttachments merges the blob record of col into its items. It reports whether
// a record was found and applied.
func (c *Coordinator) loadAttachments(ctx context.Context, col *Collection) bool {
	data, ok, err := c.blobs.Get(ctx, col.ID)
	if err != nil {
		level.Warn(c.logger).Log("op", "attachments", "collection", col.ID, "msg", "attachments unavailable", "error", err)
		return false
	}
	if !ok {
		level.Debug(c.logger).Log("op", "attachments", "collection", col.ID, "msg", "no attachments stored")
		return false
	}
	rec, err := decodeAttachments(col.ID, data)
	if err != nil {
		stats.malformed.Inc()
		level.Warn(c.logger).Log("op", "attachments", "collection", col.ID, "msg", "skipping record", "error", err)
		return false
	}
	rec.merge(col)
	return true
}

// attach fills in col's attachments from the blob store, falling back to those
// already held for the same items in prev.
func (c *Coordinator) attach(ctx context.Context, col, prev *Collection) {
	if c.loadAttachments(ctx, col) || prev == nil {
		return
	}
	for i := range col.Items {
		if it, ok := prev.Item(col.Items[i].ID); ok {
			col.Items[i].Favicon = it.Favicon
			col.Items[i].Thumbnail = it.Thumbnail
		}
	}
}

// CollectGarbage deletes blob records that belong to no known collection and
// returns how many were deleted.
func (c *Coordinator) CollectGarbage(ctx context.Context) (int, error) {
	if err := c.waitReady(ctx); err != nil {
		return 0, err
	}
	n, err := c.collectGarbage(ctx, true)
	stats.Operation("gc", err)
	return n, err
}

// collectGarbage runs the stale blob pass. With serialize set each deletion runs
// in its collection's queue slot so it cannot race a create of the same id.
func (c *Coordinator) collectGarbage(ctx context.Context, serialize bool) (int, error) {
	keys, err := c.blobs.Keys(ctx)
	if err != nil {
		return 0, err
	}

	var removed atomic.Int64
	for _, key := range keys {
		del := func() error {
			if c.live(key) {
				return nil
			}
			if err := c.blobs.Delete(ctx, key); err != nil {
				return err
			}
			removed.Add(1)
			stats.gcDeleted.Inc()
			level.Info(c.logger).Log("op", "gc", "collection", key, "msg", "removed attachments of stale collection")
			return nil
		}

		if serialize {
			err = c.queue.Do(ctx, key, del)
		} else {
			err = del()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return int(removed.Load()), ctxErr
		}
		if err != nil {
			level.Warn(c.logger).Log("op", "gc", "collection", key, "error", err)
		}
	}
	return int(removed.Load()), nil
}

// live reports whether a blob key may still be needed: its collection is known, a
// local write for it is in flight, or a change event for it is waiting to be applied.
func (c *Coordinator) live(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.collections[id]; ok {
		return true
	}
	key := CollectionKey(id)
	if len(c.pending[key]) > 0 {
		return true
	}
	for _, ch := range c.buffered {
		if ch.Key == key {
			return true
		}
	}
	return false
}

func (c *Coordinator) waitReady(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == stateUninitialized {
		return ErrNotReady
	}

	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleMessage serves one subscriber request. Requests that arrive before Init
// has finished are queued and served afterwards in arrival order.
func (c *Coordinator) HandleMessage(ctx context.Context, ch Channel, msg Inbound) {
	c.mu.Lock()
	if c.state != stateReady || c.draining {
		c.requests = append(c.requests, queuedRequest{ch: ch, msg: msg})
		stats.queuedRequests.Set(float64(len(c.requests)))
		c.mu.Unlock()
		level.Debug(c.logger).Log("op", "queue", "channel", ch.ID(), "type", msg.Type)
		return
	}
	c.mu.Unlock()

	c.dispatch(ctx, ch, msg)
}

func (c *Coordinator) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.requests) == 0 {
			c.draining = false
			c.requests = nil
			c.mu.Unlock()
			stats.queuedRequests.Set(0)
			return
		}
		r := c.requests[0]
		c.requests[0] = queuedRequest{}
		c.requests = c.requests[1:]
		stats.queuedRequests.Set(float64(len(c.requests)))
		c.mu.Unlock()

		if !c.registry.Connected(r.ch) {
			level.Debug(c.logger).Log("op", "drain", "channel", r.ch.ID(), "type", r.msg.Type, "msg", "channel gone, dropping")
			continue
		}
		c.dispatch(ctx, r.ch, r.msg)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ch Channel, msg Inbound) {
	level.Debug(c.logger).Log("op", "dispatch", "channel", ch.ID(), "type", msg.Type)

	var err error
	switch msg.Type {
	case TypeListCollections:
		c.registry.Reply(ctx, ch, CollectionsMessage(c.Collections()))
		return
	case TypeCreateCollection:
		_, err = c.createCollection(ctx, msg.Items)
	case TypeRemoveItem:
		err = c.removeItem(ctx, msg.CollectionID, msg.ItemID)
	case TypeRestoreItem:
		err = c.restoreItem(ctx, msg.CollectionID, msg.ItemID, msg.Destination)
	case TypeRemoveCollection:
		err = c.removeCollection(ctx, msg.CollectionID)
	case TypeRestoreCollection:
		err = c.restoreCollection(ctx, msg.CollectionID, msg.Destination)
	default:
		level.Warn(c.logger).Log("op", "dispatch", "channel", ch.ID(), "type", msg.Type, "msg", "unknown message type")
		return
	}

	if err != nil {
		level.Error(c.logger).Log("op", msg.Type, "channel", ch.ID(), "collection", msg.CollectionID, "error", err)
		if errors.Is(err, ErrQuotaExceeded) {
			c.registry.Reply(ctx, ch, ErrorMessage(msg.Type, err))
		}
	}
}

// Collections returns a copy of every collection, newest first.
func (c *Coordinator) Collections() []*Collection {
	c.mu.Lock()
	out := make([]*Collection, 0, len(c.collections))
	for _, col := range c.collections {
		out = append(out, col.Clone())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Collection returns a copy of the collection with the given id.
func (c *Coordinator) Collection(id string) (*Collection, bool) {
	col, ok := c.get(id)
	if !ok {
		return nil, false
	}
	return col.Clone(), true
}

// SetAside turns a window's tabs into a new collection. Batches from incognito
// windows are refused, and tabs that cannot be reopened are dropped. Attachments
// that cannot be captured are left out. Returns nil when nothing was kept.
func (c *Coordinator) SetAside(ctx context.Context, tabs []Tab) (*Collection, error) {
	if len(tabs) == 0 {
		return nil, nil
	}
	for _, t := range tabs {
		if t.Incognito {
			level.Info(c.logger).Log("op", "setAside", "msg", "refusing tabs from a private window")
			return nil, nil
		}
	}

	keep := make([]Tab, 0, len(tabs))
	for _, t := range tabs {
		if Restorable(t.URL) {
			keep = append(keep, t)
		}
	}
	if len(keep) == 0 {
		return nil, nil
	}

	items, err := c.capturer.Capture(ctx, keep)
	if err == nil && len(items) != len(keep) {
		err = fmt.Errorf("%w: got %d items for %d tabs", ErrCaptureFailed, len(items), len(keep))
	}
	if err != nil {
		level.Warn(c.logger).Log("op", "setAside", "msg", "saving without attachments", "error", err)
		items = itemsFromTabs(keep)
	}
	return c.CreateCollection(ctx, items)
}

// CreateCollection stores items as a new collection and returns it. An empty item
// list creates nothing and returns nil. The attachment record is written before the
// metadata record and removed again if the metadata write fails.
func (c *Coordinator) CreateCollection(ctx context.Context, items []Item) (*Collection, error) {
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}
	return c.createCollection(ctx, items)
}

func (c *Coordinator) createCollection(ctx context.Context, items []Item) (*Collection, error) {
	if len(items) == 0 {
		level.Debug(c.logger).Log("op", "createCollection", "msg", "no items, nothing to create")
		return nil, nil
	}

	col := &Collection{
		ID:        c.ids.NewID(),
		CreatedAt: c.now().UTC().Truncate(time.Millisecond),
		Items:     make([]Item, 0, len(items)),
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			it.ID = c.ids.NewID()
		}
		seen[it.ID] = true
		it.Favicon = cloneBytes(it.Favicon)
		it.Thumbnail = cloneBytes(it.Thumbnail)
		col.Items = append(col.Items, it)
	}

	var out *Collection
	err := c.queue.Do(ctx, col.ID, func() error {
		var err error
		out, err = c.createLocked(ctx, col)
		return err
	})
	stats.Operation(TypeCreateCollection, err)
	return out, err
}

func (c *Coordinator) createLocked(ctx context.Context, col *Collection) (*Collection, error) {
	att, err := encodeAttachments(col)
	if err == nil {
		err = c.blobs.Set(ctx, col.ID, att)
	}
	if err != nil {
		level.Warn(c.logger).Log("op", "createCollection", "collection", col.ID, "msg", "attachments not stored", "error", err)
	}

	value, err := Serialize(col)
	if err != nil {
		return nil, err
	}
	key := col.Key()
	c.expect(key, value)
	if err := c.meta.Set(ctx, key, value); err != nil {
		c.unexpect(key)
		if derr := c.blobs.Delete(ctx, col.ID); derr != nil {
			level.Warn(c.logger).Log("op", "createCollection", "collection", col.ID, "msg", "orphaned attachments left for cleanup", "error", derr)
		}
		return nil, fmt.Errorf("store collection %s: %w", col.ID, err)
	}

	c.put(col)
	level.Info(c.logger).Log("op", "createCollection", "collection", col.ID, "items", len(col.Items))
	return col.Clone(), nil
}

// RemoveItem removes one item. Removing the last item removes the collection.
// Unknown ids are logged and ignored.
func (c *Coordinator) RemoveItem(ctx context.Context, collectionID, itemID string) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.removeItem(ctx, collectionID, itemID)
}

func (c *Coordinator) removeItem(ctx context.Context, collectionID, itemID string) error {
	err := c.queue.Do(ctx, collectionID, func() error {
		return c.removeItemLocked(ctx, collectionID, itemID)
	})
	stats.Operation(TypeRemoveItem, err)
	return err
}

func (c *Coordinator) removeItemLocked(ctx context.Context, collectionID, itemID string) error {
	col, ok := c.lookup("removeItem", collectionID, itemID)
	if !ok {
		return nil
	}

	next := col.Without(itemID)
	if len(next.Items) == 0 {
		return c.removeCollectionLocked(ctx, collectionID)
	}

	value, err := Serialize(next)
	if err != nil {
		return err
	}
	key := next.Key()
	c.expect(key, value)
	if err := c.meta.Set(ctx, key, value); err != nil {
		c.unexpect(key)
		return fmt.Errorf("update collection %s: %w", collectionID, err)
	}

	c.put(next)
	level.Info(c.logger).Log("op", "removeItem", "collection", collectionID, "item", itemID, "remaining", len(next.Items))
	return nil
}

// RestoreItem opens the item's URL in destination and then removes the item. If
// the URL cannot be opened the item is kept and the error returned.
func (c *Coordinator) RestoreItem(ctx context.Context, collectionID, itemID, destination string) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.restoreItem(ctx, collectionID, itemID, destination)
}

func (c *Coordinator) restoreItem(ctx context.Context, collectionID, itemID, destination string) error {
	err := c.queue.Do(ctx, collectionID, func() error {
		col, ok := c.lookup("restoreItem", collectionID, itemID)
		if !ok {
			return nil
		}
		it, _ := col.Item(itemID)
		if err := c.opener.Open(ctx, it.URL, destination); err != nil {
			return fmt.Errorf("open %s: %w", it.URL, err)
		}
		return c.removeItemLocked(ctx, collectionID, itemID)
	})
	stats.Operation(TypeRestoreItem, err)
	return err
}

// RemoveCollection deletes a collection from both stores. A failure to delete the
// attachment record is logged and left to garbage collection.
func (c *Coordinator) RemoveCollection(ctx context.Context, collectionID string) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.removeCollection(ctx, collectionID)
}

func (c *Coordinator) removeCollection(ctx context.Context, collectionID string) error {
	err := c.queue.Do(ctx, collectionID, func() error {
		return c.removeCollectionLocked(ctx, collectionID)
	})
	stats.Operation(TypeRemoveCollection, err)
	return err
}

func (c *Coordinator) removeCollectionLocked(ctx context.Context, collectionID string) error {
	if _, ok := c.lookup("removeCollection", collectionID, ""); !ok {
		return nil
	}

	key := CollectionKey(collectionID)
	c.expect(key, nil)
	if err := c.meta.Remove(ctx, key); err != nil {
		c.unexpect(key)
		return fmt.Errorf("remove collection %s: %w", collectionID, err)
	}
	if err := c.blobs.Delete(ctx, collectionID); err != nil {
		level.Warn(c.logger).Log("op", "removeCollection", "collection", collectionID, "msg", "attachments left for cleanup", "error", err)
	}

	c.drop(collectionID)
	level.Info(c.logger).Log("op", "removeCollection", "collection", collectionID)
	return nil
}

// RestoreCollection opens every item's URL in destination, in collection order,
// then removes the collection. Opening stops at the first failure and nothing is
// removed.
func (c *Coordinator) RestoreCollection(ctx context.Context, collectionID, destination string) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	return c.restoreCollection(ctx, collectionID, destination)
}

func (c *Coordinator) restoreCollection(ctx context.Context, collectionID, destination string) error {
	err := c.queue.Do(ctx, collectionID, func() error {
		col, ok := c.lookup("restoreCollection", collectionID, "")
		if !ok {
			return nil
		}

		for _, it := range col.Items {
			if err := c.opener.Open(ctx, it.URL, destination); err != nil {
				return fmt.Errorf("open %s: %w", it.URL, err)
			}
		}
		return c.removeCollectionLocked(ctx, collectionID)
	})
	stats.Operation(TypeRestoreCollection, err)
	return err
}

// lookup returns the collection, logging a warning when it or the item (if
// itemID is set) is unknown.
func (c *Coordinator) lookup(op, collectionID, itemID string) (*Collection, bool) {
	col, ok := c.get(collectionID)
	if !ok {
		level.Warn(c.logger).Log("op", op, "collection", collectionID, "error", ErrNotFound)
		return nil, false
	}
	if itemID == "" {
		return col, true
	}
	if _, ok := col.Item(itemID); !ok {
		level.Warn(c.logger).Log("op", op, "collection", collectionID, "item", itemID, "error", "item not found")
		return nil, false
	}
	return col, true
}

// HandleExternalChange takes one metadata store change. Changes to other areas and
// to keys that are not collection keys are ignored. Each accepted change produces
// exactly one broadcast, delivered after any earlier work on the same collection.
func (c *Coordinator) HandleExternalChange(ch metadata.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffering {
		if ch.Area == c.meta.Area() {
			c.buffered = append(c.buffered, ch)
		}
		return
	}
	c.submitChangeLocked(ch)
}

func (c *Coordinator) submitChangeLocked(ch metadata.Change) {
	if ch.Area != c.meta.Area() {
		return
	}
	id, ok := CollectionIDFromKey(ch.Key)
	if !ok {
		return
	}
	if ch.OldValue == nil && ch.NewValue == nil {
		return
	}
	c.queue.Submit(id, func() {
		c.applyChange(context.Background(), id, ch)
	})
}

func changeKind(ch metadata.Change) string {
	switch {
	case ch.OldValue == nil:
		return ChangeCreated
	case ch.NewValue == nil:
		return ChangeRemoved
	default:
		return ChangeChanged
	}
}

// applyChange runs in id's queue slot. While local writes to the key are still
// unconfirmed the in-memory entry already holds their result, so an event is only
// applied once it settles the last of them.
func (c *Coordinator) applyChange(ctx context.Context, id string, ch metadata.Change) {
	kind := changeKind(ch)

	var next *Collection
	if ch.NewValue != nil {
		col, err := decodeCollection(id, ch.Key, ch.NewValue)
		if err != nil {
			stats.malformed.Inc()
			level.Warn(c.logger).Log("op", "change", "key", ch.Key, "kind", kind, "msg", "skipping record", "error", err)
			return
		}
		next = col
	}

	local, apply := c.settle(ch.Key, ch.NewValue)
	stats.Change(kind, local)

	if next != nil {
		prev, _ := c.get(id)
		c.attach(ctx, next, prev)
	}

	if apply {
		if next == nil {
			c.drop(id)
			if !local {
				if err := c.blobs.Delete(ctx, id); err != nil {
					level.Warn(c.logger).Log("op", "change", "collection", id, "msg", "attachments left for cleanup", "error", err)
				}
			}
		} else {
			c.put(next)
		}
	}

	level.Debug(c.logger).Log("op", "change", "collection", id, "kind", kind, "local", local, "applied", apply)

	var msg Outbound
	switch kind {
	case ChangeCreated:
		msg = CreatedMessage(next.Clone())
	case ChangeRemoved:
		msg = RemovedMessage(id)
	default:
		msg = ChangedMessage(next.Clone())
	}
	c.registry.Broadcast(ctx, msg)
}

// expect records a local write to key that has not been echoed back yet.
func (c *Coordinator) expect(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value != nil {
		value = compactJSON(value)
	}
	c.pending[key] = append(c.pending[key], value)
}

// unexpect forgets the most recent expected write to key after it failed.
func (c *Coordinator) unexpect(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending[key]
	if len(p) <= 1 {
		delete(c.pending, key)
		return
	}
	c.pending[key] = p[:len(p)-1]
}

// settle matches an event against the oldest expected write to its key. It
// reports whether the event was that write coming back, and whether no expected
// writes remain, in which case the event's value is current.
func (c *Coordinator) settle(key string, value []byte) (local, current bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pending[key]
	if len(p) > 0 && sameValue(p[0], value) {
		p = p[1:]
		local = true
	}
	if len(p) == 0 {
		delete(c.pending, key)
		return local, true
	}
	c.pending[key] = p
	return local, false
}

func (c *Coordinator) get(id string) (*Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.collections[id]
	return col, ok
}

func (c *Coordinator) put(col *Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[col.ID] = col
	stats.collections.Set(float64(len(c.collections)))
}

func (c *Coordinator) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collections, id)
	stats.collections.Set(float64(len(c.collections)))
}
