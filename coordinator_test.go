package setaside

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hyperengineering/setaside/internal/metadata"
)

func TestCoordinator_CreateThenRemoveFirstItem(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)
	ctx := context.Background()

	col, err := c.CreateCollection(ctx, []Item{{URL: "https://a"}, {URL: "https://b"}})
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if len(col.Items) != 2 {
		t.Fatalf("created collection has %d items, want 2", len(col.Items))
	}
	if got := len(f.metaKeys(t)); got != 1 {
		t.Errorf("metadata records = %d, want 1", got)
	}
	if diff := cmp.Diff([]string{col.ID}, f.blobKeys(t)); diff != "" {
		t.Errorf("blob keys mismatch (-want +got):\n%s", diff)
	}

	if err := c.RemoveItem(ctx, col.ID, col.Items[0].ID); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}

	got, ok := c.Collection(col.ID)
	if !ok {
		t.Fatal("collection missing after removing one of two items")
	}
	if len(got.Items) != 1 || got.Items[0].URL != "https://b" {
		t.Errorf("remaining items = %+v, want only https://b", got.Items)
	}

	stored, err := Deserialize(f.metaKeys(t)[col.Key()])
	if err != nil {
		t.Fatalf("stored record does not decode: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].ID != col.Items[1].ID {
		t.Errorf("stored items = %+v, want only the second item", stored.Items)
	}
	if diff := cmp.Diff([]string{col.ID}, f.blobKeys(t)); diff != "" {
		t.Errorf("blob record should survive item removal (-want +got):\n%s", diff)
	}
}

func TestCoordinator_RemoveLastItemRemovesCollection(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)
	ctx := context.Background()

	col, err := c.CreateCollection(ctx, []Item{{URL: "https://only", Favicon: []byte{1, 2}}})
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := c.RemoveItem(ctx, col.ID, col.Items[0].ID); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}

	if _, ok := c.Collection(col.ID); ok {
		t.Error("collection still in memory after its last item was removed")
	}
	if got := f.metaKeys(t); len(got) != 0 {
		t.Errorf("metadata still holds %v", got)
	}
	if got := f.blobKeys(t); len(got) != 0 {
		t.Errorf("blob store still holds %v", got)
	}
}

func TestCoordinator_CreateEmptyIsNoop(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)

	col, err := c.CreateCollection(context.Background(), nil)
	if err != nil || col != nil {
		t.Fatalf("CreateCollection(nil) = %v, %v; want nil, nil", col, err)
	}
	if len(f.metaKeys(t)) != 0 || len(f.blobKeys(t)) != 0 {
		t.Error("empty create wrote to a store")
	}
}

func TestCoordinator_InitHydratesAndCollectsStaleBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live := testCollection(idA, "https://a", "https://b")
	live.Items[0].Favicon = []byte("icon")
	live.Items[1].Thumbnail = []byte("thumb")
	seed(t, f.meta, f.blobs, live)

	stale := testCollection(idB, "https://gone")
	att, _ := encodeAttachments(stale)
	if err := f.blobs.Set(ctx, stale.ID, att); err != nil {
		t.Fatalf("seed stale blob: %v", err)
	}
	if err := f.blobs.Set(ctx, "not-a-collection", []byte("{}")); err != nil {
		t.Fatalf("seed foreign blob: %v", err)
	}

	c := f.start(t)

	if diff := cmp.Diff([]string{idA}, f.blobKeys(t)); diff != "" {
		t.Errorf("blob keys after Init mismatch (-want +got):\n%s", diff)
	}
	got, ok := c.Collection(idA)
	if !ok {
		t.Fatal("seeded collection not hydrated")
	}
	if diff := cmp.Diff(live, got); diff != "" {
		t.Errorf("hydrated collection mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinator_InitSkipsMalformedAndForeignRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed(t, f.meta, nil, testCollection(idA, "https://a"))
	for key, value := range map[string]string{
		CollectionKey(idB):          `{"id":"` + idB + `","version":2}`,
		CollectionKey(idC):          `not json`,
		"settings":                  `{"theme":"dark"}`,
		"collection:not-a-uuid":     `{}`,
		CollectionKey(idC[:35]+"d"): `{"id":"` + idA + `","createdAt":"2024-01-01T00:00:00.000Z","items":[{"id":"x","url":"https://x","title":""}]}`,
	} {
		if err := f.meta.Set(ctx, key, []byte(value)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	c := f.start(t)

	cols := c.Collections()
	if len(cols) != 1 || cols[0].ID != idA {
		t.Errorf("hydrated %d collections, want only %s", len(cols), idA)
	}
	if got, ok := c.Collection(idA); !ok || got.Items[0].Favicon != nil {
		t.Errorf("collection without blob record should hydrate with nil attachments, got %+v", got)
	}
}

func TestCoordinator_InitTwice(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)

	if err := c.Init(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init = %v, want ErrAlreadyInitialized", err)
	}
}

func TestCoordinator_UseBeforeInit(t *testing.T) {
	f := newFixture(t)
	c := f.build(t, nil)

	if _, err := c.CreateCollection(context.Background(), []Item{{URL: "https://a"}}); !errors.Is(err, ErrNotReady) {
		t.Errorf("CreateCollection before Init = %v, want ErrNotReady", err)
	}
}

func TestCoordinator_ConcurrentRemovesLoseNothing(t *testing.T) {
	for i := 0; i < 25; i++ {
		f := newFixture(t)
		c := f.start(t)
		ctx := context.Background()

		col, err := c.CreateCollection(ctx, []Item{{URL: "https://a"}, {URL: "https://b"}})
		if err != nil {
			t.Fatalf("CreateCollection failed: %v", err)
		}

		var wg sync.WaitGroup
		for _, it := range col.Items {
			wg.Add(1)
			go func(itemID string) {
				defer wg.Done()
				if err := c.RemoveItem(ctx, col.ID, itemID); err != nil {
					t.Errorf("RemoveItem(%s) failed: %v", itemID, err)
				}
			}(it.ID)
		}
		wg.Wait()
		c.queue.Wait()

		if _, ok := c.Collection(col.ID); ok {
			t.Fatalf("iteration %d: collection survived removal of both items", i)
		}
		if got := f.metaKeys(t); len(got) != 0 {
			t.Fatalf("iteration %d: metadata still holds %v", i, got)
		}
		if got := f.blobKeys(t); len(got) != 0 {
			t.Fatalf("iteration %d: blob store still holds %v", i, got)
		}
	}
}

func TestCoordinator_RemoteCreateBroadcastsOnce(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)
	sub := f.subscribe("sub")

	remote := testCollection(idA, "https://elsewhere")
	value, _ := Serialize(remote)
	if err := f.meta.Peer().Set(context.Background(), remote.Key(), value); err != nil {
		t.Fatalf("peer Set failed: %v", err)
	}

	msgs := sub.waitFor(t, 1)
	c.queue.Wait()

	if diff := cmp.Diff([]string{TypeCollectionCreated}, sub.types()); diff != "" {
		t.Fatalf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(remote, msgs[0].Collection); diff != "" {
		t.Errorf("broadcast collection mismatch (-want +got):\n%s", diff)
	}
	if cols := c.Collections(); len(cols) != 1 || cols[0].ID != idA {
		t.Errorf("in-memory collections = %v, want exactly %s", cols, idA)
	}
}

func TestCoordinator_RemoteChangeAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	col := testCollection(idA, "https://a", "https://b")
	seed(t, f.meta, f.blobs, col)
	c := f.start(t)
	sub := f.subscribe("sub")
	peer := f.meta.Peer()

	changed := col.Without(col.Items[0].ID)
	value, _ := Serialize(changed)
	if err := peer.Set(ctx, col.Key(), value); err != nil {
		t.Fatalf("peer Set failed: %v", err)
	}
	msgs := sub.waitFor(t, 1)
	if msgs[0].Type != TypeCollectionChanged || len(msgs[0].Collection.Items) != 1 {
		t.Fatalf("first broadcast = %+v, want collectionChanged with 1 item", msgs[0])
	}

	if err := peer.Remove(ctx, col.Key()); err != nil {
		t.Fatalf("peer Remove failed: %v", err)
	}
	msgs = sub.waitFor(t, 2)
	c.queue.Wait()

	if msgs[1].Type != TypeCollectionRemoved || msgs[1].CollectionID != idA {
		t.Errorf("second broadcast = %+v, want collectionRemoved %s", msgs[1], idA)
	}
	if _, ok := c.Collection(idA); ok {
		t.Error("remotely removed collection still in memory")
	}
	if got := f.blobKeys(t); len(got) != 0 {
		t.Errorf("local attachments of remotely removed collection kept: %v", got)
	}
}

func TestCoordinator_LocalMutationsBroadcastOnceEach(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)
	sub := f.subscribe("sub")
	ctx := context.Background()

	col, err := c.CreateCollection(ctx, []Item{{URL: "https://a"}, {URL: "https://b"}})
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := c.RemoveItem(ctx, col.ID, col.Items[0].ID); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if err := c.RemoveCollection(ctx, col.ID); err != nil {
		t.Fatalf("RemoveCollection failed: %v", err)
	}

	sub.waitFor(t, 3)
	c.queue.Wait()

	want := []string{TypeCollectionCreated, TypeCollectionChanged, TypeCollectionRemoved}
	if diff := cmp.Diff(want, sub.types()); diff != "" {
		t.Errorf("broadcasts mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinator_LateEchoesDoNotRegressState(t *testing.T) {
	f := newFixture(t)
	held := &heldMetadata{Memory: f.meta}
	c := f.build(t, held)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	sub := f.subscribe("sub")
	ctx := context.Background()

	col, err := c.CreateCollection(ctx, []Item{{URL: "https://a"}, {URL: "https://b"}, {URL: "https://c"}})
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	sub.waitFor(t, 1)

	held.setHold(true)
	if err := c.RemoveItem(ctx, col.ID, col.Items[0].ID); err != nil {
		t.Fatalf("RemoveItem a failed: %v", err)
	}
	if err := c.RemoveItem(ctx, col.ID, col.Items[1].ID); err != nil {
		t.Fatalf("RemoveItem b failed: %v", err)
	}
	held.releaseHeld()

	msgs := sub.waitFor(t, 3)
	c.queue.Wait()

	got, ok := c.Collection(col.ID)
	if !ok {
		t.Fatal("collection lost")
	}
	if len(got.Items) != 1 || got.Items[0].URL != "https://c" {
		t.Errorf("items after late echoes = %+v, want only https://c", got.Items)
	}
	if n := len(msgs[1].Collection.Items); n != 2 {
		t.Errorf("first change broadcast has %d items, want 2", n)
	}
	if n := len(msgs[2].Collection.Items); n != 1 {
		t.Errorf("second change broadcast has %d items, want 1", n)
	}
}

func TestCoordinator_RemoteChangeWhileLocalWritePending(t *testing.T) {
	f := newFixture(t)
	held := &heldMetadata{Memory: f.meta}
	col := testCollection(idA, "https://a", "https://b", "https://c")
	seed(t, f.meta, f.blobs, col)
	c := f.build(t, held)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	ctx := context.Background()

	held.setHold(true)
	// Another device drops c before our removal of a reaches the store.
	remote, _ := Serialize(col.Without(col.Items[2].ID))
	if err := f.meta.Peer().Set(ctx, col.Key(), remote); err != nil {
		t.Fatalf("peer Set failed: %v", err)
	}
	if err := c.RemoveItem(ctx, col.ID, col.Items[0].ID); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	held.releaseHeld()
	c.queue.Wait()

	got, ok := c.Collection(col.ID)
	if !ok {
		t.Fatal("collection lost")
	}
	stored, err := Deserialize(f.metaKeys(t)[col.Key()])
	if err != nil {
		t.Fatalf("stored record does not decode: %v", err)
	}
	if diff := cmp.Diff(itemIDs(stored), itemIDs(got)); diff != "" {
		t.Errorf("memory and store disagree (-store +memory):\n%s", diff)
	}
}

func itemIDs(col *Collection) []string {
	var ids []string
	for _, it := range col.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestCoordinator_QueuedRequestsAnsweredInOrder(t *testing.T) {
	f := newFixture(t)
	seed(t, f.meta, f.blobs, testCollection(idA, "https://a"))
	gated := newGatedMetadata(f.meta)
	c := f.build(t, gated)
	ctx := context.Background()

	order := &orderLog{}
	first, second, gone := newRecorder("first"), newRecorder("second"), newRecorder("gone")
	for _, r := range []*recorder{first, second, gone} {
		r.log = order
		f.reg.Connect(r)
	}

	c.HandleMessage(ctx, first, Inbound{Type: TypeListCollections})
	done := make(chan error, 1)
	go func() { done <- c.Init(ctx) }()
	<-gated.entered

	c.HandleMessage(ctx, second, Inbound{Type: TypeListCollections})
	c.HandleMessage(ctx, gone, Inbound{Type: TypeListCollections})
	c.HandleMessage(ctx, first, Inbound{Type: TypeListCollections})
	f.reg.Disconnect(gone)

	if got := order.all(); len(got) != 0 {
		t.Fatalf("requests answered before hydration finished: %v", got)
	}
	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if diff := cmp.Diff([]string{"first", "second", "first"}, order.all()); diff != "" {
		t.Errorf("reply order mismatch (-want +got):\n%s", diff)
	}
	if msgs := gone.messages(); len(msgs) != 0 {
		t.Errorf("disconnected channel received %v", msgs)
	}
	reply := first.messages()[0]
	if reply.Type != TypeCollections || len(reply.Collections) != 1 || reply.Collections[0].ID != idA {
		t.Errorf("reply = %+v, want the hydrated collection", reply)
	}
}

func TestCoordinator_ChangesDuringInitAreApplied(t *testing.T) {
	f := newFixture(t)
	gated := newGatedMetadata(f.meta)
	c := f.build(t, gated)
	sub := f.subscribe("sub")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Init(ctx) }()
	<-gated.entered

	remote := testCollection(idA, "https://elsewhere")
	value, _ := Serialize(remote)
	if err := f.meta.Peer().Set(ctx, remote.Key(), value); err != nil {
		t.Fatalf("peer Set failed: %v", err)
	}
	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	sub.waitFor(t, 1)
	c.queue.Wait()
	if diff := cmp.Diff([]string{TypeCollectionCreated}, sub.types()); diff != "" {
		t.Errorf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Collection(idA); !ok {
		t.Error("collection created during hydration is missing")
	}
}

func TestCoordinator_IgnoresOtherAreasAndForeignKeys(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)
	sub := f.subscribe("sub")

	value, _ := Serialize(testCollection(idA, "https://a"))
	c.HandleExternalChange(metadata.Change{Area: "local", Key: CollectionKey(idA), NewValue: value})
	c.HandleExternalChange(metadata.Change{Area: Area, Key: "preferences", NewValue: []byte(`{}`)})
	c.queue.Wait()

	if msgs := sub.messages(); len(msgs) != 0 {
		t.Errorf("ignored changes produced broadcasts: %v", sub.types())
	}
	if len(c.Collections()) != 0 {
		t.Error("ignored change reached the in-memory map")
	}
}

func TestCoordinator_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.meta.WithQuota(metadata.Quota{ItemBytes: 200})
	c := f.start(t)
	sub := f.subscribe("sub")
	ctx := context.Background()

	long := "https://example.com/" + string(make([]byte, 300))
	_, err := c.CreateCollection(ctx, []Item{{URL: long, Favicon: []byte("icon")}})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("CreateCollection = %v, want ErrQuotaExceeded", err)
	}
	var qe *metadata.QuotaError
	if !errors.As(err, &qe) {
		t.Errorf("error %v does not carry *metadata.QuotaError", err)
	}
	if len(c.Collections()) != 0 || len(f.metaKeys(t)) != 0 {
		t.Error("failed create left a collection behind")
	}
	if got := f.blobKeys(t); len(got) != 0 {
		t.Errorf("failed create left attachments behind: %v", got)
	}

	c.HandleMessage(ctx, sub, Inbound{Type: TypeCreateCollection, Items: []Item{{URL: long}}})
	msgs := sub.waitFor(t, 1)
	if msgs[0].Type != TypeError || msgs[0].Request != TypeCreateCollection {
		t.Errorf("reply = %+v, want error for createCollection", msgs[0])
	}
}

func TestCoordinator_BlobFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	seed(t, f.meta, f.blobs, testCollection(idA, "https://a"))
	f.blobs.Fail(errors.New("disk unplugged"))
	c := f.start(t)
	ctx := context.Background()

	if _, ok := c.Collection(idA); !ok {
		t.Fatal("hydration should survive a broken blob store")
	}
	col, err := c.CreateCollection(ctx, []Item{{URL: "https://b", Favicon: []byte("icon")}})
	if err != nil {
		t.Fatalf("CreateCollection with broken blob store failed: %v", err)
	}
	if _, ok := f.metaKeys(t)[col.Key()]; !ok {
		t.Error("metadata record missing")
	}
	if err := c.RemoveCollection(ctx, idA); err != nil {
		t.Errorf("RemoveCollection with broken blob store failed: %v", err)
	}
}

func TestCoordinator_NotFoundIsNoop(t *testing.T) {
	f := newFixture(t)
	seed(t, f.meta, f.blobs, testCollection(idA, "https://a"))
	c := f.start(t)
	ctx := context.Background()

	if err := c.RemoveItem(ctx, idB, "x"); err != nil {
		t.Errorf("RemoveItem on unknown collection = %v, want nil", err)
	}
	if err := c.RemoveItem(ctx, idA, "unknown-item"); err != nil {
		t.Errorf("RemoveItem on unknown item = %v, want nil", err)
	}
	if err := c.RestoreCollection(ctx, idB, "w1"); err != nil {
		t.Errorf("RestoreCollection on unknown collection = %v, want nil", err)
	}
	if got, _ := c.Collection(idA); len(got.Items) != 1 {
		t.Error("unrelated collection changed")
	}
	if len(f.opener.opened()) != 0 {
		t.Error("opener called for unknown ids")
	}
}

func TestCoordinator_RestoreItem(t *testing.T) {
	f := newFixture(t)
	col := testCollection(idA, "https://a", "https://b")
	seed(t, f.meta, f.blobs, col)
	c := f.start(t)
	ctx := context.Background()

	if err := c.RestoreItem(ctx, idA, col.Items[1].ID, "window-1"); err != nil {
		t.Fatalf("RestoreItem failed: %v", err)
	}
	if diff := cmp.Diff([]string{"https://b"}, f.opener.opened()); diff != "" {
		t.Errorf("opened URLs mismatch (-want +got):\n%s", diff)
	}
	got, _ := c.Collection(idA)
	if len(got.Items) != 1 || got.Items[0].ID != col.Items[0].ID {
		t.Errorf("items after restore = %+v, want only the first", got.Items)
	}
}

func TestCoordinator_RestoreItemOpenFailureKeepsItem(t *testing.T) {
	f := newFixture(t)
	col := testCollection(idA, "https://a", "https://b")
	seed(t, f.meta, f.blobs, col)
	boom := errors.New("no such window")
	f.opener.fail = map[string]error{"https://a": boom}
	c := f.start(t)

	err := c.RestoreItem(context.Background(), idA, col.Items[0].ID, "window-9")
	if !errors.Is(err, boom) {
		t.Fatalf("RestoreItem = %v, want opener error", err)
	}
	if got, _ := c.Collection(idA); len(got.Items) != 2 {
		t.Errorf("item removed despite failed open: %+v", got.Items)
	}
}

func TestCoordinator_RestoreCollection(t *testing.T) {
	f := newFixture(t)
	urls := []string{"https://t0", "https://t1", "https://t2", "https://t3", "https://t4", "https://t5", "https://t6", "https://t7"}
	col := testCollection(idA, urls...)
	seed(t, f.meta, f.blobs, col)
	c := f.start(t)

	if err := c.RestoreCollection(context.Background(), idA, "window-1"); err != nil {
		t.Fatalf("RestoreCollection failed: %v", err)
	}
	if diff := cmp.Diff(urls, f.opener.opened()); diff != "" {
		t.Errorf("tabs should open in collection order (-want +got):\n%s", diff)
	}
	if _, ok := c.Collection(idA); ok {
		t.Error("restored collection still present")
	}
	if len(f.metaKeys(t)) != 0 || len(f.blobKeys(t)) != 0 {
		t.Error("restored collection left records behind")
	}
}

func TestCoordinator_RestoreCollectionOpenFailureKeepsCollection(t *testing.T) {
	f := newFixture(t)
	col := testCollection(idA, "https://a", "https://b")
	seed(t, f.meta, f.blobs, col)
	f.opener.fail = map[string]error{"https://b": errors.New("refused")}
	c := f.start(t)

	if err := c.RestoreCollection(context.Background(), idA, ""); err == nil {
		t.Fatal("RestoreCollection should report the failed open")
	}
	if _, ok := c.Collection(idA); !ok {
		t.Error("collection removed despite failed open")
	}
	if diff := cmp.Diff([]string{"https://a"}, f.opener.opened()); diff != "" {
		t.Errorf("opening should stop at the failed tab (-want +got):\n%s", diff)
	}
}

func TestCoordinator_CollectGarbageSparesLiveCollections(t *testing.T) {
	f := newFixture(t)
	c := f.start(t)
	ctx := context.Background()

	col, err := c.CreateCollection(ctx, []Item{{URL: "https://a"}})
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := f.blobs.Set(ctx, idC, []byte(`{"id":"`+idC+`","items":{}}`)); err != nil {
		t.Fatalf("seed stale blob: %v", err)
	}

	n, err := c.CollectGarbage(ctx)
	if err != nil {
		t.Fatalf("CollectGarbage failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CollectGarbage removed %d, want 1", n)
	}
	if diff := cmp.Diff([]string{col.ID}, f.blobKeys(t)); diff != "" {
		t.Errorf("blob keys mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinator_SetAside(t *testing.T) {
	tests := []struct {
		name string
		tabs []Tab
		want []string
	}{
		{
			name: "keeps restorable tabs",
			tabs: []Tab{{URL: "https://a"}, {URL: "about:config"}, {URL: "ftp://files"}, {URL: "file:///etc"}},
			want: []string{"https://a", "ftp://files"},
		},
		{
			name: "private window",
			tabs: []Tab{{URL: "https://a", Incognito: true}},
		},
		{
			name: "nothing restorable",
			tabs: []Tab{{URL: "about:blank"}},
		},
		{
			name: "no tabs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.start(t)

			col, err := c.SetAside(context.Background(), tt.tabs)
			if err != nil {
				t.Fatalf("SetAside failed: %v", err)
			}
			if tt.want == nil {
				if col != nil {
					t.Errorf("SetAside created %+v, want nothing", col)
				}
				return
			}
			var urls []string
			for _, it := range col.Items {
				urls = append(urls, it.URL)
			}
			if diff := cmp.Diff(tt.want, urls); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type failingCapture struct{}

func (failingCapture) Capture(context.Context, []Tab) ([]Item, error) {
	return nil, ErrCaptureFailed
}

func TestCoordinator_SetAsideCaptureFailure(t *testing.T) {
	f := newFixture(t)
	c, err := NewCoordinator(Options{Metadata: f.meta, Blobs: f.blobs, Capturer: failingCapture{}})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	col, err := c.SetAside(context.Background(), []Tab{{URL: "https://a", Title: "A"}})
	if err != nil {
		t.Fatalf("SetAside failed: %v", err)
	}
	if len(col.Items) != 1 || col.Items[0].Title != "A" || col.Items[0].Favicon != nil {
		t.Errorf("items = %+v, want one item without attachments", col.Items)
	}
}

func TestCoordinator_CollectionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	older := testCollection(idB, "https://b")
	newer := testCollection(idA, "https://a")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	seed(t, f.meta, f.blobs, newer)
	seed(t, f.meta, f.blobs, older)
	c := f.start(t)

	cols := c.Collections()
	if len(cols) != 2 || cols[0].ID != idA || cols[1].ID != idB {
		t.Errorf("Collections order = %v, want newest first", cols)
	}
}
