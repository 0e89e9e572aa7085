package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vmbid/matching-engine/internal/model"
)

// countingStore counts reads that reach the primary.
type countingStore struct {
	*MemoryStore
	reads  int
	fail   error
	onRead func() // runs after the primary has answered, once
}

func (c *countingStore) GetFillsByUser(ctx context.Context, username string) ([]model.Fill, error) {
	c.reads++
	fills, err := c.MemoryStore.GetFillsByUser(ctx, username)
	if hook := c.onRead; hook != nil {
		c.onRead = nil
		hook()
	}
	return fills, err
}

func (c *countingStore) InsertFills(ctx context.Context, fills []model.Fill) error {
	if c.fail != nil {
		return c.fail
	}
	return c.MemoryStore.InsertFills(ctx, fills)
}

func newCachedEnv(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	primary := &countingStore{MemoryStore: NewMemoryStore()}
	return NewCachedStore(primary, rdb, 30*time.Second), primary, mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cs, primary, mr := newCachedEnv(t)

	fill := model.NewFill("alice", 10, 3, model.SourceSupply, 0)
	if err := cs.InsertFills(ctx, []model.Fill{fill}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := cs.GetFillsByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got) != 1 || got[0].ID != fill.ID || got[0].Volume != 10 {
			t.Fatalf("unexpected fills: %+v", got)
		}
	}

	if primary.reads != 1 {
		t.Errorf("expected 1 primary read, got %d", primary.reads)
	}
	if !mr.Exists("fills:alice") {
		t.Error("expected fills:alice to be cached")
	}
	if ttl := mr.TTL("fills:alice"); ttl != 30*time.Second {
		t.Errorf("expected 30s ttl, got %s", ttl)
	}
}

func TestCachedStore_InsertInvalidates(t *testing.T) {
	ctx := context.Background()
	cs, primary, mr := newCachedEnv(t)

	_ = cs.InsertFills(ctx, []model.Fill{model.NewFill("alice", 10, 3, model.SourceSupply, 0)})
	if _, err := cs.GetFillsByUser(ctx, "alice"); err != nil {
		t.Fatalf("get: %v", err)
	}

	_ = cs.InsertFills(ctx, []model.Fill{
		model.NewFill("alice", 4, 5, model.SourceBid, 3),
		model.NewFill("alice", 1, 5, model.SourceBid, 3),
	})
	if mr.Exists("fills:alice") {
		t.Fatal("expected fills:alice to be invalidated")
	}

	got, err := cs.GetFillsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 fills after invalidation, got %d", len(got))
	}
	if primary.reads != 2 {
		t.Errorf("expected 2 primary reads, got %d", primary.reads)
	}
}

func TestCachedStore_PrimaryFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	cs, primary, mr := newCachedEnv(t)

	_ = cs.InsertFills(ctx, []model.Fill{model.NewFill("alice", 10, 3, model.SourceSupply, 0)})
	_, _ = cs.GetFillsByUser(ctx, "alice")

	primary.fail = errors.New("db down")
	err := cs.InsertFills(ctx, []model.Fill{model.NewFill("alice", 1, 3, model.SourceSupply, 0)})
	if !errors.Is(err, primary.fail) {
		t.Fatalf("expected primary error, got %v", err)
	}
	if !mr.Exists("fills:alice") {
		t.Error("failed insert should not invalidate the cache")
	}
}

func TestCachedStore_InsertDuringMissDoesNotCacheStaleHistory(t *testing.T) {
	ctx := context.Background()
	cs, primary, mr := newCachedEnv(t)

	_ = cs.InsertFills(ctx, []model.Fill{model.NewFill("alice", 10, 3, model.SourceSupply, 0)})

	// A second fill lands after the primary answered but before the reader
	// caches its now stale result.
	primary.onRead = func() {
		if err := cs.InsertFills(ctx, []model.Fill{model.NewFill("alice", 2, 3, model.SourceBid, 1)}); err != nil {
			t.Errorf("concurrent insert: %v", err)
		}
	}

	got, err := cs.GetFillsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("reader should see the history it queried, got %d fills", len(got))
	}
	if mr.Exists("fills:alice") {
		t.Fatal("stale history must not be cached")
	}

	got, err = cs.GetFillsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 fills after the insert, got %d", len(got))
	}
	if !mr.Exists("fills:alice") {
		t.Error("fresh history should be cached")
	}
}

func TestCachedStore_InsertBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCachedEnv(t)

	_ = cs.InsertFills(ctx, []model.Fill{
		model.NewFill("alice", 1, 3, model.SourceBid, 0),
		model.NewFill("bob", 1, 3, model.SourceBid, 1),
		model.NewFill("alice", 1, 3, model.SourceBid, 2),
	})

	if gen, _ := mr.Get("fills-gen:alice"); gen != "1" {
		t.Errorf("expected alice generation 1, got %q", gen)
	}
	if gen, _ := mr.Get("fills-gen:bob"); gen != "1" {
		t.Errorf("expected bob generation 1, got %q", gen)
	}
}
