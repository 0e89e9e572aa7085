package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vmbid/matching-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Every insert bumps a per-user generation counter. A read only fills the
// cache if the generation it saw before querying the primary is still
// current, so a slow read can never cache history older than an insert that
// finished while it ran.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) InsertFills(ctx context.Context, fills []model.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	if err := s.primary.InsertFills(ctx, fills); err != nil {
		return err
	}

	// Invalidate the history of every user touched.
	seen := make(map[string]struct{}, len(fills))
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range fills {
			if _, ok := seen[f.Username]; ok {
				continue
			}
			seen[f.Username] = struct{}{}
			pipe.Incr(ctx, genKey(f.Username))
			pipe.Del(ctx, fillsKey(f.Username))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached fills: %w", err)
	}
	return nil
}

func (s *CachedStore) GetFillsByUser(ctx context.Context, username string) ([]model.Fill, error) {
	data, err := s.rdb.Get(ctx, fillsKey(username)).Bytes()
	if err == nil {
		var fills []model.Fill
		if json.Unmarshal(data, &fills) == nil {
			return fills, nil
		}
	}

	// Cache miss.
	gen, err := s.generation(ctx, s.rdb, username)
	if err != nil {
		return s.primary.GetFillsByUser(ctx, username)
	}

	fills, err := s.primary.GetFillsByUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(fills); err == nil {
		s.fill(ctx, username, gen, data)
	}
	return fills, nil
}

var errStaleRead = errors.New("store: fills changed during read")

// fill caches data unless an insert bumped the generation since gen was read.
// A lost race just leaves the cache empty for the next reader.
func (s *CachedStore) fill(ctx context.Context, username string, gen int64, data []byte) {
	_ = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.generation(ctx, tx, username)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fillsKey(username), data, s.ttl)
			return nil
		})
		return err
	}, genKey(username))
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *CachedStore) generation(ctx context.Context, c stringGetter, username string) (int64, error) {
	gen, err := c.Get(ctx, genKey(username)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func fillsKey(username string) string { return fmt.Sprintf("fills:%s", username) }

func genKey(username string) string { return fmt.Sprintf("fills-gen:%s", username) }
