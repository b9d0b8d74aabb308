/*

This file contains a caching decorator over any events.Source, keyed by
(pool, fromBlock, toBlock) per round as the checkpoint loop re-requests
overlapping ranges. Backed by Redis when a client is configured; falls
back to an in-process map so the Events Source stays usable in tests and
single-process deployments without external infrastructure.

*/

package cachedevents

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/elys-network/lpvalidator/internal/events"
	"github.com/elys-network/lpvalidator/internal/types"
)

// Store decorates an events.Source with a cache for EventsIn results.
// PriceAtOrBefore is always delegated uncached, since it is cheap and its
// result changes as new events land within the same block.
type Store struct {
	inner events.Source
	redis *redis.Client
	ttl   time.Duration

	mu    sync.Mutex
	local map[string][]types.PoolEvent
}

// New wraps inner with a cache. client may be nil, in which case the Store
// falls back to an in-process map for the lifetime of the process.
func New(inner events.Source, client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		inner: inner,
		redis: client,
		ttl:   ttl,
		local: make(map[string][]types.PoolEvent),
	}
}

func cacheKey(pool string, fromBlock, toBlock uint64) string {
	return fmt.Sprintf("events:%s:%d:%d", events.NormalizePool(pool), fromBlock, toBlock)
}

// EventsIn implements events.Source, serving from cache when available.
func (s *Store) EventsIn(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]types.PoolEvent, error) {
	key := cacheKey(pool, fromBlock, toBlock)

	if cached, ok := s.getCached(ctx, key); ok {
		return cached, nil
	}

	fresh, err := s.inner.EventsIn(ctx, pool, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	s.setCached(ctx, key, fresh)
	return fresh, nil
}

// PriceAtOrBefore implements events.Source, always delegated to inner.
func (s *Store) PriceAtOrBefore(ctx context.Context, pool string, block uint64) (*big.Int, bool, error) {
	return s.inner.PriceAtOrBefore(ctx, pool, block)
}

// headBlockSource is the capability pgevents.Store exposes for sizing a
// scheduler tick's block range off the real chain head.
type headBlockSource interface {
	HeadBlock(ctx context.Context, pool string) (uint64, error)
}

// HeadBlock passes through to inner when it implements headBlockSource, so
// wrapping a pgevents.Store in a cache does not hide that capability from
// the scheduler.
func (s *Store) HeadBlock(ctx context.Context, pool string) (uint64, error) {
	hb, ok := s.inner.(headBlockSource)
	if !ok {
		return 0, fmt.Errorf("cachedevents: inner source does not support HeadBlock")
	}
	return hb.HeadBlock(ctx, pool)
}

func (s *Store) getCached(ctx context.Context, key string) ([]types.PoolEvent, bool) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			var evs []types.PoolEvent
			if jsonErr := json.Unmarshal(raw, &evs); jsonErr == nil {
				return evs, true
			}
		}
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	evs, ok := s.local[key]
	return evs, ok
}

func (s *Store) setCached(ctx context.Context, key string, evs []types.PoolEvent) {
	if s.redis != nil {
		raw, err := json.Marshal(evs)
		if err != nil {
			return
		}
		s.redis.Set(ctx, key, raw, s.ttl)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = evs
}
