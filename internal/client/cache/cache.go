package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/dmitrijs2005/tradebook/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTradesFreshness   = 5 * time.Minute
	DefaultTagsFreshness     = 10 * time.Minute
	DefaultSettingsFreshness = 10 * time.Minute
)

// State is a step of a mutation's lifecycle.
type State int

const (
	StateOptimistic State = iota + 1
	StatePending
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateOptimistic:
		return "optimistic"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// Observer is told about every state a mutation enters.
type Observer func(m Mutation, s State, err error)

type Options struct {
	// Freshness windows are soft: past them a cached list is still served
	// and only reported by Stale.
	TradesFreshness   time.Duration
	TagsFreshness     time.Duration
	SettingsFreshness time.Duration

	Observer Observer
	Now      func() time.Time
}

type entry struct {
	value     any
	fetchedAt time.Time
	invalid   bool
}

type Cache struct {
	backend Backend
	assets  Attachments
	log     logging.Logger
	opts    Options

	group singleflight.Group
	locks locker

	mu      sync.Mutex
	entries map[Key]*entry
	// gens counts invalidations per collection; a fetch that started
	// under an older generation is not stored.
	gens map[models.Collection]uint64
}

// New builds a cache over backend. assets may be nil when attachments are
// not used.
func New(backend Backend, assets Attachments, log logging.Logger, opts Options) *Cache {
	if opts.TradesFreshness <= 0 {
		opts.TradesFreshness = DefaultTradesFreshness
	}
	if opts.TagsFreshness <= 0 {
		opts.TagsFreshness = DefaultTagsFreshness
	}
	if opts.SettingsFreshness <= 0 {
		opts.SettingsFreshness = DefaultSettingsFreshness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cache{
		backend: backend,
		assets:  assets,
		log:     log.With("component", "cache"),
		opts:    opts,
		entries: make(map[Key]*entry),
		gens:    make(map[models.Collection]uint64),
	}
}

func (c *Cache) freshness(coll models.Collection) time.Duration {
	switch coll {
	case models.CollectionTrades:
		return c.opts.TradesFreshness
	case models.CollectionTags:
		return c.opts.TagsFreshness
	default:
		return c.opts.SettingsFreshness
	}
}

// Query returns the list cached under key, fetching it when absent or
// invalidated. The returned slice is a copy.
func (c *Cache) Query(ctx context.Context, key Key) (any, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.invalid {
		result := "hit"
		if c.staleLocked(key, e) {
			result = "stale"
		}
		v := cloneValue(e.value)
		c.mu.Unlock()
		metrics.ObserveCacheLookup(string(key.Collection), result)
		return v, nil
	}
	if key.Scoped() {
		if base, ok := c.entries[key.base()]; ok && !base.invalid {
			v := filterMonth(base.value.([]models.Trade), key)
			c.entries[key] = &entry{value: v, fetchedAt: base.fetchedAt}
			c.mu.Unlock()
			metrics.ObserveCacheLookup(string(key.Collection), "hit")
			return slices.Clone(v), nil
		}
	}
	c.mu.Unlock()

	metrics.ObserveCacheLookup(string(key.Collection), "miss")

	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own context is done.
	ch := c.group.DoChan(string(key.Collection), func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), key.Collection)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	f := res.Val.(fetched)

	if !key.Scoped() {
		return cloneValue(f.value), nil
	}

	v := filterMonth(f.value.([]models.Trade), key)
	c.mu.Lock()
	if c.gens[key.Collection] == f.gen {
		c.entries[key] = &entry{value: v, fetchedAt: f.at}
	}
	c.mu.Unlock()
	return slices.Clone(v), nil
}

type fetched struct {
	value any
	gen   uint64
	at    time.Time
}

func (c *Cache) fetch(ctx context.Context, coll models.Collection) (fetched, error) {
	c.mu.Lock()
	gen := c.gens[coll]
	c.mu.Unlock()

	var (
		value any
		err   error
	)
	switch coll {
	case models.CollectionTrades:
		value, err = c.backend.FetchTrades(ctx)
	case models.CollectionTags:
		value, err = c.backend.FetchTags(ctx)
	case models.CollectionSettings:
		value, err = c.backend.FetchSettings(ctx)
	default:
		err = fmt.Errorf("unknown collection %q", coll)
	}
	if err != nil {
		return fetched{}, fmt.Errorf("fetch %s: %w", coll, err)
	}

	now := c.opts.Now()
	c.mu.Lock()
	if c.gens[coll] == gen {
		c.entries[CollectionKey(coll)] = &entry{value: value, fetchedAt: now}
	} else {
		c.log.Debug(ctx, "discarding fetch overtaken by invalidation", "collection", coll)
	}
	c.mu.Unlock()

	return fetched{value: value, gen: gen, at: now}, nil
}

// Peek returns the cached list under key without fetching, including an
// invalidated one.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return cloneValue(e.value), true
}

// Stale reports whether the list under key is older than its freshness
// window. Absent entries are not stale.
func (c *Cache) Stale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.staleLocked(key, e)
}

func (c *Cache) staleLocked(key Key, e *entry) bool {
	return c.opts.Now().Sub(e.fetchedAt) > c.freshness(key.Collection)
}

// Invalidate marks every cached list of coll for refetch. Values stay
// visible through Peek.
func (c *Cache) Invalidate(coll models.Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(coll)
}

func (c *Cache) invalidateLocked(coll models.Collection) {
	c.gens[coll]++
	for k, e := range c.entries {
		if k.Collection == coll {
			e.invalid = true
		}
	}
}

// Reset drops every cached list.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, coll := range models.Collections {
		c.gens[coll]++
	}
	clear(c.entries)
}

// Mutate applies m to the cached lists, then performs it remotely. On
// failure the lists are restored to what they were before m. The affected
// collection is invalidated in both cases. The result is the entity as
// written remotely, or nil for deletions and reorders.
func (c *Cache) Mutate(ctx context.Context, m Mutation) (any, error) {
	if m == nil {
		return nil, errors.New("nil mutation")
	}
	m, err := m.prepare()
	if err != nil {
		return nil, err
	}

	release := c.locks.acquire(m)
	defer release()

	coll := m.Collection()
	snap := c.applyOptimistic(m)
	c.notify(m, StateOptimistic, nil)

	c.notify(m, StatePending, nil)
	res, err := m.commit(ctx, c)
	if err != nil {
		c.rollback(m, snap)
		c.notify(m, StateRolledBack, err)
		metrics.ObserveMutation(string(coll), string(m.Op()), "rolled_back")
		c.log.Warn(ctx, "mutation rolled back",
			"collection", coll, "op", m.Op(), "id", m.EntityID(), "error", err)
		return nil, err
	}

	c.Invalidate(coll)
	c.notify(m, StateCommitted, nil)
	metrics.ObserveMutation(string(coll), string(m.Op()), "committed")
	return res, nil
}

// snapshot holds the entries of one collection as they were before an
// optimistic apply.
type snapshot map[Key]entry

func (c *Cache) applyOptimistic(m Mutation) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := make(snapshot)
	for k, e := range c.entries {
		if k.Collection != m.Collection() {
			continue
		}
		snap[k] = entry{value: cloneValue(e.value), fetchedAt: e.fetchedAt, invalid: e.invalid}
		e.value = m.optimistic(e.value, k)
	}
	return snap
}

// rollback undoes m. A mutation of one entity restores only that entity
// from snap, so overlapping mutations of other entities keep their own
// optimistic values. Reorders hold the collection exclusively and restore
// the whole snapshot.
func (c *Cache) rollback(m Mutation, snap snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	coll := m.Collection()
	id := m.EntityID()
	if id == "" {
		for k, e := range snap {
			restored := e
			c.entries[k] = &restored
		}
		c.invalidateLocked(coll)
		return
	}

	for k, e := range c.entries {
		if k.Collection != coll {
			continue
		}
		before, ok := snap[k]
		switch {
		case ok:
			e.value = restoreEntity(e.value, before.value, id)
		case k.Scoped():
			// Derived from the base list while m was pending.
			base, ok := snap[k.base()]
			if !ok {
				delete(c.entries, k)
				continue
			}
			e.value = restoreEntity(e.value, filterMonth(base.value.([]models.Trade), k), id)
		default:
			delete(c.entries, k)
		}
	}
	c.invalidateLocked(coll)
}

func (c *Cache) notify(m Mutation, s State, err error) {
	if c.opts.Observer != nil {
		c.opts.Observer(m, s, err)
	}
}

func (c *Cache) Trades(ctx context.Context) ([]models.Trade, error) {
	return query[models.Trade](ctx, c, CollectionKey(models.CollectionTrades))
}

func (c *Cache) TradesInMonth(ctx context.Context, year int, month time.Month) ([]models.Trade, error) {
	return query[models.Trade](ctx, c, MonthKey(year, month))
}

func (c *Cache) Tags(ctx context.Context) ([]models.Tag, error) {
	return query[models.Tag](ctx, c, CollectionKey(models.CollectionTags))
}

func (c *Cache) Settings(ctx context.Context) ([]models.Setting, error) {
	return query[models.Setting](ctx, c, CollectionKey(models.CollectionSettings))
}

func query[T any](ctx context.Context, c *Cache, key Key) ([]T, error) {
	v, err := c.Query(ctx, key)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]T)
	if !ok {
		return nil, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return list, nil
}

func filterMonth(trades []models.Trade, key Key) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.InMonth(key.Year, key.Month) {
			out = append(out, t)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch list := v.(type) {
	case []models.Trade:
		return slices.Clone(list)
	case []models.Tag:
		return slices.Clone(list)
	case []models.Setting:
		return slices.Clone(list)
	default:
		return v
	}
}

// restoreEntity puts the entity id back into current as it was in before:
// replaced in place, removed when it did not exist, or reinserted at its
// former position.
func restoreEntity(current, before any, id string) any {
	switch cur := current.(type) {
	case []models.Trade:
		return restoreByID(cur, before.([]models.Trade), id, func(t models.Trade) string { return t.ID })
	case []models.Tag:
		return sortTags(restoreByID(cur, before.([]models.Tag), id, func(t models.Tag) string { return t.ID }))
	case []models.Setting:
		return restoreByID(cur, before.([]models.Setting), id, func(s models.Setting) string { return s.Key })
	default:
		return before
	}
}

func restoreByID[T any](current, before []T, id string, idOf func(T) string) []T {
	match := func(v T) bool { return idOf(v) == id }
	bi := slices.IndexFunc(before, match)
	ci := slices.IndexFunc(current, match)

	out := slices.Clone(current)
	switch {
	case bi < 0 && ci >= 0:
		out = slices.Delete(out, ci, ci+1)
	case bi >= 0 && ci >= 0:
		out[ci] = before[bi]
	case bi >= 0:
		out = slices.Insert(out, min(bi, len(out)), before[bi])
	}
	return out
}
