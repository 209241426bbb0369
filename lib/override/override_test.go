// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package override

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
)

type fakeKind struct{}

func (fakeKind) EnumerateDirectSublists(c *lru.Cache, out []idtypes.ID) []idtypes.ID { return out }
func (fakeKind) ObliviateChild(idtypes.ID)                                           {}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time    { return c.t }
func (c *fakeClock) set(seconds int64) { c.t = time.Unix(seconds, 0) }

func newTestCache(t *testing.T) (*lru.Cache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	c := lru.NewCache(
		lru.Limits{Hard: 1 << 30, HighPermil: 900, LowPermil: 700},
		lru.Limits{Hard: 1000, HighPermil: 900, LowPermil: 700},
		time.Hour,
		lru.Callbacks{
			FirstInserted: func() {},
			GCNeeded:      func() {},
			ObjectRemoved: func(idtypes.ID) {},
			LastRemoved:   func() {},
		},
	)
	c.SetClock(clk)
	return c, clk
}

// insertNocache inserts a new entry under parent (idtypes.Invalid for
// the root) with the nocache bit set on its context.
func insertNocache(t *testing.T, c *lru.Cache, parent idtypes.ID) idtypes.ID {
	t.Helper()
	e := lru.NewEntry(fakeKind{}, parent)
	id := c.Insert(e, lru.Nocache, 0, 1)
	require.True(t, id.IsValid())
	require.True(t, id.Nocache())
	return id
}

// S5: a 10-entry chain, every id nocache. put_override(leaf) makes the
// whole chain cacheable while it lives; remove_override restores the
// default (not cacheable). Expiry fires the callback exactly once.
func TestOverridePropagationAndExpiry(t *testing.T) {
	cache, clk := newTestCache(t)
	clk.set(0)

	ids := make([]idtypes.ID, 0, 10)
	parent := idtypes.Invalid
	for i := 0; i < 10; i++ {
		id := insertNocache(t, cache, parent)
		ids = append(ids, id)
		parent = id
	}
	leaf := ids[len(ids)-1]

	chk := NewWithOverrides(cache, clk)

	for _, id := range ids {
		assert.False(t, chk.IsCacheable(id), "nocache id must default to not cacheable")
	}

	expiry, ok := chk.PutOverride(leaf)
	require.True(t, ok)
	assert.Equal(t, ExpiryTime, expiry)

	for _, id := range ids {
		assert.True(t, chk.IsCacheable(id), "override on leaf must promote every ancestor")
	}

	removed := chk.RemoveOverride(leaf)
	assert.True(t, removed)
	assert.False(t, chk.HasOverrides())

	for _, id := range ids {
		assert.False(t, chk.IsCacheable(id), "removal must restore the default")
	}
}

func TestOverrideExpiresExactlyOnce(t *testing.T) {
	cache, clk := newTestCache(t)
	clk.set(0)
	id := insertNocache(t, cache, idtypes.Invalid)
	chk := NewWithOverrides(cache, clk)

	_, ok := chk.PutOverride(id)
	require.True(t, ok)
	require.True(t, chk.IsCacheable(id))

	calls := 0
	ovr := chk.overrides[id]
	ovr.expiredFn = func() {
		calls++
		chk.expired(id)
	}

	clk.set(int64(ExpiryTime.Seconds()) + 1)
	// Simulate the timer firing by delivering the notification directly,
	// the way the real *time.Timer callback would via expiryCh.
	ovr.invalidated = false
	select {
	case chk.expiryCh <- id:
	default:
		t.Fatal("expiryCh full")
	}
	chk.Pump()
	chk.Pump() // idempotent: the record is already gone

	assert.Equal(t, 1, calls)
	assert.False(t, chk.HasOverrides())
	assert.False(t, chk.IsCacheable(id))
}

func TestPutOverrideUnknownIDFails(t *testing.T) {
	cache, clk := newTestCache(t)
	chk := NewWithOverrides(cache, clk)

	_, ok := chk.PutOverride(idtypes.New(0, true, 0x123))
	assert.False(t, ok)
}

func TestPutOverrideRenewalReusesExistingRecord(t *testing.T) {
	cache, clk := newTestCache(t)
	clk.set(0)
	id := insertNocache(t, cache, idtypes.Invalid)
	chk := NewWithOverrides(cache, clk)

	_, ok := chk.PutOverride(id)
	require.True(t, ok)
	first := chk.overrides[id]

	clk.set(60)
	_, ok = chk.PutOverride(id)
	require.True(t, ok)
	assert.Same(t, first, chk.overrides[id], "renewal must reuse the existing record, not recompute it")
}

func TestRemoveOverrideUnknownIsNoop(t *testing.T) {
	cache, clk := newTestCache(t)
	chk := NewWithOverrides(cache, clk)
	assert.False(t, chk.RemoveOverride(idtypes.New(0, true, 0x456)))
}

// Property 12: put_override then remove_override restores the default
// cacheability for a plain nocache id with no ancestors to promote.
func TestPutThenRemoveRestoresDefault(t *testing.T) {
	cache, clk := newTestCache(t)
	clk.set(0)
	id := insertNocache(t, cache, idtypes.Invalid)
	chk := NewWithOverrides(cache, clk)

	before := chk.IsCacheable(id)
	_, ok := chk.PutOverride(id)
	require.True(t, ok)
	chk.RemoveOverride(id)
	after := chk.IsCacheable(id)
	assert.Equal(t, before, after)
}

func TestListInvalidateRenamesOverride(t *testing.T) {
	cache, clk := newTestCache(t)
	clk.set(0)
	id := insertNocache(t, cache, idtypes.Invalid)
	chk := NewWithOverrides(cache, clk)
	_, ok := chk.PutOverride(id)
	require.True(t, ok)

	replacement := idtypes.New(0, true, 0x789)
	chk.ListInvalidate(id, replacement)

	_, stillUnderOld := chk.overrides[id]
	assert.False(t, stillUnderOld)
	_, underNew := chk.overrides[replacement]
	assert.True(t, underNew)
}

func TestListInvalidateWithInvalidReplacementRemoves(t *testing.T) {
	cache, clk := newTestCache(t)
	clk.set(0)
	id := insertNocache(t, cache, idtypes.Invalid)
	chk := NewWithOverrides(cache, clk)
	_, ok := chk.PutOverride(id)
	require.True(t, ok)

	chk.ListInvalidate(id, idtypes.Invalid)
	assert.False(t, chk.HasOverrides())
}
