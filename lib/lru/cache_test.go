// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.listbroker.dev/listcache/lib/idtypes"
)

// fakeKind reports the entries inserted under it by insertChild as its
// direct sublists, the way a real list's items refer to its child lists.
type fakeKind struct {
	children   []idtypes.ID
	obliviated []idtypes.ID
}

func (k *fakeKind) EnumerateDirectSublists(c *Cache, out []idtypes.ID) []idtypes.ID {
	return append(out, k.children...)
}
func (k *fakeKind) ObliviateChild(childID idtypes.ID) { k.obliviated = append(k.obliviated, childID) }

// fakeClock is a manually-advanced Clock for deterministic tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) set(seconds int64) {
	c.t = time.Unix(seconds, 0)
}

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	c := NewCache(
		Limits{Hard: 1 << 30, HighPermil: 900, LowPermil: 700},
		Limits{Hard: 1000, HighPermil: 900, LowPermil: 700},
		time.Hour,
		Callbacks{
			FirstInserted: func() {},
			GCNeeded:      func() {},
			ObjectRemoved: func(idtypes.ID) {},
			LastRemoved:   func() {},
		},
	)
	c.SetClock(clk)
	return c, clk
}

func insertChild(t *testing.T, c *Cache, parent idtypes.ID, seconds int64, clk *fakeClock) idtypes.ID {
	t.Helper()
	clk.set(seconds)
	e := NewEntry(&fakeKind{}, parent)
	id := c.Insert(e, Cacheable, 0, 1)
	require.True(t, id.IsValid())
	parentKind := c.Lookup(parent).Kind().(*fakeKind)
	parentKind.children = append(parentKind.children, id)
	return id
}

func insertRoot(t *testing.T, c *Cache, seconds int64, clk *fakeClock) idtypes.ID {
	t.Helper()
	clk.set(seconds)
	e := NewEntry(&fakeKind{}, idtypes.Invalid)
	id := c.Insert(e, Cacheable, 0, 1)
	require.True(t, id.IsValid())
	return id
}

// S1: basic aging — insert A, B=child(A), C=child(A); use(B) reorders
// the aging list to [C, B, A] with deepest-youngest B.
func TestBasicAging(t *testing.T) {
	c, clk := newTestCache(t)

	a := insertRoot(t, c, 0, clk)
	b := insertChild(t, c, a, 1, clk)
	ch := insertChild(t, c, a, 2, clk)

	clk.set(3)
	depth := c.Use(b)
	assert.Equal(t, 2, depth)

	var order []idtypes.ID
	for n := c.aging.Oldest(); n != nil; n = n.Newer() {
		order = append(order, n.Value.id)
	}
	assert.Equal(t, []idtypes.ID{ch, b, a}, order)
	assert.Equal(t, b, c.Lookup(b).id)
	assert.True(t, c.deepestYoungest == c.Lookup(b))
}

// S2: hot-object protection — set_object_size past the hard limit
// discards even the root.
func TestHotObjectProtectionDiscardsRoot(t *testing.T) {
	c, clk := newTestCache(t)
	c.countLimits = Limits{Hard: 10, HighPermil: 900, LowPermil: 700}
	c.memLimits = Limits{Hard: 1 << 20, HighPermil: 900, LowPermil: 700}

	root := insertRoot(t, c, 0, clk)
	for i := 0; i < 9; i++ {
		insertChild(t, c, root, int64(i+1), clk)
	}
	require.Equal(t, 10, c.Count())

	// The root alone, once oversized, keeps memory hard-exceeded no
	// matter how many other children are discarded, so the pressure
	// pass is forced all the way down to the hot (deepest-youngest)
	// root entry itself.
	clk.set(20)
	errKind := c.SetObjectSize(root, 1<<40)
	assert.Equal(t, Ok, errKind)
	assert.Equal(t, 0, c.Count())
	assert.Nil(t, c.Lookup(root))
}

// S3: purge subtree — toposort followed by purge leaves the surviving
// tree intact with no dangling references.
func TestToposortAndPurgeSubtree(t *testing.T) {
	c, clk := newTestCache(t)

	root := insertRoot(t, c, 0, clk)
	leafA := insertChild(t, c, root, 1, clk)
	inner := insertChild(t, c, root, 2, clk)
	leafB := insertChild(t, c, inner, 3, clk)
	leafC := insertChild(t, c, inner, 4, clk)
	leafD := insertChild(t, c, root, 5, clk)

	killList := []idtypes.ID{inner, leafB, leafC}
	ok := c.ToposortForPurge(killList)
	require.True(t, ok)
	assert.Equal(t, []idtypes.ID{leafB, leafC, inner}, killList)

	c.PurgeEntries(killList, true)

	assert.Nil(t, c.Lookup(inner))
	assert.Nil(t, c.Lookup(leafB))
	assert.Nil(t, c.Lookup(leafC))
	rootEntry := c.Lookup(root)
	require.NotNil(t, rootEntry)
	assert.Equal(t, 2, rootEntry.ChildCount())
	assert.NotNil(t, c.Lookup(leafA))
	assert.NotNil(t, c.Lookup(leafD))

	kind := rootEntry.Kind().(*fakeKind)
	assert.Contains(t, kind.obliviated, inner)
}

// S6: reinsert reassigns the id, preserves lookup and aging order.
func TestInsertAgainReassignsID(t *testing.T) {
	c, clk := newTestCache(t)

	r := insertRoot(t, c, 0, clk)
	entry := c.Lookup(r)
	require.NotNil(t, entry)

	newID := c.InsertAgain(entry, Cacheable, 0)
	require.True(t, newID.IsValid())
	assert.NotEqual(t, r, newID)
	assert.Nil(t, c.Lookup(r))
	assert.Equal(t, entry, c.Lookup(newID))
}

// Property: depth(root) == 1, and every child's age is >= its
// parent's age (parents are never older than their descendants).
func TestDepthAndAgeMonotonicity(t *testing.T) {
	c, clk := newTestCache(t)

	root := insertRoot(t, c, 0, clk)
	child := insertChild(t, c, root, 5, clk)
	grandchild := insertChild(t, c, child, 10, clk)

	assert.Equal(t, 1, c.Depth(c.Lookup(root)))
	assert.Equal(t, 2, c.Depth(c.Lookup(child)))
	assert.Equal(t, 3, c.Depth(c.Lookup(grandchild)))

	assert.True(t, c.Lookup(root).lastUsed.Compare(c.Lookup(child).lastUsed) >= 0)
	assert.True(t, c.Lookup(child).lastUsed.Compare(c.Lookup(grandchild).lastUsed) >= 0)
}

// Property: pin(x); pin(x) is idempotent.
func TestPinIdempotent(t *testing.T) {
	c, clk := newTestCache(t)
	root := insertRoot(t, c, 0, clk)

	assert.Equal(t, Ok, c.Pin(root))
	assert.True(t, c.Lookup(root).Pinned())
	assert.Equal(t, Ok, c.Pin(root))
	assert.True(t, c.Lookup(root).Pinned())
	assert.Equal(t, []idtypes.ID{root}, c.pinned)
}

func TestUseUnknownIDReturnsSentinel(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, UsedInvalidID, c.Use(idtypes.ID(0xFFFFFFF)))
}

func TestGCAgePassDiscardsStaleLeaf(t *testing.T) {
	c, clk := newTestCache(t)
	c.maxAge = 10 * time.Second

	root := insertRoot(t, c, 0, clk)
	leaf := insertChild(t, c, root, 1, clk)

	clk.set(15)
	c.Use(root) // refresh root; leaf is left stale

	clk.set(20)
	delay := c.GC()
	assert.Nil(t, c.Lookup(leaf))
	assert.NotNil(t, c.Lookup(root))
	assert.True(t, delay > 0 || delay == GCNever)
}

func TestGCReturnsNeverOnEmptyCache(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, GCNever, c.GC())
}

// Pinning for the first time out of a fully-unpinned cache must not run
// gc: c.inGC set beforehand would make a real GC call panic, so a clean
// return here proves Pin skipped it.
func TestPinFirstTimeDoesNotRunGC(t *testing.T) {
	c, clk := newTestCache(t)
	root := insertRoot(t, c, 0, clk)

	c.inGC = true
	assert.NotPanics(t, func() {
		assert.Equal(t, Ok, c.Pin(root))
	})
	c.inGC = false

	assert.True(t, c.Lookup(root).Pinned())
}

// Switching an existing pin to a different entry must run gc, the same
// as original_source's need_gc being true whenever a previously valid
// pin is replaced.
func TestPinSwitchRunsGC(t *testing.T) {
	c, clk := newTestCache(t)
	root := insertRoot(t, c, 0, clk)
	child := insertChild(t, c, root, 1, clk)

	require.Equal(t, Ok, c.Pin(root))

	c.inGC = true
	assert.PanicsWithValue(t, "lru.Cache.GC: reentrant call", func() {
		c.Pin(child)
	})
	c.inGC = false
}

// Clearing an existing pin (Pin(Invalid)) must also run gc.
func TestPinClearRunsGC(t *testing.T) {
	c, clk := newTestCache(t)
	root := insertRoot(t, c, 0, clk)

	require.Equal(t, Ok, c.Pin(root))

	c.inGC = true
	assert.PanicsWithValue(t, "lru.Cache.GC: reentrant call", func() {
		c.Pin(idtypes.Invalid)
	})
	c.inGC = false
}
