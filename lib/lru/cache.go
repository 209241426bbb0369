// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import (
	"sort"
	"time"

	"go.listbroker.dev/listcache/lib/aging"
	"go.listbroker.dev/listcache/lib/idtypes"
)

// Sentinel return values for Use and UseID, mirroring
// original_source/src/common/lru.hh's USED_ENTRY_ALREADY_UP_TO_DATE /
// USED_ENTRY_INVALID_ID constants.
const (
	UsedAlreadyUpToDate = -1
	UsedInvalidID       = -2
)

// Mode selects whether a newly inserted entry participates in the
// cacheability-override dance (spec §4.8) or is unconditionally
// cacheable.
type Mode int

const (
	Cacheable Mode = iota
	Nocache
)

// Clock is the injection point original_source gets from its
// process-wide `timebase` pointer (spec §9 "Global state" — the
// portable remedy is a per-cache constructor-injected clock).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Callbacks are the four closures original_source's Cache constructor
// takes: FirstInserted fires when the cache transitions from empty to
// non-empty, GCNeeded when a soft or hard limit was exceeded by the
// most recent mutation, ObjectRemoved once per discarded entry, and
// LastRemoved when the cache transitions back to empty. Implementations
// must not call back into Cache mutation methods synchronously (spec
// §9 note 3); doing so would reenter the gc reentrancy guard.
type Callbacks struct {
	FirstInserted func()
	GCNeeded      func()
	ObjectRemoved func(idtypes.ID)
	LastRemoved   func()
}

// Cache is the hierarchical aging cache container: every live Entry
// belongs to exactly one Cache, is reachable by id in O(1), and sits
// in the aging list in non-increasing-toward-root age order.
//
// Cache is not safe for concurrent use; spec §5 places all mutation on
// a single logical "reader thread" which this type never spawns itself.
//
// Grounded on original_source/src/common/lru.{hh,cc}'s Cache class.
type Cache struct {
	clock Clock
	cb    Callbacks

	memLimits   Limits
	countLimits Limits

	idGen *idGenerator
	byID  map[idtypes.ID]*Entry

	aging aging.List[*Entry]

	root            *Entry
	deepestYoungest *Entry
	totalSize       uint64

	minRequiredCreationTime time.Time

	pinned []idtypes.ID // path-to-root currently pinned, root first, leaf last; nil if unpinned

	maxAge time.Duration // age pass threshold (spec §4.4)

	inGC bool // reentrancy guard (spec §4.4 "single-threaded, non-reentrant")
}

// NewCache constructs an empty cache. memLimits bounds total Size()
// across all entries; countLimits bounds the number of live entries;
// maxAge is the age-pass threshold GC uses to discard stale, unpinned
// leaves outright regardless of resource pressure. Both limits must
// validate (see Limits.Validate); cb's fields must all be non-nil
// before the cache is used.
func NewCache(memLimits, countLimits Limits, maxAge time.Duration, cb Callbacks) *Cache {
	return &Cache{
		clock:       systemClock{},
		cb:          cb,
		memLimits:   memLimits,
		countLimits: countLimits,
		maxAge:      maxAge,
		idGen:       newIDGenerator(),
		byID:        make(map[idtypes.ID]*Entry),
	}
}

// SetClock overrides the cache's notion of "now", for deterministic
// tests. Must be called before any mutating method.
func (c *Cache) SetClock(clk Clock) { c.clock = clk }

func (c *Cache) now() time.Time { return c.clock.Now() }

// Count returns the number of live entries.
func (c *Cache) Count() int { return len(c.byID) }

// TotalSize returns the sum of Size() across all live entries.
func (c *Cache) TotalSize() uint64 { return c.totalSize }

// Root returns the id of the cache's root entry, or idtypes.Invalid if
// the cache is empty.
func (c *Cache) Root() idtypes.ID {
	if c.root == nil {
		return idtypes.Invalid
	}
	return c.root.id
}

// Lookup is a pure read: it returns the entry for id without touching
// aging order. Returns nil if id is not live.
func (c *Cache) Lookup(id idtypes.ID) *Entry {
	return c.byID[id]
}

// Depth returns an entry's distance from the root, with the root at
// depth 1 (spec §8 property 3), by walking parent links.
//
// Grounded on original_source's LRU::Entry::depth.
func (c *Cache) Depth(e *Entry) int {
	d := 0
	for cur := e; cur != nil; cur = c.parentOf(cur) {
		d++
	}
	return d
}

func (c *Cache) parentOf(e *Entry) *Entry {
	if !e.parent.IsValid() {
		return nil
	}
	return c.byID[e.parent]
}

// isFree is handed to the id generator; an id is free if it is not
// currently live.
func (c *Cache) isFree(id idtypes.ID) bool {
	_, live := c.byID[id]
	return !live
}

// unlinkPathToRoot walks from e to the root, unlinking every node from
// the aging list, and returns the nodes in child-to-root order
// (path[0] == e, path[len-1] == root).
//
// original_source's C++ tracks a manual "reconnect tail" pointer here
// because its aging list has no list-level newest pointer, only
// per-node links; aging.List keeps its own Newest() up to date across
// arbitrary Delete/PushNewest/Join calls, so relinkPathToRoot can
// always splice onto whatever Newest() is once this path is removed.
//
// Grounded on original_source's unlink_objects_on_path_to_root.
func (c *Cache) unlinkPathToRoot(e *Entry) (path []*Entry) {
	for cur := e; cur != nil; cur = c.parentOf(cur) {
		path = append(path, cur)
		c.aging.Delete(cur.node)
		cur.node = nil
	}
	return path
}

// relinkPathToRoot stamps every node on path (child-to-root order)
// with now, chains them oldest(path[0])→...→newest(path[last]) in a
// fresh segment, and splices that segment onto the newest end of the
// remaining aging list.
//
// Grounded on original_source's link_objects_on_path_to_root.
func (c *Cache) relinkPathToRoot(path []*Entry, now time.Time) {
	var segment aging.List[*Entry]
	for _, e := range path {
		e.lastUsed = now
		node := &aging.Entry[*Entry]{Value: e}
		e.node = node
		segment.PushNewest(node)
	}
	c.aging.Join(&segment)
}

// UseEntry records that e was just accessed, promoting it and its
// entire ancestor path to the current instant. Returns
// UsedAlreadyUpToDate if e's last-use already equals now (a no-op),
// otherwise e's depth (root is depth 1).
//
// Grounded on original_source's Cache::use(const Entry &).
func (c *Cache) UseEntry(e *Entry) int {
	now := c.now()
	if e.lastUsed.Equal(now) {
		return UsedAlreadyUpToDate
	}

	path := c.unlinkPathToRoot(e)
	c.relinkPathToRoot(path, now)
	c.deepestYoungest = e

	return c.Depth(e)
}

// Use looks id up and calls UseEntry, returning UsedInvalidID if id is
// not live.
func (c *Cache) Use(id idtypes.ID) int {
	e := c.byID[id]
	if e == nil {
		return UsedInvalidID
	}
	return c.UseEntry(e)
}

// Insert adds a freshly constructed entry (kind already set via
// NewEntry, not yet part of any cache) as a child of parent, or as the
// root if parent is idtypes.Invalid; a cache holds a single root, so
// that fails once a root exists. Returns the assigned id, or
// idtypes.Invalid on any precondition violation (all of which are
// logged by the caller at bug level per spec §7, never panicked).
//
// Grounded on original_source's Cache::insert.
func (c *Cache) Insert(e *Entry, mode Mode, ctx uint8, size uint64) idtypes.ID {
	if e.id.IsValid() {
		return idtypes.Invalid // BUG: already inserted
	}
	created := c.now()
	if created.Before(c.minRequiredCreationTime) {
		return idtypes.Invalid // BUG: creation time predates youngest known entry
	}

	var parent *Entry
	if e.parent.IsValid() {
		parent = c.byID[e.parent]
		if parent == nil {
			return idtypes.Invalid // BUG: parent not live
		}
		if created.Before(parent.lastUsed) {
			return idtypes.Invalid // BUG: child older than parent
		}
	} else if c.root != nil {
		return idtypes.Invalid // BUG: second root
	}

	e.lastUsed = created
	e.createdAt = created

	if parent != nil {
		if c.UseEntry(parent) == UsedAlreadyUpToDate {
			c.deepestYoungest = parent
		}
		parent.children++
		if e.lastUsed.Equal(parent.lastUsed) {
			c.deepestYoungest = e
		}
	} else {
		c.root = e
		c.deepestYoungest = e
	}

	id := c.idGen.Next(ctx, mode == Nocache, c.isFree)
	if !id.IsValid() {
		if parent != nil {
			parent.children--
		}
		return idtypes.Invalid
	}
	e.id = id
	c.byID[id] = e

	c.minRequiredCreationTime = e.lastUsed

	node := &aging.Entry[*Entry]{Value: e}
	e.node = node
	if parent != nil {
		c.aging.InsertOlder(node, parent.node)
	} else {
		c.aging.PushNewest(node)
	}

	e.size = size
	c.totalSize += size

	if len(c.byID) == 1 && c.cb.FirstInserted != nil {
		c.cb.FirstInserted()
	}
	if c.overLimits() && c.cb.GCNeeded != nil {
		c.cb.GCNeeded()
	}

	return id
}

// InsertAgain reassigns e (already live) a fresh id while preserving
// its position in the tree, its aging-list position, and its pin
// status — used when a filler needs to replace an entry's identity
// without disturbing the cache around it (spec §4.9 reinsert_list).
//
// Grounded on original_source's Cache::insert_again.
func (c *Cache) InsertAgain(e *Entry, mode Mode, ctx uint8) idtypes.ID {
	if !e.id.IsValid() {
		return idtypes.Invalid
	}
	oldID := e.id

	newID := c.idGen.Next(ctx, mode == Nocache, c.isFree)
	if !newID.IsValid() {
		return idtypes.Invalid
	}

	delete(c.byID, oldID)
	e.id = newID
	c.byID[newID] = e

	for _, other := range c.byID {
		if other.parent == oldID {
			other.parent = newID
		}
	}

	c.repinIfNeeded(oldID, newID)

	return newID
}

func (c *Cache) repinIfNeeded(oldID, newID idtypes.ID) {
	for i, id := range c.pinned {
		if id == oldID {
			c.pinned[i] = newID
		}
	}
}

// SetObjectSize updates e's accounted size, records a use, and — if
// the new total crosses the soft limit — runs gc immediately rather
// than waiting for the next scheduled pass.
//
// Grounded on original_source's Cache::set_object_size.
func (c *Cache) SetObjectSize(id idtypes.ID, newSize uint64) ErrKind {
	e := c.byID[id]
	if e == nil {
		return InvalidID
	}
	c.totalSize = c.totalSize - e.size + newSize
	e.size = newSize
	c.UseEntry(e)
	if c.overLimits() {
		c.GC()
	}
	return Ok
}

func (c *Cache) overLimits() bool {
	return c.memLimits.exceedsSoft(c.totalSize) || c.countLimits.exceedsSoft(uint64(len(c.byID)))
}

// Pin atomically replaces the set of entries protected from GC along
// the path from id to the root. Pinning idtypes.Invalid clears
// pinning entirely. Pinning the already-pinned id is a no-op.
// Switching to a different id unpins the old path first, which may
// make previously-protected entries collectible; gc only runs when a
// pin was actually held before this call, so pinning for the first
// time out of a fully-unpinned cache never triggers a GC pass.
//
// Grounded on original_source's Cache::pin.
func (c *Cache) Pin(id idtypes.ID) ErrKind {
	var newPath []idtypes.ID
	if id.IsValid() {
		e := c.byID[id]
		if e == nil {
			return InvalidID
		}
		if len(c.pinned) > 0 && c.pinned[len(c.pinned)-1] == id {
			return Ok // idempotent
		}
		for cur := e; cur != nil; cur = c.parentOf(cur) {
			newPath = append([]idtypes.ID{cur.id}, newPath...)
		}
	} else if len(c.pinned) == 0 {
		return Ok
	}

	hadPin := len(c.pinned) > 0

	for _, pid := range c.pinned {
		if e := c.byID[pid]; e != nil {
			e.pinned = false
		}
	}
	c.pinned = newPath
	for _, pid := range c.pinned {
		if e := c.byID[pid]; e != nil {
			e.pinned = true
		}
	}

	if hadPin {
		c.GC()
	}
	return Ok
}

// discard removes candidate (which must be a leaf) from the cache,
// returning the entry that was its next-younger neighbor in the aging
// list before removal (or nil).
//
// Grounded on original_source's Cache::discard / DISCARD-OLDEST.
func (c *Cache) discard(candidate *Entry, notify bool) *Entry {
	next := newerEntry(candidate)

	c.aging.Delete(candidate.node)
	candidate.node = nil

	if parent := c.parentOf(candidate); parent != nil {
		parent.children--
		parent.Kind().ObliviateChild(candidate.id)
	}

	if candidate == c.deepestYoungest {
		c.deepestYoungest = c.parentOf(candidate)
	}
	if c.root == candidate {
		c.root = nil
	}

	c.totalSize -= candidate.size
	delete(c.byID, candidate.id)

	if notify && c.cb.ObjectRemoved != nil {
		c.cb.ObjectRemoved(candidate.id)
	}
	if c.aging.IsEmpty() {
		if notify && c.cb.LastRemoved != nil {
			c.cb.LastRemoved()
		}
	}

	return next
}

func newerEntry(e *Entry) *Entry {
	if e == nil || e.node == nil {
		return nil
	}
	if newer := e.node.Newer(); newer != nil {
		return newer.Value
	}
	return nil
}

// EnumerateTreeOfSublists returns rootID followed by every descendant
// reachable through each visited entry's Kind.EnumerateDirectSublists,
// root first — a worklist walk, not a strict topological order (see
// ToposortForPurge for that). Returns nil if rootID is not live.
//
// Grounded on original_source's LRU::Entry::enumerate_tree_of_sublists.
func (c *Cache) EnumerateTreeOfSublists(rootID idtypes.ID) []idtypes.ID {
	root := c.byID[rootID]
	if root == nil {
		return nil
	}
	nodes := []idtypes.ID{rootID}
	for i := 0; i < len(nodes); i++ {
		e := c.byID[nodes[i]]
		if e == nil {
			continue
		}
		nodes = e.Kind().EnumerateDirectSublists(c, nodes)
	}
	return nodes
}

// ToposortForPurge reorders ids in place so that every internal node
// (one with at least one child currently in the cache, whether or not
// that child is itself in ids) appears after every leaf, ordered by
// each internal node's maximum distance from the leaves in ids — the
// deepest internal nodes first. ids must contain at least one leaf;
// every internal node in ids is expected (by precondition, not
// verified here) to be reachable from some leaf in ids via parent
// links.
//
// Grounded on original_source's Cache::toposort_for_purge.
func (c *Cache) ToposortForPurge(ids []idtypes.ID) bool {
	var leaves, internal []idtypes.ID
	for _, id := range ids {
		e := c.byID[id]
		if e == nil {
			return false
		}
		if e.IsLeaf() {
			leaves = append(leaves, id)
		} else {
			internal = append(internal, id)
		}
	}
	if len(internal) == 0 {
		return true
	}
	if len(leaves) == 0 {
		return false // BUG: cannot sort for purge, set contains no leaves
	}

	dist := make(map[idtypes.ID]int, len(internal))
	for _, id := range internal {
		dist[id] = 0
	}

	for _, leafID := range leaves {
		d := 0
		for cur := c.parentOf(c.byID[leafID]); cur != nil; cur = c.parentOf(cur) {
			known, isInternal := dist[cur.id]
			if !isInternal {
				continue
			}
			d++
			if known < d {
				dist[cur.id] = d
			} else {
				break
			}
		}
	}

	sorted := append([]idtypes.ID{}, internal...)
	sort.SliceStable(sorted, func(i, j int) bool { return dist[sorted[i]] < dist[sorted[j]] })

	copy(ids, leaves)
	copy(ids[len(leaves):], sorted)
	return true
}

// PurgeEntries discards every id in a topologically sorted kill list
// (as produced by ToposortForPurge), unpinning any pinned node before
// it is discarded. notify controls whether ObjectRemoved/LastRemoved
// fire for these discards — the tree manager passes false when it's
// about to emit its own, more specific list-invalidation notice for
// the same id instead (spec §4.9 purge_subtree).
//
// Grounded on original_source's Cache::purge_entries.
func (c *Cache) PurgeEntries(ids []idtypes.ID, notify bool) {
	for _, id := range ids {
		e := c.byID[id]
		if e == nil {
			continue
		}
		if e.pinned {
			c.Pin(idtypes.Invalid)
		}
		c.discard(e, notify)
	}
}
