// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package treemanager is the thin policy façade domain code drives the
// cache through (spec §4.9): pending-slot bookkeeping around
// allocation, the enter-child template, and subtree purge.
//
// Grounded on original_source/src/common/listtree_manager.{hh,cc}.
package treemanager

import (
	"time"

	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
	"go.listbroker.dev/listcache/lib/override"
)

// PurgeResult reports what purge_subtree (spec §4.9) actually did.
type PurgeResult int

const (
	Invalid PurgeResult = iota
	Untouched
	PurgedAndReplaced
	ReplacedRoot
	Purged
)

func (r PurgeResult) String() string {
	switch r {
	case Invalid:
		return "Invalid"
	case Untouched:
		return "Untouched"
	case PurgedAndReplaced:
		return "PurgedAndReplaced"
	case ReplacedRoot:
		return "ReplacedRoot"
	case Purged:
		return "Purged"
	default:
		return "PurgeResult(?)"
	}
}

// SetRootFunc patches the list entry in a parent list that referred to
// oldID so that it now refers to newID. Bound by domain code; the
// manager never looks inside a list's item storage itself.
type SetRootFunc func(oldID, newID idtypes.ID)

// Manager is a thin façade over one Cache and one cacheability
// Checker, used by domain code to avoid duplicating allocation,
// enter-child, and subtree-purge bookkeeping at every call site.
//
// Not safe for concurrent use; spec §5 places it on the single reader
// thread along with the Cache it wraps.
type Manager struct {
	cache Cache
	check override.Checker

	defaultMode lru.Mode

	// pending holds at most one not-yet-inserted entry between
	// AllocateList and Bless/ExpelUnblessed, to catch leaked allocations.
	pending any

	// OnListInvalidate, if set, is called whenever a list id is
	// replaced or removed — the hook domain code uses in place of the
	// original's D-Bus ListInvalidate signal.
	OnListInvalidate func(oldID, newID idtypes.ID)
}

// Cache is the subset of *lru.Cache the tree manager needs; satisfied
// by *lru.Cache itself, narrowed so tests can substitute a fake.
type Cache interface {
	Lookup(id idtypes.ID) *lru.Entry
	Insert(e *lru.Entry, mode lru.Mode, ctx uint8, size uint64) idtypes.ID
	InsertAgain(e *lru.Entry, mode lru.Mode, ctx uint8) idtypes.ID
	Pin(id idtypes.ID) lru.ErrKind
	Use(id idtypes.ID) int
	ToposortForPurge(ids []idtypes.ID) bool
	PurgeEntries(ids []idtypes.ID, notify bool)
	EnumerateTreeOfSublists(rootID idtypes.ID) []idtypes.ID
}

// New constructs a Manager over cache, consulting check for
// cacheability decisions force_list_into_cache makes.
func New(cache Cache, check override.Checker) *Manager {
	return &Manager{cache: cache, check: check, defaultMode: lru.Cacheable}
}

// SetDefaultMode changes the Mode Bless uses for subsequently allocated
// lists (original_source's set_default_lru_cache_mode).
func (m *Manager) SetDefaultMode(mode lru.Mode) { m.defaultMode = mode }

// AllocateList wraps kind in a new, not-yet-cached Entry under parent
// and remembers it as pending. Panics if a list is already pending —
// that indicates a leaked allocation never Blessed or Expelled, a
// programmer error this pairing exists to catch.
func (m *Manager) AllocateList(kind lru.Kind, parent idtypes.ID) *lru.Entry {
	if m.pending != nil {
		panic("treemanager: AllocateList called with an already-pending list")
	}
	e := lru.NewEntry(kind, parent)
	m.pending = e
	return e
}

// Bless inserts the pending entry (which must be list, previously
// returned by AllocateList) into the cache under ctx, sized
// sizeOfList, pinning it if pinIt, and clears the pending slot.
func (m *Manager) Bless(list *lru.Entry, ctx uint8, sizeOfList uint64, pinIt bool) idtypes.ID {
	if m.pending != any(list) {
		panic("treemanager: Bless called on a list that isn't the pending allocation")
	}
	m.pending = nil

	id := m.cache.Insert(list, m.defaultMode, ctx, sizeOfList)
	if pinIt && id.IsValid() {
		m.cache.Pin(id)
	}
	return id
}

// ExpelUnblessed discards the pending entry without ever inserting it,
// clearing the pending slot.
func (m *Manager) ExpelUnblessed(list *lru.Entry) {
	if m.pending != any(list) {
		panic("treemanager: ExpelUnblessed called on a list that isn't the pending allocation")
	}
	m.pending = nil
}

// GetParentListID returns the id of id's parent, or idtypes.Invalid if
// id is invalid, unknown, or itself a root.
func (m *Manager) GetParentListID(id idtypes.ID) idtypes.ID {
	if !id.IsValid() {
		return idtypes.Invalid
	}
	e := m.cache.Lookup(id)
	if e == nil {
		return idtypes.Invalid
	}
	return e.Parent()
}

// UseList records an access to id, optionally pinning it (replacing
// whatever was previously pinned). Returns false for an invalid or
// unknown id.
func (m *Manager) UseList(id idtypes.ID, pinIt bool) bool {
	if !id.IsValid() {
		return false
	}
	if m.cache.Use(id) == lru.UsedInvalidID {
		return false
	}
	if pinIt {
		m.cache.Pin(id)
	}
	return true
}

// ReinsertList reassigns id a fresh cache identity (spec §4.9
// reinsert_list), updates any live override record to follow it, and
// fires OnListInvalidate. Panics if id isn't live — callers are
// expected to have just looked it up.
func (m *Manager) ReinsertList(id idtypes.ID) idtypes.ID {
	e := m.cache.Lookup(id)
	if e == nil {
		panic("treemanager: ReinsertList called with an id not in the cache")
	}
	newID := m.cache.InsertAgain(e, m.defaultMode, 0)
	if m.check != nil {
		m.check.ListInvalidate(id, newID)
	}
	if m.OnListInvalidate != nil {
		m.OnListInvalidate(id, newID)
	}
	return newID
}

// ForceListIntoCache wraps PutOverride/RemoveOverride: forcing true
// requests an override (returning the non-negative duration it will
// last, clamped at zero), forcing false removes one.
func (m *Manager) ForceListIntoCache(id idtypes.ID, force bool) time.Duration {
	if m.check == nil {
		return 0
	}
	if force {
		d, _ := m.check.PutOverride(id)
		if d < 0 {
			return 0
		}
		return d
	}
	m.check.RemoveOverride(id)
	return 0
}

// RepinIfFirstIsDeepestPinnedList re-pins otherID in place of firstID
// if firstID was the deepest pinned list — used after discovering a
// deeper/better list to keep pinning focused on it.
func (m *Manager) RepinIfFirstIsDeepestPinnedList(firstID, otherID idtypes.ID, currentlyPinned idtypes.ID) {
	if !firstID.IsValid() {
		return
	}
	if firstID == currentlyPinned {
		m.cache.Pin(otherID)
	}
}

// ListDiscardedFromCache notifies the checker and OnListInvalidate
// hook that id was discarded during GC, with no replacement.
func (m *Manager) ListDiscardedFromCache(id idtypes.ID) {
	if m.check != nil {
		m.check.ListInvalidate(id, idtypes.Invalid)
	}
	if m.OnListInvalidate != nil {
		m.OnListInvalidate(id, idtypes.Invalid)
	}
}

// PurgeSubtree removes oldID's subtree from the cache (spec §4.9).
// setRoot, if non-nil, is called to patch whatever parent-list item
// referred to oldID so it refers to newID instead — except when the
// lookup of oldID itself fails, where it is still called so the
// caller's bookkeeping stays consistent with an id it must now treat
// as dangling.
//
// If newID equals oldID, only oldID's descendants are purged and
// oldID itself survives. If newID is different (including invalid),
// oldID and its descendants are all purged and newID is recorded as
// its replacement.
//
// Grounded on original_source's ListTreeManager::purge_subtree.
func (m *Manager) PurgeSubtree(oldID, newID idtypes.ID, setRoot SetRootFunc) PurgeResult {
	if !oldID.IsValid() || m.cache.Lookup(oldID) == nil {
		if setRoot != nil {
			setRoot(oldID, newID)
		}
		return Invalid
	}

	killList := m.cache.EnumerateTreeOfSublists(oldID)
	if len(killList) == 0 {
		if setRoot != nil {
			setRoot(oldID, newID)
		}
		return Invalid
	}

	var firstToKill int
	var result PurgeResult

	switch {
	case !newID.IsValid():
		firstToKill = 0
		result = Purged
	case oldID == newID:
		firstToKill = 1
		if len(killList) > 1 {
			result = Purged
		} else {
			result = Untouched
		}
	default:
		firstToKill = 1
		if len(killList) > 1 {
			result = PurgedAndReplaced
		} else {
			result = ReplacedRoot
		}
	}

	needToProcessKillList := false

	switch result {
	case Invalid, Untouched, Purged:
		if setRoot != nil {
			setRoot(oldID, newID)
		}
		needToProcessKillList = result == Purged

	case ReplacedRoot, PurgedAndReplaced:
		m.cache.PurgeEntries(killList[:1], false)
		if setRoot != nil {
			setRoot(oldID, newID)
		}
		if m.check != nil {
			m.check.ListInvalidate(oldID, newID)
		}
		if m.OnListInvalidate != nil {
			m.OnListInvalidate(oldID, newID)
		}
		needToProcessKillList = result == PurgedAndReplaced
	}

	if needToProcessKillList {
		rest := killList[firstToKill:]
		m.cache.ToposortForPurge(rest)
		m.cache.PurgeEntries(rest, true)
	}

	return result
}
