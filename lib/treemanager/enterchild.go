// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package treemanager

import (
	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
)

// ChildItem is the subset of a containing list's item type EnterChild
// needs: reading and rewriting the cache id of whatever child list
// that item refers to.
type ChildItem interface {
	ChildListID() idtypes.ID
	SetChildListID(id idtypes.ID)
}

// ChildList is the subset of a containing list's own behavior EnterChild
// needs: bounds-checked item access by index.
type ChildList[Item ChildItem] interface {
	Len() int
	Item(index int) Item
}

// EnterChild resolves list[index]'s child list id, reusing a cached
// child when useCached says it's still good and otherwise rebuilding it
// with addToCache, replacing whatever the item pointed to. Spec §4.10.
//
// mayContinue is checked first so a caller already unwinding from an
// interruption doesn't pay for a lookup or rebuild it's about to throw
// away. index out of [0, list.Len()) is InvalidID, matching a child
// item reference nobody allocated.
//
// PurgeSubtree always runs after addToCache, even when it errored:
// the stale cachedChildID subtree must still be evicted, and the
// parent item's reference is only rewritten to the new (possibly
// invalid) id when that id is valid or addToCache's error wasn't
// InvalidID — an InvalidID failure leaves the item's existing
// reference alone rather than clobbering it with Invalid.
//
// Grounded on original_source's EnterChild::enter_child_template.
func EnterChild[Item ChildItem](
	list ChildList[Item],
	m *Manager,
	index int,
	mayContinue func() bool,
	useCached func(cachedChildID idtypes.ID) bool,
	addToCache func(entry Item) (idtypes.ID, lru.ErrKind),
) (idtypes.ID, lru.ErrKind) {
	if !mayContinue() {
		return idtypes.Invalid, lru.Interrupted
	}

	if index < 0 || index >= list.Len() {
		return idtypes.Invalid, lru.InvalidID
	}

	entry := list.Item(index)
	cachedChildID := entry.ChildListID()

	if useCached(cachedChildID) {
		return cachedChildID, lru.Ok
	}

	newID, errKind := addToCache(entry)

	m.PurgeSubtree(cachedChildID, newID, func(_, nid idtypes.ID) {
		if nid.IsValid() || errKind != lru.InvalidID {
			entry.SetChildListID(nid)
		}
	})

	return newID, errKind
}
