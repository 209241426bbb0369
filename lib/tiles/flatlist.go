// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
)

// FlatList is the un-tiled counterpart to List: a small sequence of
// Data items kept entirely resident, for data small enough that
// fetching and storing all of it up front is no hardship.
//
// Grounded on original_source's FlatList<T> (lists.hh), a thin
// std::vector<ListItem_<T>> wrapper; Go's append-based slice plays
// the same role here.
type FlatList[Data any] struct {
	items []*Item[Data]
}

// NewFlatList wraps an already-built slice of items as a FlatList.
func NewFlatList[Data any](items []*Item[Data]) *FlatList[Data] {
	return &FlatList[Data]{items: items}
}

// Len returns the list's item count.
func (l *FlatList[Data]) Len() int { return len(l.items) }

// Item returns the item at index, or nil if out of range.
func (l *FlatList[Data]) Item(index int) *Item[Data] {
	if index < 0 || index >= len(l.items) {
		return nil
	}
	return l.items[index]
}

// AppendUnsorted adds item to the end of the list.
//
// Grounded on FlatList::append_unsorted.
func (l *FlatList[Data]) AppendUnsorted(item *Item[Data]) {
	l.items = append(l.items, item)
}

// InsertBefore inserts item at index, shifting later items back.
//
// Grounded on FlatList::insert_before.
func (l *FlatList[Data]) InsertBefore(index int, item *Item[Data]) {
	l.items = append(l.items, nil)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = item
}

// Remove deletes the item at index, returning the child list id it
// referenced (idtypes.Invalid if none).
func (l *FlatList[Data]) Remove(index int) idtypes.ID {
	childID := l.items[index].ChildListID()
	l.items = append(l.items[:index], l.items[index+1:]...)
	return childID
}

// LookupChildByID finds the item whose child list id is childID.
//
// Grounded on FlatList::lookup_child_by_id.
func (l *FlatList[Data]) LookupChildByID(childID idtypes.ID) *Item[Data] {
	for _, it := range l.items {
		if it.ChildListID() == childID {
			return it
		}
	}
	return nil
}

// LookupItemIndexByChildID finds the index of the item whose child
// list id is childID.
//
// Grounded on FlatList::lookup_item_id_by_child_id.
func (l *FlatList[Data]) LookupItemIndexByChildID(childID idtypes.ID) (int, bool) {
	for i, it := range l.items {
		if it.ChildListID() == childID {
			return i, true
		}
	}
	return 0, false
}

// EnumerateDirectSublists appends the child ids of every item in the
// list — unlike List, every item here is always resident.
func (l *FlatList[Data]) EnumerateDirectSublists(_ *lru.Cache, out []idtypes.ID) []idtypes.ID {
	for _, it := range l.items {
		if id := it.ChildListID(); id.IsValid() {
			out = append(out, id)
		}
	}
	return out
}

// ObliviateChild clears any item's reference to childID after it has
// been discarded from the cache.
func (l *FlatList[Data]) ObliviateChild(childID idtypes.ID) {
	for _, it := range l.items {
		if it.ChildListID() == childID {
			it.SetChildListID(idtypes.Invalid)
		}
	}
}

var _ lru.Kind = (*FlatList[struct{}])(nil)
