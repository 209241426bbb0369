// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
)

// Item is one element of a tiled list: domain-specific Data plus the
// id of this item's already-cached child list, if any. Use *Item[Data]
// (not Item[Data]) as the Window/Pool/Tile item type parameter, so
// SetChildListID's mutation is visible to every holder of the pointer.
//
// Grounded on original_source's ListItem_<T>.
type Item[Data any] struct {
	Data Data

	childID idtypes.ID
}

func (i *Item[Data]) ChildListID() idtypes.ID      { return i.childID }
func (i *Item[Data]) SetChildListID(id idtypes.ID) { i.childID = id }

// List is a tiled, prefetched list of Data items that also satisfies
// lru.Kind, so it can be the payload of a cache entry in its own
// right. A Window materializes items on demand through a Filler[Data];
// length is set once, by whoever constructs the list (typically known
// from the first Fill response or from domain metadata).
//
// Grounded on ListTiles_ (storage) plus the Kind-vtable role a
// concrete list plays in the cache tree (spec §9 dynamic dispatch).
type List[Data any] struct {
	window *Window[*Item[Data]]
	length int
}

// NewList constructs a List backed by pool, identified in the cache as
// listID (used to address Fill calls to the right source), of the
// given fixed length.
func NewList[Data any](pool *Pool[*Item[Data]], filler Filler[*Item[Data]], listID idtypes.ID, tileCap, length int) *List[Data] {
	return &List[Data]{
		window: NewWindow[*Item[Data]](pool, filler, listID, tileCap),
		length: length,
	}
}

// Len returns the list's total item count.
func (l *List[Data]) Len() int { return l.length }

// Item materializes index into the window if needed, blocks until its
// tile leaves Filling, and returns the item — or nil if index is out
// of range or its tile ended in Canceled or Error state.
func (l *List[Data]) Item(index int) *Item[Data] {
	if index < 0 || index >= l.length {
		return nil
	}
	l.window.Materialize(index, l.length)
	slot := l.window.contains(index)
	if slot == slotNone {
		return nil
	}
	tile := l.window.slots[slot]
	if tile.WaitForReadyState() != Ready {
		return nil
	}
	v, ok := tile.Item(index)
	if !ok {
		return nil
	}
	return v
}

// PrefetchRange brings [first, first+count) into the window ahead of
// a reader reaching it. See Window.PrefetchRange.
func (l *List[Data]) PrefetchRange(first, count int, autoSlide bool) bool {
	return l.window.PrefetchRange(first, count, l.length, autoSlide)
}

// Clear releases the list's tiles back to Free, e.g. just before the
// entry itself is discarded from the cache.
func (l *List[Data]) Clear() { l.window.Clear() }

func (l *List[Data]) eachResidentItem(f func(item *Item[Data])) {
	for _, t := range l.window.backing {
		if t.State() != Ready {
			continue
		}
		base, n := t.BaseIndex(), t.StoredCount()
		for i := 0; i < n; i++ {
			if item, ok := t.Item(base + i); ok {
				f(item)
			}
		}
	}
}

// EnumerateDirectSublists appends the child ids of every item
// currently resident in the window. Items outside the window carry no
// live child binding to enumerate — see this package's design notes on
// why revisiting an evicted index is not free at this layer.
//
// Grounded on LRU::Entry::enumerate_tree_of_sublists's callback into a
// concrete list's own sublist enumeration.
func (l *List[Data]) EnumerateDirectSublists(_ *lru.Cache, out []idtypes.ID) []idtypes.ID {
	l.eachResidentItem(func(item *Item[Data]) {
		if id := item.ChildListID(); id.IsValid() {
			out = append(out, id)
		}
	})
	return out
}

// ObliviateChild clears any resident item's reference to childID after
// it has been discarded from the cache.
func (l *List[Data]) ObliviateChild(childID idtypes.ID) {
	l.eachResidentItem(func(item *Item[Data]) {
		if item.ChildListID() == childID {
			item.SetChildListID(idtypes.Invalid)
		}
	})
}

var _ lru.Kind = (*List[struct{}])(nil)
