// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import "fmt"

// traversalOrder is the fixed Up→Center→Down order an Iterator walks,
// regardless of which physical tile currently plays which role.
var traversalOrder = [slotCount]int{slotUp, slotCenter, slotDown}

// IterError is returned by Value/Next once the iterator has run past
// the last active slot, or when a tile it stepped over ended in
// Error. Kind carries the first such error seen, mirroring
// original_source's ListIterException without using panics for
// control flow.
type IterError struct{ Kind ErrKind }

func (e *IterError) Error() string {
	return fmt.Sprintf("tiles: iterator exhausted or failed (%v)", e.Kind)
}

// Iterator is a forward-only reader over a Window's Up, Center, and
// Down tiles in that fixed order (spec §4.7). It never sees the
// window slide out from under it mid-traversal: callers own that
// synchronization.
//
// Grounded on original_source's ListIterator (lists_base.hh).
type Iterator[Item any] struct {
	w          *Window[Item]
	slot       int // current slot in traversalOrder, or slotCount at end
	idx        int
	firstError ErrKind
	sawError   bool
}

// Begin returns an iterator positioned at first, or already at-end if
// first isn't in any of the window's active tiles.
func (w *Window[Item]) Begin(first int) *Iterator[Item] {
	it := &Iterator[Item]{w: w}
	loc := w.contains(first)
	if loc == slotNone {
		it.slot = slotCount
		return it
	}
	it.slot = loc
	it.idx = first
	return it
}

// End reports whether the iterator has run past the last active slot.
func (it *Iterator[Item]) End() bool { return it.slot >= slotCount }

func (it *Iterator[Item]) errOrInternal() ErrKind {
	if it.sawError {
		return it.firstError
	}
	return Internal
}

func (it *Iterator[Item]) recordError(k ErrKind) {
	if !it.sawError {
		it.sawError = true
		it.firstError = k
	}
}

// Value returns the item at the iterator's current position.
func (it *Iterator[Item]) Value() (Item, error) {
	var zero Item
	if it.End() {
		return zero, &IterError{Kind: it.errOrInternal()}
	}
	tile := it.w.slots[it.slot]
	if tile == nil {
		return zero, &IterError{Kind: it.errOrInternal()}
	}
	v, ok := tile.Item(it.idx)
	if !ok {
		if tile.State() == Error {
			it.recordError(tile.ErrKind())
		}
		return zero, &IterError{Kind: it.errOrInternal()}
	}
	return v, nil
}

// Next advances to the next item, moving to the next non-nil slot in
// Up→Center→Down order when the current tile is exhausted. Tiles
// found in Error state along the way are skipped, with the first
// error kind seen remembered for later Value/Next calls.
func (it *Iterator[Item]) Next() error {
	if it.End() {
		return &IterError{Kind: it.errOrInternal()}
	}

	it.idx++
	if tile := it.w.slots[it.slot]; tile != nil {
		if it.idx < tile.BaseIndex()+tile.Capacity() {
			return nil
		}
	}

	pos := slotCount
	for i, s := range traversalOrder {
		if s == it.slot {
			pos = i + 1
			break
		}
	}
	for pos < len(traversalOrder) {
		s := traversalOrder[pos]
		tile := it.w.slots[s]
		if tile != nil {
			if tile.State() == Error {
				it.recordError(tile.ErrKind())
				pos++
				continue
			}
			it.slot = s
			it.idx = tile.BaseIndex()
			return nil
		}
		pos++
	}
	it.slot = slotCount
	return nil
}
