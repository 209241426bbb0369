// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"go.listbroker.dev/listcache/lib/idtypes"
)

// slot indexes active_tiles_ the way original_source's ItemLocation
// enum does: UP=0, CENTER=1, DOWN=2. slotNone stands in for NIL.
const (
	slotUp = iota
	slotCenter
	slotDown
	slotCount
)

const slotNone = -1

// Window is the three-tile Up/Center/Down sliding window backing one
// tiled list (spec §4.6). Tile objects are never reallocated once
// constructed: slide and fill only relabel which of the three backing
// tiles plays which role, the same as original_source's hot_tiles_
// (fixed storage) / active_tiles_ (role assignment) split.
//
// Grounded on original_source/src/common/lists_base.hh's ListTiles_.
type Window[Item any] struct {
	pool    *Pool[Item]
	filler  Filler[Item]
	listID  idtypes.ID
	tileCap int

	backing [slotCount]*Tile[Item]
	slots   [slotCount]*Tile[Item]
}

// NewWindow constructs an empty window of tileCap-capacity tiles for
// one list, backed by pool.
func NewWindow[Item any](pool *Pool[Item], filler Filler[Item], listID idtypes.ID, tileCap int) *Window[Item] {
	w := &Window[Item]{pool: pool, filler: filler, listID: listID, tileCap: tileCap}
	for i := range w.backing {
		w.backing[i] = NewTile[Item](0, tileCap)
	}
	return w
}

func (w *Window[Item]) Up() *Tile[Item]     { return w.slots[slotUp] }
func (w *Window[Item]) Center() *Tile[Item] { return w.slots[slotCenter] }
func (w *Window[Item]) Down() *Tile[Item]   { return w.slots[slotDown] }

// IsEmpty reports whether the window holds no active tile at all.
func (w *Window[Item]) IsEmpty() bool {
	return w.slots[slotUp] == nil && w.slots[slotCenter] == nil && w.slots[slotDown] == nil
}

func tileBase(idx, tileCap int) int {
	return (idx / tileCap) * tileCap
}

// contains returns the slot covering idx, or slotNone.
func (w *Window[Item]) contains(idx int) int {
	base := tileBase(idx, w.tileCap)
	for i, t := range w.slots {
		if t != nil && t.BaseIndex() == base {
			return i
		}
	}
	return slotNone
}

func (w *Window[Item]) findFreeTile() *Tile[Item] {
	for _, b := range w.backing {
		inUse := false
		for _, s := range w.slots {
			if s == b {
				inUse = true
				break
			}
		}
		if !inUse {
			return b
		}
	}
	return nil
}

// indexInAdjacentTile is the item index one tile away from idx in
// direction (UP = one tile toward lower indices, DOWN = one tile
// toward higher, CENTER = idx unchanged), wrapping around the ends of
// the list. Grounded on ListTiles_::index_in_adjacent_tile.
func indexInAdjacentTile(idx, total, tileCap, direction int) int {
	switch direction {
	case slotUp:
		if idx >= tileCap {
			return idx - tileCap
		}
		return total - 1
	case slotDown:
		if idx+tileCap < total {
			return idx + tileCap
		}
		return 0
	default:
		return idx
	}
}

// slide moves the current center into the tileToPushOut slot, promotes
// the tileToKeep tile to center, and moves the pushed-out tile into the
// tileToKeep slot — reusing, not reallocating, all three objects. If the
// pushed-out tile doesn't already cover the index adjacent to the new
// center in the tileToKeep direction, its fill is canceled and it's
// reset and re-enqueued there; if it already does (a short list whose
// tiles wrap back on themselves), nothing further is needed.
//
// Grounded on ListTiles_::slide.
func (w *Window[Item]) slide(idx, total, tileToPushOut, tileToKeep int) {
	temp := w.slots[tileToPushOut]
	w.slots[tileToPushOut] = w.slots[slotCenter]
	w.slots[slotCenter] = w.slots[tileToKeep]
	w.slots[tileToKeep] = temp

	adjacentIdx := indexInAdjacentTile(idx, total, w.tileCap, tileToKeep)

	if temp != nil {
		adjacentBase := tileBase(adjacentIdx, w.tileCap)
		if temp.BaseIndex() != adjacentBase {
			w.pool.CancelFiller(temp)
			temp.Reset(adjacentBase)
		} else {
			return
		}
	}

	if w.slots[slotCenter] == nil {
		tile := w.findFreeTile()
		tile.Reset(tileBase(idx, w.tileCap))
		w.slots[slotCenter] = tile
		w.pool.Enqueue(tile, w.filler, w.listID, tile.BaseIndex(), w.tileCap)
	}

	if temp != nil {
		w.pool.Enqueue(temp, w.filler, w.listID, temp.BaseIndex(), w.tileCap)
	}
}

// slideUp moves the window toward lower indices by steps tiles.
// Grounded on ListTiles_::slide_up.
func (w *Window[Item]) slideUp(idx, total, steps int) {
	for i := 0; i < steps; i++ {
		w.slide(idx+(steps-i-1)*w.tileCap, total, slotDown, slotUp)
	}
}

// slideDown moves the window toward higher indices by steps tiles.
// Grounded on ListTiles_::slide_down.
func (w *Window[Item]) slideDown(idx, total, steps int) {
	for i := 0; i < steps; i++ {
		w.slide(idx-(steps-i-1)*w.tileCap, total, slotUp, slotDown)
	}
}

// Clear cancels and frees every active tile.
func (w *Window[Item]) Clear() {
	for i, t := range w.slots {
		if t != nil {
			w.pool.CancelFiller(t)
			t.Reset(0)
			w.slots[i] = nil
		}
	}
}

// Fill discards the current window and activates fresh tiles centered
// on centerIdx: always a center tile, a down tile if the list has more
// than one tile's worth of items, and an up tile if it has more than
// two. Grounded on ListTiles_::fill.
func (w *Window[Item]) Fill(centerIdx, total int) {
	w.Clear()
	if total == 0 {
		return
	}

	base := tileBase(centerIdx, w.tileCap)
	center := w.findFreeTile()
	center.Reset(base)
	w.slots[slotCenter] = center
	w.pool.Enqueue(center, w.filler, w.listID, base, w.tileCap)

	if total <= w.tileCap {
		return
	}

	downIdx := 0
	if base < total-w.tileCap {
		downIdx = base + w.tileCap
	}
	down := w.findFreeTile()
	down.Reset(tileBase(downIdx, w.tileCap))
	w.slots[slotDown] = down
	w.pool.Enqueue(down, w.filler, w.listID, down.BaseIndex(), w.tileCap)

	if total <= 2*w.tileCap {
		return
	}

	upIdx := total - 1
	if base > 0 {
		upIdx = base - w.tileCap
	}
	up := w.findFreeTile()
	up.Reset(tileBase(upIdx, w.tileCap))
	w.slots[slotUp] = up
	w.pool.Enqueue(up, w.filler, w.listID, up.BaseIndex(), w.tileCap)
}

// Materialize ensures idx is in the window, sliding if it's already in
// the Up or Down slot and refilling from scratch otherwise. A tile
// covering idx whose fill ended Canceled or Error also causes a fresh
// fill, so the next access after a failed fill fills it again.
func (w *Window[Item]) Materialize(idx, total int) {
	if slot := w.contains(idx); slot != slotNone {
		if s := w.slots[slot].State(); s == Canceled || s == Error {
			w.Fill(idx, total)
			return
		}
	}
	switch w.contains(idx) {
	case slotCenter:
		return
	case slotUp:
		w.slideUp(idx, total, 1)
	case slotDown:
		w.slideDown(idx, total, 1)
	default:
		w.Fill(idx, total)
	}
}

// computeRequiredSlides mirrors ListTiles_::compute_number_of_required_slides.
// direction may be rewritten from CENTER to UP or DOWN when the range
// needs to slide to free up a third tile.
func computeRequiredSlides(direction *int, isFirstItem bool, spannedTiles int) int {
	switch *direction {
	case slotUp:
		if isFirstItem {
			return 0
		}
		return spannedTiles - 1
	case slotDown:
		if isFirstItem {
			return spannedTiles - 1
		}
		return 0
	case slotCenter:
		ret := 0
		if spannedTiles >= 2 {
			ret = spannedTiles - 2
		}
		if ret > 0 {
			if isFirstItem {
				*direction = slotUp
			} else {
				*direction = slotDown
			}
		}
		return ret
	default:
		return slotCount
	}
}

// checkOverlappingRangeForPrefetch mirrors
// ListTiles_::check_overlapping_range_for_prefetch.
func (w *Window[Item]) checkOverlappingRangeForPrefetch(first, count int) (direction, requiredSlides, spannedTiles int) {
	posInTile := first % w.tileCap
	spannedTiles = 1 + (posInTile+count-1)/w.tileCap

	direction = w.contains(first)
	if direction != slotNone {
		requiredSlides = computeRequiredSlides(&direction, true, spannedTiles)
		return direction, requiredSlides, spannedTiles
	}

	if spannedTiles > 1 {
		last := first + count - 1
		direction = w.contains(last)
		if direction != slotNone {
			requiredSlides = computeRequiredSlides(&direction, false, spannedTiles)
			return direction, requiredSlides, spannedTiles
		}
	}

	return slotNone, slotCount, spannedTiles
}

// PrefetchRange tries to bring [first, first+count) entirely into the
// window, sliding rather than refilling from scratch when possible.
// It returns false immediately if the range needs more than three
// tiles; autoSlide allows a one-tile slide even when the range is
// already fully resident just off to one side.
//
// Grounded on ListTiles_::prefetch.
func (w *Window[Item]) PrefetchRange(first, count, total int, autoSlide bool) bool {
	if count == 0 {
		return false
	}

	posInTile := first % w.tileCap
	if count+posInTile > slotCount*w.tileCap {
		return false
	}

	direction, requiredSlides, spannedTiles := w.checkOverlappingRangeForPrefetch(first, count)

	if requiredSlides == 0 {
		if autoSlide && (direction == slotUp || direction == slotDown) {
			requiredSlides = 1
		} else {
			return true
		}
	}

	var centerIdx int
	switch {
	case autoSlide && spannedTiles < slotCount:
		centerIdx = first
	case direction == slotNone && spannedTiles < slotCount:
		centerIdx = first
	case direction == slotDown && requiredSlides == 1:
		centerIdx = first
	default:
		centerIdx = first + w.tileCap
	}

	switch direction {
	case slotUp:
		if requiredSlides > 0 {
			w.slideUp(centerIdx, total, requiredSlides)
		}
		return true
	case slotDown:
		if requiredSlides > 0 {
			w.slideDown(centerIdx, total, requiredSlides)
		}
		return true
	default:
		// slotNone, and the unreachable slotCenter case (computeRequiredSlides
		// always rewrites CENTER to UP/DOWN whenever it returns > 0, and a
		// return of 0 for CENTER is handled by the requiredSlides==0 branch
		// above): either way, a fresh fill around centerIdx is correct.
		w.Fill(centerIdx, total)
		return true
	}
}
