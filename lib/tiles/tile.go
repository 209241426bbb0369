// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tiles implements the tiled, prefetched backing storage for a
// list: fixed-capacity tiles filled in the background by a worker
// pool, held in a three-tile Up/Center/Down window that slides as a
// reader moves through the list.
//
// Grounded on original_source/src/common/lists_base.hh.
package tiles

import (
	"sync"
	"sync/atomic"

	"go.listbroker.dev/listcache/lib/lru"
)

// State is a tile's lifecycle state.
type State int

const (
	Free State = iota
	Filling
	Ready
	Canceled
	Error
)

func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Filling:
		return "Filling"
	case Ready:
		return "Ready"
	case Canceled:
		return "Canceled"
	case Error:
		return "Error"
	default:
		return "State(?)"
	}
}

// ErrKind is the same error taxonomy a filler reports through as the
// rest of the module (spec §7: tile errors share one vocabulary with
// cache/tree-manager errors, e.g. Protocol/Empty/NotFound from a
// filler backed by a remote source).
type ErrKind = lru.ErrKind

// Ok and Internal re-export the corresponding lru.ErrKind values for
// callers that only import lib/tiles.
const (
	Ok       = lru.Ok
	Internal = lru.Internal
)

// Tile is one fixed-capacity, lock-protected slot of a tiled list's
// backing storage (spec §3 "Tile"). Item is the per-list item type;
// a tiled list and its worker pool agree on one instantiation.
//
// The cancel flag is the one field read outside of mu: a worker holds
// mu for the full duration of a fill (so the cancellation protocol's
// try-lock reliably detects "a worker is processing this tile"), and
// the filler must still be able to poll ShouldContinue from inside
// that same fill without deadlocking against its own lock.
//
// Grounded on original_source's Tile (lists_base.hh).
type Tile[Item any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	baseIndex   int
	capacity    int
	storedCount int
	state       State
	errKind     ErrKind
	items       []Item

	cancelFlag atomic.Bool
}

// NewTile constructs a Free tile covering [baseIndex, baseIndex+capacity).
func NewTile[Item any](baseIndex, capacity int) *Tile[Item] {
	t := &Tile[Item]{baseIndex: baseIndex, capacity: capacity, state: Free}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// BaseIndex returns the tile's starting index.
func (t *Tile[Item]) BaseIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseIndex
}

// Capacity returns T, the tile's fixed item capacity.
func (t *Tile[Item]) Capacity() int { return t.capacity }

func (t *Tile[Item]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tile[Item]) ErrKind() ErrKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errKind
}

func (t *Tile[Item]) StoredCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storedCount
}

// Item returns the item at list-relative index i, and whether it is
// currently stored (i.e. i is within [baseIndex, baseIndex+storedCount)
// and the tile is Ready).
func (t *Tile[Item]) Item(i int) (item Item, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Ready {
		return item, false
	}
	off := i - t.baseIndex
	if off < 0 || off >= t.storedCount {
		return item, false
	}
	return t.items[off], true
}

// WaitForReadyState blocks until the tile leaves Filling, then returns
// its resulting state. Grounded on Tile::wait_for_ready_state.
func (t *Tile[Item]) WaitForReadyState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == Filling {
		t.cond.Wait()
	}
	return t.state
}

// Reset reclaims the tile for a new base index; it must not be called
// while the tile is Filling or enqueued.
func (t *Tile[Item]) Reset(baseIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseIndex = baseIndex
	t.storedCount = 0
	t.state = Free
	t.errKind = Ok
	t.cancelFlag.Store(false)
	t.items = nil
}

// markFilling transitions a Free tile to Filling; called by the pool
// immediately before enqueuing, while the caller still holds whatever
// lock protects the window (so no reader can observe a half-enqueued
// tile).
func (t *Tile[Item]) markFilling() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Filling
	t.cancelFlag.Store(false)
}

// RequestCancel asks an in-progress or queued fill to stop as soon as
// the filler next checks ShouldContinue. Deliberately lock-free: it
// must be callable while a worker holds the tile locked for the
// entire duration of its fill.
func (t *Tile[Item]) RequestCancel() { t.cancelFlag.Store(true) }

// ShouldContinue is handed to the filler; it returns false iff
// RequestCancel has been called.
func (t *Tile[Item]) ShouldContinue() bool { return !t.cancelFlag.Load() }

// applyFillResultLocked applies a worker's fill result, following spec
// §4.5: count > 0 promotes to Ready; count == 0 is a cancellation
// (Canceled if errKind is Ok, else Error); count < 0 is always
// Canceled/Error by errKind. Waiters on WaitForReadyState are woken.
// Callers must already hold the tile's lock (see lock/unlock below).
func (t *Tile[Item]) applyFillResultLocked(items []Item, count int, errKind ErrKind) {
	switch {
	case count > 0:
		t.items = items
		t.storedCount = count
		t.state = Ready
	case errKind == Ok:
		t.state = Canceled
	default:
		t.errKind = errKind
		t.state = Error
	}
	t.cond.Broadcast()
}

// markCanceledLocked is used by the pool's cancellation protocol when
// a tile is pulled out of the queue before any worker touched it.
// Callers must already hold the tile's lock.
func (t *Tile[Item]) markCanceledLocked() {
	if t.state != Canceled {
		t.state = Canceled
	}
	t.cond.Broadcast()
}

// lock, unlock, and tryLock give package tiles' own pool.go the raw
// mutual exclusion the lock-ordering protocol in spec §4.5 needs
// (queue-lock → tile-lock for workers, tile-lock alone for the
// cancellation protocol's try-lock step).
func (t *Tile[Item]) lock()         { t.mu.Lock() }
func (t *Tile[Item]) unlock()       { t.mu.Unlock() }
func (t *Tile[Item]) tryLock() bool { return t.mu.TryLock() }
