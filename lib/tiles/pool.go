// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"context"
	"fmt"
	"sync"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"go.listbroker.dev/listcache/lib/idtypes"
)

// Filler produces the items for one tile, respecting shouldContinue
// (which goes false the instant the tile's fill is canceled). It
// returns the items it managed to produce and how many (mirroring the
// original's separate count-return: a filler may return fewer items
// than it appended, e.g. after an interrupted fetch) plus an error
// kind. Grounded on original_source's Filler interface (lists_base.hh).
type Filler[Item any] interface {
	Fill(listID idtypes.ID, baseIndex, capacity int, shouldContinue func() bool) (items []Item, count int, errKind ErrKind)
}

type workItem[Item any] struct {
	tile      *Tile[Item]
	filler    Filler[Item]
	listID    idtypes.ID
	baseIndex int
	capacity  int
}

// Pool is the FIFO tile-filling worker pool (spec §4.5): one Pool
// instance per list type (item type), backing every tiled list of
// that type.
//
// Grounded on original_source's WorkQueue/worker-thread pair.
// Workers are dgroup-managed goroutines so Shutdown composes with the
// program's own dgroup.Group.
type Pool[Item any] struct {
	mu    sync.Mutex
	queue []*workItem[Item]
	wake  chan struct{}

	wg  sync.WaitGroup
	grp *dgroup.Group
}

// NewPool starts a pool with the given number of workers, each a
// goroutine managed by a dgroup.Group derived from ctx. Call Shutdown
// to stop the workers and release the group.
func NewPool[Item any](ctx context.Context, workers int) *Pool[Item] {
	p := &Pool[Item]{wake: make(chan struct{}, 1)}
	p.grp = dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for i := 0; i < workers; i++ {
		i := i
		p.grp.Go(fmt.Sprintf("tile-worker-%d", i), func(ctx context.Context) error {
			p.runWorker(ctx)
			return nil
		})
	}
	return p
}

// Shutdown stops accepting new work and waits for every worker
// goroutine to exit.
func (p *Pool[Item]) Shutdown() error {
	return p.grp.Wait()
}

func (p *Pool[Item]) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Enqueue transitions tile to Filling and appends a work item to the
// FIFO queue. The caller must hold whatever lock protects the window
// so no reader observes the tile mid-transition.
func (p *Pool[Item]) Enqueue(tile *Tile[Item], filler Filler[Item], listID idtypes.ID, baseIndex, capacity int) {
	tile.markFilling()
	p.wg.Add(1)
	p.mu.Lock()
	p.queue = append(p.queue, &workItem[Item]{tile: tile, filler: filler, listID: listID, baseIndex: baseIndex, capacity: capacity})
	p.mu.Unlock()
	p.signal()
}

// Drain blocks until every currently enqueued or in-flight fill has
// completed. Used by tests and by callers that want deterministic,
// synchronous fill ordering (spec §4.5 "a synchronous mode").
func (p *Pool[Item]) Drain() {
	p.wg.Wait()
}

func (p *Pool[Item]) runWorker(ctx context.Context) {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			p.mu.Lock()
		}
		item := p.queue[0]
		p.queue = p.queue[1:]

		// Lock ordering: queue-lock → tile-lock. The tile stays locked
		// for the whole fill so the cancellation protocol's try-lock
		// reliably tells an external caller "a worker is processing
		// this tile right now".
		item.tile.lock()
		p.mu.Unlock()

		if ctx.Err() != nil {
			item.tile.applyFillResultLocked(nil, 0, Ok)
			item.tile.unlock()
			p.wg.Done()
			continue
		}

		items, count, errKind := item.filler.Fill(item.listID, item.baseIndex, item.capacity, item.tile.ShouldContinue)
		if count < 0 {
			dlog.Errorf(ctx, "tiles: filler for list %s tile %d returned negative count %d", item.listID, item.baseIndex, count)
			count = 0
		}
		item.tile.applyFillResultLocked(items, count, errKind)
		item.tile.unlock()
		p.wg.Done()
	}
}

// CancelFiller requests cancellation of tile's fill and blocks until
// the tile is guaranteed to no longer be Free or Filling: either it
// was still queued and gets pulled out and marked Canceled directly,
// or a worker is already processing it and this call waits for that
// worker to finish observing the cancellation.
//
// Grounded on original_source's cancellation protocol (spec §4.5).
func (p *Pool[Item]) CancelFiller(tile *Tile[Item]) {
	tile.RequestCancel()

	p.mu.Lock()
	if tile.tryLock() {
		// Not currently being processed by a worker.
		for i, item := range p.queue {
			if item.tile == tile {
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				p.wg.Done()
				break
			}
		}
		p.mu.Unlock()
		tile.markCanceledLocked()
		tile.unlock()
		return
	}
	p.mu.Unlock()

	// A worker holds the tile's lock for the duration of its fill; by
	// the time we can acquire it, the worker has finished, errored, or
	// observed the cancellation and exited.
	tile.lock()
	tile.unlock()
}
