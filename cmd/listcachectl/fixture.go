// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"

	"git.lukeshu.com/go/typedsync"
	"github.com/datawire/dlib/dlog"

	"go.listbroker.dev/listcache/lib/config"
	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
	"go.listbroker.dev/listcache/lib/override"
	"go.listbroker.dev/listcache/lib/tiles"
	"go.listbroker.dev/listcache/lib/treemanager"
)

// demoCategories are the top-level, flatly-stored containers every
// demo cache is seeded with; each lazily grows a tiled list of tracks
// the first time it's entered.
var demoCategories = []string{"Artists", "Playlists", "Genres"}

// tracksPerCategory is the logical length of each category's tiled
// child list — large enough to need several tiles at a realistic
// tile size, small enough to print in full.
const tracksPerCategory = 40

// trackFiller stands in for a UPnP/USB filler: it manufactures
// "Track N" items entirely in memory. bufs recycles each fill's
// scratch item slice the same way lib/containers.SlicePool recycles
// byte buffers elsewhere in the pack, borrowing a slice for the
// duration of one Fill call and returning it before handing the
// caller a freshly sized copy it can keep.
type trackFiller struct {
	bufs typedsync.Pool[[]*tiles.Item[string]]
}

func (f *trackFiller) Fill(_ idtypes.ID, base, capacity int, shouldContinue func() bool) ([]*tiles.Item[string], int, tiles.ErrKind) {
	scratch, ok := f.bufs.Get()
	if !ok || cap(scratch) < capacity {
		scratch = make([]*tiles.Item[string], capacity)
	}
	scratch = scratch[:capacity]
	defer f.bufs.Put(scratch)

	n := 0
	for ; n < capacity; n++ {
		if !shouldContinue() {
			break
		}
		scratch[n] = &tiles.Item[string]{Data: fmt.Sprintf("Track %d", base+n+1)}
	}

	result := make([]*tiles.Item[string], n)
	copy(result, scratch[:n])
	return result, n, tiles.Ok
}

// demoCache bundles everything buildDemoCache wires up, so demo.go
// and dump.go can share one construction recipe.
type demoCache struct {
	cache     *lru.Cache
	manager   *treemanager.Manager
	trackPool *tiles.Pool[*tiles.Item[string]]
	filler    *trackFiller
	rootList  *tiles.FlatList[string]
	rootID    idtypes.ID
	tileSize  int
	shutdown  func() error
	nextRawID uint32
}

func (d *demoCache) allocListID() idtypes.ID {
	d.nextRawID++
	return idtypes.New(1, false, d.nextRawID)
}

// buildDemoCache constructs the root flat list of categories, each
// item's child list id left unset until entered, over a cache and
// tree manager sized from cfg.
func buildDemoCache(ctx context.Context, cfg config.Config) *demoCache {
	memLimits, countLimits := cfg.LRULimits()
	cache := lru.NewCache(memLimits, countLimits, cfg.MaxAge.Duration(), lru.Callbacks{
		FirstInserted: func() { dlog.Debug(ctx, "cache: first entry inserted") },
		GCNeeded:      func() { dlog.Debug(ctx, "cache: gc needed") },
		ObjectRemoved: func(id idtypes.ID) { dlog.Debugf(ctx, "cache: discarded %s", id) },
		LastRemoved:   func() { dlog.Debug(ctx, "cache: now empty") },
	})

	manager := treemanager.New(cache, override.NoOverrides{})

	trackPool := tiles.NewPool[*tiles.Item[string]](ctx, cfg.Workers)
	filler := &trackFiller{}

	items := make([]*tiles.Item[string], len(demoCategories))
	for i, name := range demoCategories {
		items[i] = &tiles.Item[string]{Data: name}
	}
	rootList := tiles.NewFlatList(items)

	entry := manager.AllocateList(rootList, idtypes.Invalid)
	rootID := manager.Bless(entry, 0, uint64(len(demoCategories)), true)

	return &demoCache{
		cache:     cache,
		manager:   manager,
		trackPool: trackPool,
		filler:    filler,
		rootList:  rootList,
		rootID:    rootID,
		tileSize:  cfg.TileSize,
		shutdown:  trackPool.Shutdown,
	}
}

// enterCategory resolves (materializing if necessary) the tiled track
// list for the category at rootList index, through the same
// enter-child path domain code would use.
func (d *demoCache) enterCategory(index int) (idtypes.ID, lru.ErrKind) {
	return treemanager.EnterChild[*tiles.Item[string]](
		d.rootList,
		d.manager,
		index,
		func() bool { return true },
		func(cachedChildID idtypes.ID) bool { return cachedChildID.IsValid() },
		func(item *tiles.Item[string]) (idtypes.ID, lru.ErrKind) {
			list := tiles.NewList[string](d.trackPool, d.filler, d.allocListID(), d.tileSize, tracksPerCategory)
			childEntry := d.manager.AllocateList(list, d.rootID)
			childID := d.manager.Bless(childEntry, 1, uint64(tracksPerCategory), false)
			if !childID.IsValid() {
				d.manager.ExpelUnblessed(childEntry)
				return idtypes.Invalid, lru.Internal
			}
			return childID, lru.Ok
		},
	)
}
