// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.listbroker.dev/listcache/lib/idtypes"
)

func TestPoolEnqueueAndDrainFillsTile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool := NewPool[int](ctx, 1)
	tile := NewTile[int](0, 4)
	filler := &countingFiller{}

	pool.Enqueue(tile, filler, idtypes.New(0, false, 1), 0, 4)
	pool.Drain()

	assert.Equal(t, Ready, tile.WaitForReadyState())
	assert.Equal(t, []int{0, 1, 2, 3}, func() []int {
		out := make([]int, 4)
		for i := range out {
			v, ok := tile.Item(i)
			require.True(t, ok)
			out[i] = v
		}
		return out
	}())
}

func TestPoolCancelFillerOnStillQueuedTile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	// A single worker kept busy on tileBusy lets tileQueued sit in the
	// queue untouched, so CancelFiller takes the "still queued" path.
	pool := NewPool[int](ctx, 1)
	release := make(chan struct{})
	busyFiller := fillerFunc(func(_ idtypes.ID, base, capacity int, shouldContinue func() bool) ([]int, int, ErrKind) {
		<-release
		return make([]int, capacity), capacity, Ok
	})
	tileBusy := NewTile[int](0, 4)
	tileQueued := NewTile[int](4, 4)

	pool.Enqueue(tileBusy, busyFiller, idtypes.New(0, false, 1), 0, 4)
	pool.Enqueue(tileQueued, &countingFiller{}, idtypes.New(0, false, 1), 4, 4)

	pool.CancelFiller(tileQueued)
	assert.Equal(t, Canceled, tileQueued.State())

	close(release)
	pool.Drain()
	assert.Equal(t, Ready, tileBusy.State())
}
