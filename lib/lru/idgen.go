// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import "go.listbroker.dev/listcache/lib/idtypes"

// idGenerator is a per-context rolling allocator: it remembers where
// the last scan for a free raw id left off and resumes from there,
// wrapping back to 1 after passing the maximum. Grounded on
// original_source/src/common/lru.cc's CacheIdGenerator::next.
type idGenerator struct {
	next [idtypes.ContextMax + 1]uint32
}

func newIDGenerator() *idGenerator {
	g := &idGenerator{}
	for i := range g.next {
		g.next[i] = 1
	}
	return g
}

// isFree reports whether a candidate id is not currently live.
type isFreeFunc func(id idtypes.ID) bool

// Next returns the next unused id for ctx with the given nocache flag,
// or idtypes.Invalid if every raw id in the context's range is live
// (a full cycle found no free candidate).
func (g *idGenerator) Next(ctx uint8, nocache bool, isFree isFreeFunc) idtypes.ID {
	cursor := g.next[ctx]
	start := cursor
	for {
		candidate := idtypes.New(ctx, nocache, cursor)
		next := cursor + 1
		if next == 0 || next > idtypes.RawMax {
			next = 1
		}
		g.next[ctx] = next
		if isFree(candidate) {
			return candidate
		}
		cursor = next
		if cursor == start {
			return idtypes.Invalid
		}
	}
}
