// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import (
	"time"

	"go.listbroker.dev/listcache/lib/aging"
)

// GCNever is GC's return value when no further call is needed: the
// cache is empty, or every remaining entry is pinned.
const GCNever time.Duration = -1

func entryOf(n *aging.Entry[*Entry]) *Entry {
	if n == nil {
		return nil
	}
	return n.Value
}

// GC runs the three-pass collector and returns how long the caller
// should wait before calling GC again (or GCNever). It is
// non-reentrant: calling it while already running is a programmer
// error and panics, matching original_source's log_assert on
// is_garbage_collector_running_.
//
// Pass 1 (age): discard non-pinned leaves whose age has crossed
// maxAge, oldest first, stopping at the first entry still within the
// threshold.
//
// Pass 2 (pressure): if still over either soft limit, keep discarding
// non-pinned leaves — including, once either limit is hard-exceeded,
// the deepest-youngest "hot" entry — until both limits are low enough
// or nothing collectible remains.
//
// Pass 3 (scheduling): compute the delay until the new oldest
// surviving entry would itself cross maxAge, or GCNever.
//
// Grounded on original_source's Cache::gc.
func (c *Cache) GC() time.Duration {
	if c.inGC {
		panic("lru.Cache.GC: reentrant call")
	}
	c.inGC = true
	defer func() { c.inGC = false }()

	now := c.now()
	candidate := entryOf(c.aging.Oldest())

	for candidate != nil && candidate.Age(now) >= c.maxAge {
		if !candidate.pinned {
			candidate = c.discard(candidate, true)
		} else {
			candidate = entryOf(candidate.node.Newer())
		}
	}

	if c.overLimits() {
		for candidate != nil && (!c.memLimits.isLowEnough(c.totalSize) || !c.countLimits.isLowEnough(uint64(len(c.byID)))) {
			if candidate.pinned {
				candidate = entryOf(candidate.node.Newer())
				continue
			}
			if candidate != c.deepestYoungest {
				candidate = c.discard(candidate, true)
				continue
			}
			// Too young: this is the hot entry the caller is likely
			// looking at right now, only touch it under hard pressure.
			if c.memLimits.exceedsHard(c.totalSize) || c.countLimits.exceedsHard(uint64(len(c.byID))) {
				candidate = c.discard(candidate, true)
			} else {
				break
			}
		}
	}

	if c.aging.IsEmpty() {
		return GCNever
	}

	for candidate != nil && candidate.pinned {
		candidate = entryOf(candidate.node.Newer())
	}
	if candidate == nil {
		// Everything remaining in the cache is pinned.
		return GCNever
	}

	next := c.maxAge - candidate.Age(now)
	if next > 0 {
		return next
	}
	return time.Second
}
