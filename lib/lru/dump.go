// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import (
	"fmt"
	"time"

	"go.listbroker.dev/listcache/lib/idtypes"
)

// DumpEntry is a structural snapshot of one live cache entry, with its
// children nested the same way Insert's parent/child links nest them
// in the cache itself. It carries no mutexes or aging-list pointers,
// so it is safe to hold after the Cache that produced it has mutated
// further, and it prints cleanly with github.com/davecgh/go-spew.
type DumpEntry struct {
	ID       idtypes.ID
	Kind     string
	Size     uint64
	Pinned   bool
	LastUsed time.Time
	Age      time.Duration
	Children []*DumpEntry
}

// Dump renders the subtree rooted at rootID as a DumpEntry tree, or
// the whole cache if rootID is idtypes.Invalid. Returns nil if rootID
// (or the cache root, when defaulted) is not live.
func (c *Cache) Dump(rootID idtypes.ID) *DumpEntry {
	if rootID == idtypes.Invalid {
		rootID = c.Root()
	}

	ids := c.EnumerateTreeOfSublists(rootID)
	if len(ids) == 0 {
		return nil
	}

	now := c.now()
	nodes := make(map[idtypes.ID]*DumpEntry, len(ids))
	for _, id := range ids {
		e := c.byID[id]
		if e == nil {
			continue
		}
		nodes[id] = &DumpEntry{
			ID:       id,
			Kind:     fmt.Sprintf("%T", e.Kind()),
			Size:     e.Size(),
			Pinned:   e.Pinned(),
			LastUsed: e.LastUsed(),
			Age:      e.Age(now),
		}
	}

	var root *DumpEntry
	for _, id := range ids {
		d, ok := nodes[id]
		if !ok {
			continue
		}
		if parent, ok := nodes[c.byID[id].Parent()]; ok {
			parent.Children = append(parent.Children, d)
		} else {
			root = d
		}
	}
	return root
}
