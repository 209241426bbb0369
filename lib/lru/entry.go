// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import (
	"time"

	"go.listbroker.dev/listcache/lib/aging"
	"go.listbroker.dev/listcache/lib/idtypes"
)

// Kind is the small capability set every concrete entry type (flat
// list, tiled list, or any other domain refinement) must implement.
// It plays the role of the vtable the C++ original gets from virtual
// dispatch (spec §9 "Dynamic dispatch").
type Kind interface {
	// EnumerateDirectSublists appends the ids of sublists referenced
	// directly by this entry (excluding the entry itself) to out and
	// returns the result.
	EnumerateDirectSublists(c *Cache, out []idtypes.ID) []idtypes.ID

	// ObliviateChild is called after childID (a child of this entry)
	// has been discarded from the cache. The entry must clear any item
	// reference to childID; the child may be re-materialized later
	// under a new id.
	ObliviateChild(childID idtypes.ID)
}

// Entry is the cache metadata and aging-list linkage shared by every
// cached object, mirroring original_source's LRU::Entry /
// LRU::CacheMetaData / LRU::AgingListEntry trio collapsed into one
// struct (spec §3 "Entry"). Fields are only ever mutated by the owning
// Cache; callers read them through the accessor methods below.
type Entry struct {
	kind Kind

	id       idtypes.ID
	parent   idtypes.ID
	children int
	size     uint64
	pinned   bool

	createdAt time.Time
	lastUsed  time.Time

	// node is this entry's slot in the cache's aging list; nil iff the
	// entry is not currently in the cache.
	node *aging.Entry[*Entry]
}

// NewEntry wraps a domain-specific Kind in cache metadata, to become a
// child of parent (idtypes.Invalid for a new root). The entry is not
// yet part of any cache; pass it to Cache.Insert (directly, or via a
// tree manager's bless step) to assign it an id.
func NewEntry(kind Kind, parent idtypes.ID) *Entry {
	return &Entry{kind: kind, parent: parent}
}

// ID returns the entry's cache-assigned identifier, or idtypes.Invalid
// if the entry has not (or no longer) been inserted.
func (e *Entry) ID() idtypes.ID { return e.id }

// Parent returns the id of the entry's parent, or idtypes.Invalid for
// the root.
func (e *Entry) Parent() idtypes.ID { return e.parent }

// ChildCount returns the number of live entries whose parent is this
// entry.
func (e *Entry) ChildCount() int { return e.children }

// IsLeaf reports whether the entry currently has no children.
func (e *Entry) IsLeaf() bool { return e.children == 0 }

// Size returns the entry's accounted size.
func (e *Entry) Size() uint64 { return e.size }

// Pinned reports whether the entry is on the currently pinned path.
func (e *Entry) Pinned() bool { return e.pinned }

// Kind returns the domain-specific payload vtable for this entry.
func (e *Entry) Kind() Kind { return e.kind }

// Age returns how long it has been since the entry was last used, as
// of now.
func (e *Entry) Age(now time.Time) time.Duration { return now.Sub(e.lastUsed) }

// LastUsed returns the entry's last-use timestamp.
func (e *Entry) LastUsed() time.Time { return e.lastUsed }

// EqualAge reports whether e and other were last used at exactly the
// same instant — the guard USE relies on to treat re-use within the
// same tick as a no-op.
func (e *Entry) EqualAge(other *Entry) bool { return e.lastUsed.Equal(other.lastUsed) }

func (e *Entry) inCache() bool { return e.node != nil }
