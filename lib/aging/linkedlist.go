// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package aging implements the doubly-linked "aging list" primitive
// shared by the cache container: a list of live entries kept in
// non-increasing age order, with Oldest/Newest ends instead of the
// usual front/back, so that code using it reads the way the cache's
// eviction algorithm thinks about it.
//
// This generalizes the shape of a plain intrusive LinkedList[T],
// adding the InsertOlder/Join/CutFrom primitives the LRU cache's USE/
// INSERT-NEW/DISCARD-OLDEST algorithm needs that a plain LRU queue
// doesn't.
package aging

import "fmt"

// Entry is one node in a List[T]. The zero value is a detached node
// ready to be stored.
type Entry[T any] struct {
	list         *List[T]
	older, newer *Entry[T]
	Value        T
}

// Older returns the next entry toward the oldest end, or nil.
func (e *Entry[T]) Older() *Entry[T] { return e.older }

// Newer returns the next entry toward the newest end, or nil.
func (e *Entry[T]) Newer() *Entry[T] { return e.newer }

// InList reports whether the entry is currently linked into any list.
func (e *Entry[T]) InList() bool { return e.list != nil }

// List is a doubly-linked list ordered from Oldest to Newest.
//
// Compared to container/list.List, List[T] has fewer safety checks and
// a narrower feature set — it exists only to support the cache's aging
// algorithm (spec §4.2), which needs to splice a contiguous run of
// entries out of the middle of the list and re-append it, not just
// push/pop at the ends.
type List[T any] struct {
	oldest, newest *Entry[T]
}

// IsEmpty reports whether the list holds no entries.
func (l *List[T]) IsEmpty() bool { return l.oldest == nil }

// Oldest returns the oldest entry, or nil if the list is empty.
func (l *List[T]) Oldest() *Entry[T] { return l.oldest }

// Newest returns the newest entry, or nil if the list is empty.
func (l *List[T]) Newest() *Entry[T] { return l.newest }

// PushNewest appends entry at the newest end. It is invalid
// (runtime-panic) to push an entry that is already in a list.
func (l *List[T]) PushNewest(entry *Entry[T]) {
	if entry.list != nil {
		panic(fmt.Errorf("aging.List.PushNewest: entry %p is already in a list", entry))
	}
	entry.list = l
	entry.older = l.newest
	if l.newest != nil {
		l.newest.newer = entry
	} else {
		l.oldest = entry
	}
	l.newest = entry
}

// InsertOlder links entry immediately older than existing. It is
// invalid to call this with an entry already in a list, or with
// existing not in this list.
func (l *List[T]) InsertOlder(entry *Entry[T], existing *Entry[T]) {
	if entry.list != nil {
		panic(fmt.Errorf("aging.List.InsertOlder: entry %p is already in a list", entry))
	}
	if existing.list != l {
		panic(fmt.Errorf("aging.List.InsertOlder: existing %p not in list", existing))
	}
	entry.list = l
	entry.newer = existing
	entry.older = existing.older
	if existing.older != nil {
		existing.older.newer = entry
	} else {
		l.oldest = entry
	}
	existing.older = entry
}

// Delete unlinks entry from the list. The entry must not be reused
// until pushed again. It is invalid to delete an entry not in l.
func (l *List[T]) Delete(entry *Entry[T]) {
	if entry.list != l {
		panic(fmt.Errorf("aging.List.Delete: entry %p not in list", entry))
	}
	if entry.older != nil {
		entry.older.newer = entry.newer
	} else {
		l.oldest = entry.newer
	}
	if entry.newer != nil {
		entry.newer.older = entry.older
	} else {
		l.newest = entry.older
	}
	entry.list = nil
	entry.older = nil
	entry.newer = nil
}

// Join appends the whole of other onto the newest end of l. other is
// left empty. It is a no-op if other is empty.
func (l *List[T]) Join(other *List[T]) {
	if other.oldest == nil {
		return
	}
	for e := other.oldest; e != nil; e = e.Newer() {
		e.list = l
	}
	if l.newest != nil {
		l.newest.newer = other.oldest
		other.oldest.older = l.newest
	} else {
		l.oldest = other.oldest
	}
	l.newest = other.newest
	other.oldest, other.newest = nil, nil
}

// CutFrom splits l at entry (inclusive): everything from entry to the
// newest end is removed from l and returned as a new, detached List.
// entry must be non-nil and in l.
func (l *List[T]) CutFrom(entry *Entry[T]) *List[T] {
	if entry.list != l {
		panic(fmt.Errorf("aging.List.CutFrom: entry %p not in list", entry))
	}
	tail := &List[T]{oldest: entry, newest: l.newest}
	if entry.older != nil {
		entry.older.newer = nil
		l.newest = entry.older
	} else {
		l.oldest, l.newest = nil, nil
	}
	entry.older = nil
	for e := tail.oldest; e != nil; e = e.Newer() {
		e.list = tail
	}
	return tail
}
