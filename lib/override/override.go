// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package override implements the cacheability-override layer: a
// time-bounded promotion of nocache-bit entries (and their path to
// root) to cacheable, so a client that is actively viewing a
// nocache-tagged list doesn't have it evicted out from under it.
//
// Grounded on original_source/src/common/cacheable.{hh,cc}.
package override

import (
	"time"

	"go.listbroker.dev/listcache/lib/idtypes"
	"go.listbroker.dev/listcache/lib/lru"
)

// ExpiryTime is how long an override lives without being renewed.
const ExpiryTime = 3 * time.Minute

// Checker decides whether a list id is currently cacheable, and
// manages the override lifecycle. NoOverrides and WithOverrides are
// the two implementations, mirroring CheckNoOverrides/
// CheckWithOverrides.
type Checker interface {
	IsCacheable(id idtypes.ID) bool

	// PutOverride creates or renews an override for id, returning the
	// expiry duration and true, or false if id is not in the cache.
	PutOverride(id idtypes.ID) (time.Duration, bool)

	// RemoveOverride invalidates id's override, if any, firing its
	// expiry callback synchronously. Returns whether one existed.
	RemoveOverride(id idtypes.ID) bool

	HasOverrides() bool

	// ListInvalidate renames an override and its path-to-root
	// bookkeeping from id to replacement when a list gets reinserted
	// under a new id, or tears it down if replacement is invalid.
	ListInvalidate(id, replacement idtypes.ID)
}

// NoOverrides is the trivial Checker: an entry is cacheable iff its
// id is valid and lacks the nocache bit. Grounded on
// original_source's CheckNoOverrides.
type NoOverrides struct{}

func (NoOverrides) IsCacheable(id idtypes.ID) bool { return id.IsValid() && !id.Nocache() }

func (NoOverrides) PutOverride(idtypes.ID) (time.Duration, bool) { return 0, false }

func (NoOverrides) RemoveOverride(idtypes.ID) bool { return false }

func (NoOverrides) HasOverrides() bool { return false }

func (NoOverrides) ListInvalidate(idtypes.ID, idtypes.ID) {}

// override is one time-bounded promotion record.
//
// Grounded on original_source's Cacheable::Override.
type override struct {
	onPathToRoot map[idtypes.ID]struct{}
	expiredFn    func()

	invalidated bool
	startTime   time.Time
	timer       *time.Timer

	clock    lru.Clock
	expiryCh chan<- idtypes.ID
	id       idtypes.ID
}

func newOverride(id idtypes.ID, onPath map[idtypes.ID]struct{}, expiredFn func(), clock lru.Clock, expiryCh chan<- idtypes.ID) *override {
	return &override{
		onPathToRoot: onPath,
		expiredFn:    expiredFn,
		invalidated:  true, // not yet started; keepAlive flips this
		clock:        clock,
		expiryCh:     expiryCh,
		id:           id,
	}
}

func (o *override) isOnPathToOverride(id idtypes.ID) bool {
	_, ok := o.onPathToRoot[id]
	return ok
}

// keepAlive (re)starts the override's timer and returns the expiry
// duration. Grounded on Cacheable::Override::keep_alive.
func (o *override) keepAlive() time.Duration {
	o.stopTimer(false)
	o.startTime = o.clock.Now()
	o.invalidated = false
	o.timer = time.AfterFunc(ExpiryTime, func() {
		select {
		case o.expiryCh <- o.id:
		default:
		}
	})
	return ExpiryTime
}

// invalidate stops the timer and, unless already invalidated, fires
// the expiry callback synchronously. Grounded on
// Cacheable::Override::invalidate / do_invalidate(true).
func (o *override) invalidate() { o.stopTimer(true) }

func (o *override) stopTimer(mayCallExpiry bool) {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if !o.invalidated {
		o.invalidated = true
		if mayCallExpiry {
			o.expiredFn()
		}
	}
}

func (o *override) isTimeoutExceeded(now time.Time) bool {
	return now.Sub(o.startTime) >= ExpiryTime
}

func (o *override) listInvalidate(id, replacement idtypes.ID) {
	if _, ok := o.onPathToRoot[id]; ok {
		delete(o.onPathToRoot, id)
		o.onPathToRoot[replacement] = struct{}{}
	}
}

// WithOverrides is the Checker backed by a live lru.Cache.
//
// Grounded on original_source's Cacheable::CheckWithOverrides. The
// "cooperative single-threaded timer" the original gets for free from
// GLib's main loop is reproduced with a buffered channel: each
// override's *time.Timer only posts its id to expiryCh from its own
// goroutine. Everything else — Pump, which fires the callbacks of
// timed-out overrides, RemoveOverride, which fires one synchronously,
// and the lookups in IsCacheable — runs on the cache's owning goroutine.
type WithOverrides struct {
	cache     *lru.Cache
	clock     lru.Clock
	overrides map[idtypes.ID]*override
	expiryCh  chan idtypes.ID
}

// NewWithOverrides constructs a Checker over cache. clock should be
// the same clock the cache itself was given SetClock with.
func NewWithOverrides(cache *lru.Cache, clock lru.Clock) *WithOverrides {
	return &WithOverrides{
		cache:     cache,
		clock:     clock,
		overrides: make(map[idtypes.ID]*override),
		expiryCh:  make(chan idtypes.ID, 64),
	}
}

// Pump drains pending expiry notifications and fires each one whose
// override is invalidated or has genuinely timed out, discarding
// stale notifications superseded by a later PutOverride. Call this
// from the goroutine that owns the cache, whenever convenient (e.g.
// once per read-dispatch loop iteration).
func (c *WithOverrides) Pump() {
	for {
		select {
		case id := <-c.expiryCh:
			ovr, ok := c.overrides[id]
			if !ok {
				continue
			}
			now := c.clock.Now()
			if ovr.invalidated || ovr.isTimeoutExceeded(now) {
				ovr.expiredFn()
			}
		default:
			return
		}
	}
}

func (c *WithOverrides) expired(id idtypes.ID) {
	delete(c.overrides, id)
}

// PutOverride grounded on CheckWithOverrides::put_override. Renewing
// an id that already has a live override just restarts its timer —
// the path-to-root set captured at the override's original creation
// is not recomputed, matching the original's std::map::emplace
// not-overwriting-on-existing-key behavior.
func (c *WithOverrides) PutOverride(id idtypes.ID) (time.Duration, bool) {
	if existing, ok := c.overrides[id]; ok {
		return existing.keepAlive(), true
	}

	e := c.cache.Lookup(id)
	if e == nil {
		return 0, false
	}

	nodes := make(map[idtypes.ID]struct{})
	for cur := c.cache.Lookup(e.Parent()); cur != nil; cur = c.cache.Lookup(cur.Parent()) {
		if !cur.ID().Nocache() {
			break
		}
		nodes[cur.ID()] = struct{}{}
	}

	ovr := newOverride(id, nodes, func() { c.expired(id) }, c.clock, c.expiryCh)
	c.overrides[id] = ovr
	return ovr.keepAlive(), true
}

// RemoveOverride grounded on CheckWithOverrides::remove_override.
func (c *WithOverrides) RemoveOverride(id idtypes.ID) bool {
	ovr, ok := c.overrides[id]
	if !ok {
		return false
	}
	ovr.invalidate()
	return true
}

func (c *WithOverrides) HasOverrides() bool { return len(c.overrides) > 0 }

// IsCacheable grounded on CheckWithOverrides::is_cacheable.
func (c *WithOverrides) IsCacheable(id idtypes.ID) bool {
	if !id.IsValid() {
		return false
	}
	e := c.cache.Lookup(id)
	if e == nil {
		return false
	}
	if !id.Nocache() {
		return true
	}
	if len(c.overrides) == 0 {
		return false
	}

	for ovrID, ovr := range c.overrides {
		if ovrID == id {
			return true
		}
		if ovr.isOnPathToOverride(id) {
			return true
		}
	}

	for cur := c.cache.Lookup(e.Parent()); cur != nil; cur = c.cache.Lookup(cur.Parent()) {
		if ovr, ok := c.overrides[cur.ID()]; ok && !ovr.invalidated {
			return true
		}
	}

	return false
}

// ListInvalidate grounded on CheckWithOverrides::list_invalidate.
func (c *WithOverrides) ListInvalidate(id, replacement idtypes.ID) {
	if !id.IsValid() || len(c.overrides) == 0 {
		return
	}

	if replacement.IsValid() {
		if existing, ok := c.overrides[id]; ok && id != replacement {
			c.overrides[replacement] = existing
			delete(c.overrides, id)
		}
		for _, ovr := range c.overrides {
			ovr.listInvalidate(id, replacement)
		}
		return
	}

	// Invalidations for lists deeper in the tree arrive on their own
	// as those lists get invalidated in turn; nothing more to do here.
	c.RemoveOverride(id)
}
