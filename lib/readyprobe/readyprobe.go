// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package readyprobe is a composite readiness latch: a Group of Probes
// is ready iff every member Probe is ready, and watchers learn of a
// transition without polling.
//
// Grounded on original_source/src/common/{ready,readyprobe}.hh.
package readyprobe

import (
	"sync"
	"sync/atomic"
)

// Probe reports whether one readiness condition currently holds.
type Probe interface {
	IsReady() bool
}

// SimpleProbe is a Probe a caller flips directly, for conditions with
// no natural IsReady() of their own (original_source's SimpleProbe).
type SimpleProbe struct {
	ready atomic.Bool
	group *Group
}

func (p *SimpleProbe) IsReady() bool { return p.ready.Load() }

// SetReady marks the probe ready, notifying its Group's watchers if
// this is a transition from not-ready.
func (p *SimpleProbe) SetReady() {
	if !p.ready.Swap(true) && p.group != nil {
		p.group.recompute()
	}
}

// SetUnready marks the probe not ready, notifying its Group's watchers
// if this is a transition from ready.
func (p *SimpleProbe) SetUnready() {
	if p.ready.Swap(false) && p.group != nil {
		p.group.recompute()
	}
}

// Group aggregates a fixed set of Probes into one composite Probe:
// ready iff every member is ready. Safe for concurrent use.
//
// Grounded on original_source's Ready::Manager.
type Group struct {
	probes []Probe

	mu       sync.Mutex
	isReady  bool
	watchers []chan bool
}

// NewGroup wraps probes, which may be any Probe implementations, into a
// Group; NewSimpleProbe adds further probes to it afterwards.
func NewGroup(probes ...Probe) *Group {
	g := &Group{probes: probes}
	g.isReady = g.computeState()
	return g
}

// NewSimpleProbe creates a SimpleProbe that notifies g when it changes
// state, and appends it to g's member list. Must be called before g
// sees its first IsReady()/AddWatcher() call from another goroutine —
// mirrors original_source's probes being handed to the Manager
// constructor as a fixed vector.
func (g *Group) NewSimpleProbe() *SimpleProbe {
	p := &SimpleProbe{group: g}
	g.probes = append(g.probes, p)
	g.mu.Lock()
	g.isReady = g.computeState()
	g.mu.Unlock()
	return p
}

func (g *Group) computeState() bool {
	for _, p := range g.probes {
		if !p.IsReady() {
			return false
		}
	}
	return true
}

// IsReady reports whether every member probe is currently ready.
func (g *Group) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isReady
}

// Probe returns the idx'th member probe, or nil if idx is out of
// range.
func (g *Group) Probe(idx int) Probe {
	if idx < 0 || idx >= len(g.probes) {
		return nil
	}
	return g.probes[idx]
}

// AddWatcher registers a channel that receives the group's readiness
// state on every transition; the channel is buffered so a slow or
// absent reader can't block a probe's state change. If callNow is
// true, the current state is sent immediately (possibly before any
// subsequent transition), matching original_source's add_watcher
// call_watchers argument.
func (g *Group) AddWatcher(callNow bool) <-chan bool {
	ch := make(chan bool, 1)
	g.mu.Lock()
	g.watchers = append(g.watchers, ch)
	current := g.isReady
	g.mu.Unlock()

	if callNow {
		ch <- current
	}
	return ch
}

func (g *Group) recompute() {
	g.mu.Lock()
	next := g.computeState()
	if next == g.isReady {
		g.mu.Unlock()
		return
	}
	g.isReady = next
	watchers := g.watchers
	g.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- next:
		default:
			// Drop the stale pending value and retry; a watcher that
			// isn't keeping up only ever needs the latest state.
			select {
			case <-w:
			default:
			}
			select {
			case w <- next:
			default:
			}
		}
	}
}
