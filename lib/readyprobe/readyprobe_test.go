// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package readyprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleProbeUnreadyByDefault(t *testing.T) {
	p := &SimpleProbe{}
	assert.False(t, p.IsReady())
}

func TestGroupUnreadyByDefault(t *testing.T) {
	g := NewGroup()
	p1 := g.NewSimpleProbe()
	p2 := g.NewSimpleProbe()
	assert.False(t, g.IsReady())
	assert.False(t, p1.IsReady())
	assert.False(t, p2.IsReady())
}

func TestGroupUnreadyIfOnlySingleProbeIsReady(t *testing.T) {
	g := NewGroup()
	p1 := g.NewSimpleProbe()
	p2 := g.NewSimpleProbe()

	p1.SetReady()
	assert.False(t, g.IsReady())

	p1.SetUnready()
	p2.SetReady()
	assert.False(t, g.IsReady())
}

func TestGroupReadyIfAllProbesAreReady(t *testing.T) {
	g := NewGroup()
	p1 := g.NewSimpleProbe()
	p2 := g.NewSimpleProbe()

	p1.SetReady()
	assert.False(t, g.IsReady())

	p2.SetReady()
	assert.True(t, g.IsReady())
}

func TestGroupWatcherFiresOnlyOnActualTransitions(t *testing.T) {
	g := NewGroup()
	p1 := g.NewSimpleProbe()
	p2 := g.NewSimpleProbe()
	watcher := g.AddWatcher(false)

	select {
	case v := <-watcher:
		t.Fatalf("watcher fired before any transition: %v", v)
	default:
	}

	p1.SetReady()
	select {
	case v := <-watcher:
		t.Fatalf("watcher fired on a partial transition: %v", v)
	default:
	}

	p2.SetReady()
	require.True(t, <-watcher)

	// Redundant sets are not transitions; the watcher stays quiet.
	p1.SetReady()
	p2.SetReady()
	select {
	case v := <-watcher:
		t.Fatalf("watcher fired on a redundant set: %v", v)
	default:
	}

	p1.SetUnready()
	require.False(t, <-watcher)

	p2.SetUnready()
	p2.SetReady()
	select {
	case v := <-watcher:
		t.Fatalf("watcher fired while still unready overall: %v", v)
	default:
	}

	p1.SetReady()
	require.True(t, <-watcher)
}

func TestGroupReportsCurrentStateOnRegistrationIfRequested(t *testing.T) {
	g := NewGroup()
	p1 := g.NewSimpleProbe()
	p2 := g.NewSimpleProbe()

	unreadyWatcher := g.AddWatcher(true)
	assert.False(t, <-unreadyWatcher)

	p1.SetReady()
	p2.SetReady()

	readyWatcher := g.AddWatcher(true)
	assert.True(t, <-readyWatcher)
}

func TestGroupProbeByIndex(t *testing.T) {
	g := NewGroup()
	p1 := g.NewSimpleProbe()
	p2 := g.NewSimpleProbe()

	assert.Same(t, p1, g.Probe(0))
	assert.Same(t, p2, g.Probe(1))
	assert.Nil(t, g.Probe(2))
}
