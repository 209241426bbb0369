// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.listbroker.dev/listcache/lib/idtypes"
)

func TestDumpEmptyCacheIsNil(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Nil(t, c.Dump(idtypes.Invalid))
}

func TestDumpUnknownIDIsNil(t *testing.T) {
	c, clk := newTestCache(t)
	insertRoot(t, c, 1, clk)
	assert.Nil(t, c.Dump(idtypes.New(0, false, 99)))
}

func TestDumpNestsChildrenUnderParent(t *testing.T) {
	c, clk := newTestCache(t)
	rootID := insertRoot(t, c, 1, clk)
	childA := insertChild(t, c, rootID, 2, clk)
	childB := insertChild(t, c, rootID, 3, clk)
	grandchild := insertChild(t, c, childA, 4, clk)

	tree := c.Dump(idtypes.Invalid)
	require.NotNil(t, tree)
	assert.Equal(t, rootID, tree.ID)
	require.Len(t, tree.Children, 2)

	var a, b *DumpEntry
	for _, child := range tree.Children {
		switch child.ID {
		case childA:
			a = child
		case childB:
			b = child
		}
	}
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.Len(t, a.Children, 1)
	assert.Equal(t, grandchild, a.Children[0].ID)
	assert.Empty(t, b.Children)
}

func TestDumpDefaultsToCacheRoot(t *testing.T) {
	c, clk := newTestCache(t)
	rootID := insertRoot(t, c, 1, clk)
	insertChild(t, c, rootID, 2, clk)

	whole := c.Dump(idtypes.Invalid)
	fromRoot := c.Dump(rootID)
	require.NotNil(t, whole)
	require.NotNil(t, fromRoot)
	assert.Equal(t, whole.ID, fromRoot.ID)
	assert.Len(t, whole.Children, len(fromRoot.Children))
}

func TestDumpSubtreeExcludesSiblings(t *testing.T) {
	c, clk := newTestCache(t)
	rootID := insertRoot(t, c, 1, clk)
	childA := insertChild(t, c, rootID, 2, clk)
	insertChild(t, c, rootID, 3, clk)
	grandchild := insertChild(t, c, childA, 4, clk)

	sub := c.Dump(childA)
	require.NotNil(t, sub)
	assert.Equal(t, childA, sub.ID)
	require.Len(t, sub.Children, 1)
	assert.Equal(t, grandchild, sub.Children[0].ID)
}
