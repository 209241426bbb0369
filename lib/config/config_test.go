// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadEmptyDocumentReturnsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesSelectedFields(t *testing.T) {
	doc := `
tile_size: 32
workers: 8
max_age: 10m
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.TileSize)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, Duration(10*time.Minute), cfg.MaxAge)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().MemoryLimits, cfg.MemoryLimits)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	_, err := Load(strings.NewReader("max_age: not-a-duration\n"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("bogus_field: 1\n"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	doc := `
memory_limits:
  hard: 0
  high_permil: 900
  low_permil: 700
`
	_, err := Load(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestLRULimitsRoundTrip(t *testing.T) {
	cfg := Default()
	mem, count := cfg.LRULimits()
	assert.Equal(t, cfg.MemoryLimits.Hard, mem.Hard)
	assert.Equal(t, cfg.CountLimits.Hard, count.Hard)
}
