// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the cache's tunables — its size limits, tile
// size, and worker count — from a YAML document, mirroring the
// option-struct-plus-defaults pattern a CLI's per-subcommand flags
// would use.
package config

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"go.listbroker.dev/listcache/lib/lru"
)

// Limits is the YAML-facing mirror of lru.Limits: a hard cap plus the
// high/low watermarks (parts-per-thousand of the hard cap) the
// pressure pass targets.
type Limits struct {
	Hard       uint64 `yaml:"hard"`
	HighPermil uint32 `yaml:"high_permil"`
	LowPermil  uint32 `yaml:"low_permil"`
}

func (l Limits) toLRU() lru.Limits {
	return lru.Limits{Hard: l.Hard, HighPermil: l.HighPermil, LowPermil: l.LowPermil}
}

// Duration is a time.Duration that unmarshals from a human-written
// string ("30m", "1h") rather than a bare integer, the same way every
// other duration in this module is written and read.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// Duration unwraps d to a plain time.Duration, for passing to APIs
// (like lru.NewCache) that don't know about the YAML-facing type.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: max_age: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds every tunable a running cache needs, as loaded from
// YAML (spec §2 "Configuration").
type Config struct {
	// MemoryLimits and CountLimits bound the cache by accounted byte
	// size and by entry count respectively; GC runs whenever either is
	// exceeded.
	MemoryLimits Limits `yaml:"memory_limits"`
	CountLimits  Limits `yaml:"count_limits"`

	// MaxAge is how long an entry may go unused before GC's age pass
	// discards it outright, regardless of pressure.
	MaxAge Duration `yaml:"max_age"`

	// TileSize is T, the fixed item capacity of every tile.
	TileSize int `yaml:"tile_size"`

	// Workers is N, the number of goroutines the filler worker pool
	// runs concurrently.
	Workers int `yaml:"workers"`
}

// Default ships the constants a cache runs with when a caller doesn't
// override them.
func Default() Config {
	return Config{
		MemoryLimits: Limits{Hard: 64 << 20, HighPermil: 900, LowPermil: 700},
		CountLimits:  Limits{Hard: 100_000, HighPermil: 900, LowPermil: 700},
		MaxAge:       Duration(30 * time.Minute),
		TileSize:     64,
		Workers:      4,
	}
}

// Load reads a YAML document from r, applying it over Default().
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first tunable that can't be turned into a
// working cache.
func (c Config) Validate() error {
	if !c.MemoryLimits.toLRU().Validate() {
		return fmt.Errorf("config: memory_limits: watermarks must satisfy low < high <= 1000 (permil), hard != 0")
	}
	if !c.CountLimits.toLRU().Validate() {
		return fmt.Errorf("config: count_limits: watermarks must satisfy low < high <= 1000 (permil), hard != 0")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("config: max_age must be positive")
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("config: tile_size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	return nil
}

// LRULimits returns the memory and count limits in lru.Cache's own
// type, in the (mem, count) order lru.NewCache expects.
func (c Config) LRULimits() (mem, count lru.Limits) {
	return c.MemoryLimits.toLRU(), c.CountLimits.toLRU()
}
