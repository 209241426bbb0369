// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

// Limits defines the soft/hard watermarks for one limited resource
// (memory or entry count). low < high <= hard must hold; Validate
// checks this.
//
// Grounded on original_source/src/common/lru.hh's CacheLimits.
type Limits struct {
	Hard        uint64
	HighPermil  uint32 // soft watermark, as parts-per-thousand of Hard
	LowPermil   uint32 // eviction target, as parts-per-thousand of Hard
}

func permil(limit uint64, permil uint32) uint64 {
	return (limit*uint64(permil) + 500) / 1000
}

func (l Limits) high() uint64 { return permil(l.Hard, l.HighPermil) }
func (l Limits) low() uint64  { return permil(l.Hard, l.LowPermil) }

// Validate reports whether the limits are internally consistent.
func (l Limits) Validate() bool {
	if l.Hard == 0 || l.HighPermil > 1000 || l.LowPermil > 1000 {
		return false
	}
	return l.low() < l.high() && l.high() <= l.Hard
}

func (l Limits) exceedsSoft(v uint64) bool { return v > l.high() }
func (l Limits) exceedsHard(v uint64) bool { return v > l.Hard }
func (l Limits) isLowEnough(v uint64) bool { return v < l.low() }
