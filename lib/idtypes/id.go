// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package idtypes implements the packed list identifier used throughout
// the cache: a 32-bit handle combining a context, a "nocache" bit, and
// a raw per-context counter.
package idtypes

import "fmt"

// ID is an opaque handle assigned by the cache at insertion time. It
// is never a content hash and carries no meaning outside the process
// that assigned it.
//
// Bit layout, matching raw-id | nocache | context from most- to
// least-significant nibble isn't how the bits are packed; the layout
// is [context:4 | nocache:1 | raw:27], raw in the low bits so that
// scanning candidates is a simple increment.
type ID uint32

const (
	rawBits     = 27
	RawMask     ID = (1 << rawBits) - 1
	NocacheBit  ID = 1 << rawBits
	contextShift   = rawBits + 1
	ContextMask ID = 0xF << contextShift

	// ContextMin and ContextMax bound the context nibble; contexts
	// partition the raw-id space so independent subsystems (e.g. USB
	// vs. UPnP fillers) never collide.
	ContextMin = 0
	ContextMax = 15

	// RawMax is the largest representable raw id; raw == 0 is the
	// invalid-id sentinel and is never handed out.
	RawMax = uint32(RawMask)
)

// Invalid is the zero value and the reserved "no such entry" sentinel.
const Invalid ID = 0

// New packs a context, the nocache flag, and a raw (nonzero) id into a
// single handle. It panics if ctx is out of range or raw is zero or
// exceeds RawMax — both are programmer errors, never user input.
func New(ctx uint8, nocache bool, raw uint32) ID {
	if ctx > ContextMax {
		panic(fmt.Errorf("idtypes.New: context %d out of range [0,%d]", ctx, ContextMax))
	}
	if raw == 0 || raw > RawMax {
		panic(fmt.Errorf("idtypes.New: raw id %d out of range [1,%d]", raw, RawMax))
	}
	id := ID(raw) & RawMask
	if nocache {
		id |= NocacheBit
	}
	id |= ID(ctx) << contextShift
	return id
}

// IsValid reports whether id is anything other than the reserved
// zero/Invalid sentinel.
func (id ID) IsValid() bool {
	return id != Invalid
}

// Context returns the context nibble the id was created with.
func (id ID) Context() uint8 {
	return uint8((id & ContextMask) >> contextShift)
}

// Nocache reports whether the id's nocache bit is set: an entry so
// marked is discarded by gc unless pinned or covered by a cacheability
// override.
func (id ID) Nocache() bool {
	return id&NocacheBit != 0
}

// Raw returns the per-context counter portion of the id, with context
// and nocache bits stripped.
func (id ID) Raw() uint32 {
	return uint32(id & RawMask)
}

func (id ID) String() string {
	if !id.IsValid() {
		return "ID(invalid)"
	}
	nc := ""
	if id.Nocache() {
		nc = ",nocache"
	}
	return fmt.Sprintf("ID(ctx=%d,raw=%d%s)", id.Context(), id.Raw(), nc)
}
