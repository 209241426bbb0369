// Copyright (C) 2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lru

// ErrKind is the error taxonomy surfaced at the cache/tree-manager
// boundary (spec §7). It implements error so call sites can compare
// with errors.Is against the exported sentinels below, or switch on
// the ErrKind value itself (e.g. to decide whether to log at
// bug-level).
type ErrKind int

const (
	// Ok is the zero value: no error.
	Ok ErrKind = iota
	// Interrupted means a continuation predicate reported cancellation.
	Interrupted
	// InvalidID means an id was invalid or out of range; a client
	// error, never logged as a bug.
	InvalidID
	// Internal means the code reached a state thought impossible;
	// always logged at bug level by the caller.
	Internal
	// Protocol, Empty, PermissionDenied, NotSupported, Busy, NetIO and
	// NotFound originate in filler implementations and are carried in
	// a tile's error slot until a reader observes them.
	Protocol
	Empty
	PermissionDenied
	NotSupported
	Busy
	NetIO
	NotFound
)

var errNames = map[ErrKind]string{
	Ok:                "ok",
	Interrupted:       "interrupted",
	InvalidID:         "invalid id",
	Internal:          "internal error",
	Protocol:          "protocol error",
	Empty:             "empty",
	PermissionDenied:  "permission denied",
	NotSupported:      "not supported",
	Busy:              "busy",
	NetIO:             "network I/O error",
	NotFound:          "not found",
}

func (e ErrKind) Error() string {
	if name, ok := errNames[e]; ok {
		return name
	}
	return "unknown error"
}

// IsBug reports whether e represents an invariant violation that
// should be logged at bug/critical level rather than treated as an
// ordinary client or transport error (spec §7 policy table).
func (e ErrKind) IsBug() bool {
	return e == Internal
}
