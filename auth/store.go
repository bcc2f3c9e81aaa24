// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"time"
)

// RevocationStore records revoked token IDs until the tokens they belong to
// would have expired anyway.
type RevocationStore interface {
	// Add marks tokenID as revoked for ttl. A non-positive ttl is a no-op.
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	// Exists reports whether tokenID is currently revoked.
	Exists(ctx context.Context, tokenID string) (bool, error)
	// Available reports whether the store's primary backend is usable.
	Available() bool
}

// State of a store's backend connection.
type State int32

const (
	Connecting State = iota
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
