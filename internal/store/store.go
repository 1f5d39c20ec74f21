// Package store provides JSON blob persistence for engine state.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("store: key not found")

// Store persists JSON-encoded state blobs.
type Store interface {
	// GetJSON loads the value at key into dest. Returns ErrNotFound when
	// the key does not exist.
	GetJSON(ctx context.Context, key string, dest interface{}) error
	// SetJSON marshals value and stores it at key.
	SetJSON(ctx context.Context, key string, value interface{}) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	Close() error
}

// Well-known state keys.
const (
	KeyPortfolio       = "argus:paper:portfolio"
	KeyAutoPilotConfig = "argus:autopilot:config"
	KeyWatchlist       = "argus:watchlist"
	KeyAlerts          = "argus:alerts"
	KeySettings        = "argus:settings"
)

// AlertsKey returns the per-symbol alert list key.
func AlertsKey(symbol string) string {
	return fmt.Sprintf("%s:%s", KeyAlerts, symbol)
}
