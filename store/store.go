package store

import (
	"context"

	"github.com/xraph/entitle/entitlement"
)

// Store is the storage interface a backend exposes to the engine and the
// binary: the record contract plus lifecycle methods.
type Store interface {
	entitlement.Store

	// Migrate creates the required tables, collections, or files.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
