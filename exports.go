package entitle

import (
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/pack"
)

// Re-export common types so callers rarely need the sub-packages.

// Record is re-exported from the entitlement package.
type Record = entitlement.Record

// Result is re-exported from the entitlement package.
type Result = entitlement.Result

// PackID is re-exported from the pack package.
type PackID = pack.ID

// Reserved pack tags.
const (
	Bundle       = pack.Bundle
	Subscription = pack.Subscription
)

// NewClientKey issues a server-generated client key.
func NewClientKey() string { return id.NewClientKey() }
