package entitle

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

// Grant records that clientKey owns packID and persists the change.
//
// The bundle tag grants every catalog pack plus the subscription, the
// subscription tag grants only the subscription, and any other identifier
// is added as a pack. Identifiers outside the catalog are stored anyway,
// since the gateway decides what was paid for. Grant is idempotent and
// serialized per key.
//
// It returns (true, nil) once the record is persisted and (false, err)
// wrapping ErrPersistence when the store failed.
func (e *Engine) Grant(ctx context.Context, clientKey string, packID pack.ID) (bool, error) {
	if strings.TrimSpace(clientKey) == "" {
		return false, fmt.Errorf("%w: client key is required", ErrInvalidInput)
	}
	p := pack.Normalize(packID.String())
	if p == "" {
		return false, fmt.Errorf("%w: pack id is required", ErrInvalidInput)
	}
	if !e.resolver.Known(p) {
		e.logger.Warn("granting pack outside the catalog", "client_key", clientKey, "pack_id", p)
	}

	changed, err := e.applyGrant(ctx, clientKey, p)
	if err != nil {
		e.logger.Error("grant not persisted", "client_key", clientKey, "pack_id", p, "error", err)
		return false, err
	}

	e.invalidate(ctx, clientKey)
	e.plugins.EmitGrant(ctx, clientKey, p, changed)

	e.logger.Info("pack granted", "client_key", clientKey, "pack_id", p, "changed", changed)
	return true, nil
}

func (e *Engine) applyGrant(ctx context.Context, key string, p pack.ID) (bool, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	r, err := e.getForUpdate(ctx, key)
	if err != nil {
		return false, err
	}
	changed := entitlement.Apply(r, p, e.resolver.Catalog())
	r.LastUpdated = e.now()
	if err := e.saveRecord(ctx, key, r); err != nil {
		return false, err
	}
	return changed, nil
}
