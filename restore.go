package entitle

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/plugin"
)

// Restore answers "what does clientKey own?", rebuilding the record from
// the gateway's transaction history when nothing is known locally.
//
// The store is consulted first, then the cache, then the gateway. Gateway
// results are folded with the same rules as Grant, merged into the store
// when non-empty, and cached unless a gateway call failed. Restore never
// fails: an absent key or an unreachable gateway yields an empty result.
func (e *Engine) Restore(ctx context.Context, clientKey string) entitlement.Result {
	if strings.TrimSpace(clientKey) == "" {
		return entitlement.EmptyResult()
	}
	catalog := e.resolver.Catalog()

	r, err := e.store.Get(ctx, clientKey)
	switch {
	case err == nil && !r.IsEmpty():
		res := r.Result(catalog)
		e.plugins.EmitRestore(ctx, clientKey, res, plugin.SourceStore)
		return res
	case err != nil && !errors.Is(err, entitlement.ErrNotFound):
		e.logger.Error("entitlement store read failed, continuing without it",
			"client_key", clientKey, "error", err)
	}

	entry, err := e.cache.GetCached(ctx, clientKey)
	if err == nil {
		e.plugins.EmitRestore(ctx, clientKey, entry.Result, plugin.SourceCache)
		return entry.Result
	}
	if !errors.Is(err, entitlement.ErrCacheMiss) {
		e.logger.Warn("cache read failed", "client_key", clientKey, "error", err)
	}

	v, _, _ := e.flight.Do(clientKey, func() (any, error) {
		return e.reconcile(ctx, clientKey), nil
	})
	out := v.(reconciled)

	// Callers of a shared flight each get their own slice.
	res := entitlement.Result{
		Packs:              append([]pack.ID{}, out.result.Packs...),
		SubscriptionActive: out.result.SubscriptionActive,
	}
	e.plugins.EmitRestore(ctx, clientKey, res, out.source)
	return res
}

type reconciled struct {
	result entitlement.Result
	source plugin.RestoreSource
}

// reconcile rebuilds clientKey's entitlements from completed transactions.
//
// The pass may be shared by several Restore callers, so writes run on a
// context detached from the first caller's cancellation. A pass that hit
// any gateway failure is never cached; packs it did resolve are still
// merged into the store.
func (e *Engine) reconcile(ctx context.Context, clientKey string) reconciled {
	none := reconciled{result: entitlement.EmptyResult(), source: plugin.SourceNone}
	if e.gateway == nil {
		e.logger.Debug("no gateway configured, skipping reconciliation", "client_key", clientKey)
		return none
	}

	wctx := context.WithoutCancel(ctx)
	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()

	txs, err := e.gateway.ListCompletedTransactions(gctx, e.pageSize)
	if err != nil {
		e.gatewayFailed(wctx, "list_transactions", err)
		return none
	}

	catalog := e.resolver.Catalog()
	found := &entitlement.Record{}
	partial := false
	for i := range txs {
		tx := &txs[i]
		if !belongsTo(tx, clientKey) {
			continue
		}
		p, ok, err := e.transactionPack(gctx, tx)
		if err != nil {
			partial = true
			continue
		}
		if !ok {
			e.logger.Warn("transaction pack unresolved, skipping",
				"client_key", clientKey, "transaction_id", tx.ID)
			continue
		}
		entitlement.Apply(found, p, catalog)
	}

	if found.IsEmpty() {
		if partial {
			return none
		}
		res := entitlement.EmptyResult()
		e.setCached(wctx, clientKey, res)
		return reconciled{result: res, source: plugin.SourceGateway}
	}

	found.LastUpdated = e.now()
	res := found.Result(catalog)
	if merged, err := e.mergeRecord(wctx, clientKey, found); err != nil {
		e.logger.Error("restored entitlements not persisted", "client_key", clientKey, "error", err)
	} else {
		res = merged.Result(catalog)
	}
	if partial {
		e.logger.Warn("gateway failed mid-restore, result not cached", "client_key", clientKey)
	} else {
		e.setCached(wctx, clientKey, res)
	}

	e.logger.Info("entitlements restored from gateway",
		"client_key", clientKey,
		"packs", len(res.Packs),
		"subscription_active", res.SubscriptionActive,
	)
	return reconciled{result: res, source: plugin.SourceGateway}
}
