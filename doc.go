// Package entitle grants and verifies ownership of purchasable content packs
// and a subscription tier for anonymous clients identified by an opaque
// client key.
//
// Entitle is designed as a library, not a service. It keeps each client's
// persisted record consistent with asynchronous purchase confirmations from
// a payment gateway, and rebuilds the record from the gateway's transaction
// history when local state is missing. It provides:
//
//   - Idempotent grants with bundle and subscription expansion
//   - Authenticated webhook processing (Stripe built-in)
//   - Restore with store, cache, and gateway fallbacks
//   - Pluggable record stores (memory, JSON file, SQLite, PostgreSQL, MongoDB)
//   - In-process or Redis result caching
//   - Lifecycle hooks and metrics via plugins
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/entitle"
//	    "github.com/xraph/entitle/pack"
//	    stripegw "github.com/xraph/entitle/gateway/stripe"
//	    "github.com/xraph/entitle/store/sqlite"
//	)
//
//	store, err := sqlite.Open("entitle.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	resolver, err := pack.NewResolver(
//	    []pack.ID{"gamer", "date", "party"},
//	    map[pack.ID]string{"gamer": "price_123", pack.Bundle: "price_456"},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gw, err := stripegw.New(stripegw.Config{SecretKey: key, WebhookSecret: secret})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := entitle.New(store, resolver, entitle.WithGateway(gw))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// A pack identifier is one of the catalog's individual packs or one of two
// reserved tags. Granting pack.Bundle grants every catalog pack plus the
// subscription; granting pack.Subscription only turns the subscription on.
// Records remember a bundle grant, so packs added to the catalog later are
// owned too.
//
// Webhooks push grants:
//
//	err := e.HandleWebhook(ctx, body, r.Header.Get("Stripe-Signature"))
//	if entitle.IsAuthenticity(err) {
//	    // 400
//	}
//
// Restore pulls them back when a client reinstalls:
//
//	res := e.Restore(ctx, clientKey)
//	// res.Packs, res.SubscriptionActive
//
// # Failure Model
//
// Grants surface persistence failures. Restore never fails; gateway and
// store errors degrade to whatever was known locally, logged and reported
// through plugin.OnGatewayError. Webhooks surface only authentication and
// configuration failures so the gateway stops retrying events that were
// authentic.
//
// # Client Keys
//
// Clients may generate their own keys. Keys issued by the server use TypeID
// with the "ck" prefix:
//
//	ck_01h2xcejqtf2nbrexx3vqjhp41
package entitle
