package entitle

import (
	"context"

	"github.com/xraph/entitle/gateway"
	"github.com/xraph/entitle/pack"
)

// transactionPack works out which pack a transaction paid for: the
// pack_id metadata, else the first line item's price, fetching line items
// when the transaction arrived without them. ok is false when nothing
// resolves. A non-nil error means the line-item fetch failed and the
// transaction's pack is unknown rather than absent.
func (e *Engine) transactionPack(ctx context.Context, tx *gateway.Transaction) (p pack.ID, ok bool, err error) {
	if id := pack.Normalize(tx.Metadata[gateway.MetadataPackID]); id != "" {
		return id, true, nil
	}

	items := tx.LineItems
	if !tx.LineItemsExpanded {
		fetched, err := e.gateway.ListLineItems(ctx, tx.ID)
		if err != nil {
			e.gatewayFailed(ctx, "list_line_items", err)
			return "", false, err
		}
		items = fetched
	}
	if len(items) == 0 {
		return "", false, nil
	}
	p, ok = e.resolver.PriceToPackID(items[0].PriceID)
	return p, ok, nil
}

// belongsTo reports whether tx was made for clientKey.
func belongsTo(tx *gateway.Transaction, clientKey string) bool {
	return tx.Metadata[gateway.MetadataClientKey] == clientKey || tx.ClientReferenceID == clientKey
}
