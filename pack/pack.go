// Package pack defines content-pack identifiers and the resolver that maps
// gateway price identifiers to packs and back.
package pack

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ID identifies a purchasable content pack, or one of the reserved tags.
type ID string

// Reserved identifiers.
const (
	// Bundle means "all individual packs". It is expanded at grant time and
	// never stored on a record.
	Bundle ID = "bundle"

	// Subscription means the recurring access tier.
	Subscription ID = "subscription"
)

// ErrInvalidMapping is returned when a catalog or price table is malformed.
var ErrInvalidMapping = errors.New("pack: invalid price mapping")

// String returns the identifier as a string.
func (p ID) String() string { return string(p) }

// IsReserved reports whether p is the bundle or subscription tag.
func (p ID) IsReserved() bool { return p == Bundle || p == Subscription }

// Normalize trims surrounding whitespace and lowercases the identifier.
func Normalize(s string) ID {
	return ID(strings.ToLower(strings.TrimSpace(s)))
}

// Resolver maps gateway price identifiers to packs and back.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	catalog     []ID
	individual  map[ID]struct{}
	priceToPack map[string]ID
	packToPrice map[ID]string
}

// NewResolver builds a resolver from the individual pack catalog and a
// pack -> price table. Prices may also be given for the reserved tags.
// The price table must be injective: one price per pack, one pack per price.
func NewResolver(catalog []ID, prices map[ID]string) (*Resolver, error) {
	r := &Resolver{
		individual:  make(map[ID]struct{}, len(catalog)),
		priceToPack: make(map[string]ID, len(prices)),
		packToPrice: make(map[ID]string, len(prices)),
	}

	for _, raw := range catalog {
		p := Normalize(string(raw))
		if p == "" {
			return nil, fmt.Errorf("%w: empty pack identifier in catalog", ErrInvalidMapping)
		}
		if p.IsReserved() {
			return nil, fmt.Errorf("%w: reserved tag %q listed as an individual pack", ErrInvalidMapping, p)
		}
		if _, dup := r.individual[p]; dup {
			return nil, fmt.Errorf("%w: duplicate pack %q", ErrInvalidMapping, p)
		}
		r.individual[p] = struct{}{}
		r.catalog = append(r.catalog, p)
	}
	sort.Slice(r.catalog, func(i, j int) bool { return r.catalog[i] < r.catalog[j] })

	for rawPack, rawPrice := range prices {
		p := Normalize(string(rawPack))
		price := strings.TrimSpace(rawPrice)
		if p == "" || price == "" {
			return nil, fmt.Errorf("%w: empty entry %q -> %q", ErrInvalidMapping, rawPack, rawPrice)
		}
		if _, known := r.individual[p]; !known && !p.IsReserved() {
			return nil, fmt.Errorf("%w: price %q maps to unknown pack %q", ErrInvalidMapping, price, p)
		}
		if _, dup := r.packToPrice[p]; dup {
			return nil, fmt.Errorf("%w: pack %q has more than one price", ErrInvalidMapping, p)
		}
		if other, dup := r.priceToPack[price]; dup {
			return nil, fmt.Errorf("%w: price %q used by both %q and %q", ErrInvalidMapping, price, other, p)
		}
		r.priceToPack[price] = p
		r.packToPrice[p] = price
	}

	return r, nil
}

// PriceToPackID returns the pack bought with the given gateway price.
func (r *Resolver) PriceToPackID(priceID string) (ID, bool) {
	p, ok := r.priceToPack[strings.TrimSpace(priceID)]
	return p, ok
}

// PackIDToPrice returns the gateway price used to sell the pack.
func (r *Resolver) PackIDToPrice(p ID) (string, bool) {
	price, ok := r.packToPrice[p]
	return price, ok
}

// Catalog returns the individual packs in ascending order.
// The returned slice is a copy.
func (r *Resolver) Catalog() []ID {
	out := make([]ID, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// IsIndividual reports whether p is a non-reserved pack in the catalog.
func (r *Resolver) IsIndividual(p ID) bool {
	_, ok := r.individual[p]
	return ok
}

// Known reports whether p is either an individual pack or a reserved tag.
func (r *Resolver) Known(p ID) bool {
	return p.IsReserved() || r.IsIndividual(p)
}
