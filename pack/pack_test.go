package pack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolver(t *testing.T) {
	r, err := NewResolver(
		[]ID{"gamer", "Date ", "party"},
		map[ID]string{
			"gamer":      "price_gamer",
			"date":       "price_date",
			Bundle:       "price_bundle",
			Subscription: "price_sub",
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []ID{"date", "gamer", "party"}, r.Catalog())

	p, ok := r.PriceToPackID("price_date")
	assert.True(t, ok)
	assert.Equal(t, ID("date"), p)

	p, ok = r.PriceToPackID("price_bundle")
	assert.True(t, ok)
	assert.Equal(t, Bundle, p)

	_, ok = r.PriceToPackID("price_unknown")
	assert.False(t, ok)

	price, ok := r.PackIDToPrice(Subscription)
	assert.True(t, ok)
	assert.Equal(t, "price_sub", price)

	_, ok = r.PackIDToPrice("party")
	assert.False(t, ok, "party has no price configured")

	assert.True(t, r.IsIndividual("gamer"))
	assert.False(t, r.IsIndividual(Bundle))
	assert.True(t, r.Known(Subscription))
	assert.False(t, r.Known("unknown"))
}

func TestNewResolverRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name    string
		catalog []ID
		prices  map[ID]string
	}{
		{"empty pack", []ID{"gamer", " "}, nil},
		{"reserved in catalog", []ID{"gamer", Bundle}, nil},
		{"duplicate pack", []ID{"gamer", "GAMER"}, nil},
		{"unknown priced pack", []ID{"gamer"}, map[ID]string{"date": "price_date"}},
		{"shared price", []ID{"gamer", "date"}, map[ID]string{"gamer": "price_x", "date": "price_x"}},
		{"empty price", []ID{"gamer"}, map[ID]string{"gamer": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.catalog, tt.prices)
			require.ErrorIs(t, err, ErrInvalidMapping)
		})
	}
}

func TestCatalogIsACopy(t *testing.T) {
	r, err := NewResolver([]ID{"gamer", "date"}, nil)
	require.NoError(t, err)

	c := r.Catalog()
	c[0] = "mutated"
	assert.Equal(t, []ID{"date", "gamer"}, r.Catalog())
}

func TestParseConfig(t *testing.T) {
	src := `
packs: [gamer, date]
prices:
  gamer: price_gamer
  subscription: price_sub
`
	cfg, err := ParseConfig(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"gamer", "date"}, cfg.Packs)

	r, err := cfg.Resolver()
	require.NoError(t, err)
	p, ok := r.PriceToPackID("price_sub")
	assert.True(t, ok)
	assert.Equal(t, Subscription, p)
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("packs: [gamer]\nbundles: [x]\n"))
	require.Error(t, err)
}
