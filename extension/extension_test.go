package extension

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{CacheTTL: time.Minute})
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, "/entitle", cfg.BasePath)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, time.Minute, cfg.CacheSweepInterval)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{
		BasePath: "/billing",
		CacheTTL: 2 * time.Minute,
		Catalog:  pack.Config{Packs: []string{"gamer"}},
	}
	programmatic := Config{
		DisableMigrate: true,
		BasePath:       "/ignored",
		CacheTTL:       time.Hour,
		PageSize:       25,
		SuccessURL:     "https://app.test/ok",
		Catalog:        pack.Config{Packs: []string{"date", "party"}},
	}

	got := mergeConfigurations(yamlCfg, programmatic)
	assert.True(t, got.DisableMigrate)
	assert.Equal(t, "/billing", got.BasePath)
	assert.Equal(t, 2*time.Minute, got.CacheTTL)
	assert.Equal(t, 25, got.PageSize)
	assert.Equal(t, "https://app.test/ok", got.SuccessURL)
	assert.Equal(t, []string{"gamer"}, got.Catalog.Packs)
	assert.Equal(t, 10*time.Second, got.GatewayTimeout)
}

func TestMergeConfigurationsKeepsProgrammaticCatalog(t *testing.T) {
	got := mergeConfigurations(Config{}, Config{Catalog: pack.Config{Packs: []string{"date"}}})
	assert.Equal(t, []string{"date"}, got.Catalog.Packs)
}

func TestInitBuildsEngineFromCatalog(t *testing.T) {
	s := memory.New()
	e := New(
		WithStore(s),
		WithConfig(Config{Catalog: pack.Config{
			Packs:  []string{"gamer", "date"},
			Prices: map[string]string{"gamer": "price_gamer"},
		}}),
	)
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.buildEngine())
	require.NotNil(t, e.Engine())

	assert.Equal(t, []pack.ID{"date", "gamer"}, e.Engine().Resolver().Catalog())

	_, err := e.Engine().Grant(context.Background(), "ck_1", "gamer")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.NoError(t, e.Health(context.Background()))
}

func TestInitRejectsInvalidCatalog(t *testing.T) {
	e := New(WithConfig(Config{Catalog: pack.Config{Packs: []string{"bundle"}}}))
	assert.Error(t, e.buildEngine())
}

func TestHandlerMountsBasePath(t *testing.T) {
	e := New(WithBasePath("/shop"))
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.buildEngine())

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shop/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
