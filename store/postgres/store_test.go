package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/postgres"
	"github.com/xraph/entitle/store/storetest"
)

// Runs against a live server only when ENTITLE_TEST_POSTGRES_DSN is set.
func TestStore(t *testing.T) {
	dsn := os.Getenv("ENTITLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENTITLE_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		schema := fmt.Sprintf("entitle_test_%d", time.Now().UnixNano())

		s, err := postgres.Connect(ctx, dsn, schema)
		require.NoError(t, err)
		t.Cleanup(func() {
			s.Pool().Exec(context.Background(), `DROP SCHEMA IF EXISTS `+schema+` CASCADE`) //nolint:errcheck // test cleanup
			s.Close()                                                                       //nolint:errcheck // test cleanup
		})
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
