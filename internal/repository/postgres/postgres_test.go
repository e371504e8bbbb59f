package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/repotest"
)

// Runs only when CLINIC_TEST_POSTGRES_DSN points at a disposable database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CLINIC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLINIC_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))

	repotest.Run(t, func(t *testing.T) *repository.Store {
		_, err := db.ExecContext(ctx, `TRUNCATE prescriptions, consultations, appointments, notifications, outbox_events, principals CASCADE`)
		require.NoError(t, err)
		return NewStore(db)
	})
}
