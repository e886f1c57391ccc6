package cli

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/config"
	"github.com/roach88/chronicle/internal/store/pgstore"
)

func TestOpenStore_PostgresMigratesOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	prev := openPostgres
	openPostgres = func(ctx context.Context, dsn string) (*pgstore.Store, error) {
		assert.Equal(t, "postgres://localhost/chronicle", dsn)
		return pgstore.OpenDB(ctx, db)
	}
	t.Cleanup(func() { openPostgres = prev })

	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverPostgres, DSN: "postgres://localhost/chronicle"}

	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "mysql"

	_, err := openStore(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}
