package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapPostgresError(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))

	plain := errors.New("boom")
	require.Equal(t, plain, mapPostgresError(plain))

	tests := []struct {
		name     string
		code     string
		contains string
	}{
		{name: "unique violation", code: pgerrcode.UniqueViolation, contains: "duplicate session"},
		{name: "connection failure", code: pgerrcode.ConnectionFailure, contains: "database connection error"},
		{name: "admin shutdown", code: pgerrcode.AdminShutdown, contains: "database server unavailable"},
		{name: "query canceled", code: pgerrcode.QueryCanceled, contains: "query canceled"},
		{name: "too many connections", code: pgerrcode.TooManyConnections, contains: "database resource limit"},
		{name: "other", code: pgerrcode.SyntaxError, contains: "postgres error [42601]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, Message: "msg", ConstraintName: "sessions_pkey"}

			err := mapPostgresError(pgErr)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.contains)
		})
	}

	require.ErrorIs(t, mapPostgresError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}), ErrDuplicateSession)
}

func TestPoolConfig_Defaults(t *testing.T) {
	cfg := &PoolConfig{ConnString: "postgres://localhost/readpilot"}
	cfg.ApplyDefaults()

	require.Equal(t, int32(10), cfg.MaxConns)
	require.Equal(t, int32(1), cfg.MinConns)
	require.NoError(t, cfg.Validate())

	require.Error(t, (&PoolConfig{}).Validate())
	require.Error(t, (&PoolConfig{ConnString: "x", MinConns: 5, MaxConns: 2}).Validate())
}
