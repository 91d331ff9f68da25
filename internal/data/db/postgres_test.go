package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresConnString(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5433", User: "agg", Password: "p@ss", Name: "units"}
	require.Equal(t, "postgres://agg:p%40ss@db:5433/units?sslmode=disable", cfg.ConnString())

	cfg.DSN = "postgres://override"
	require.Equal(t, "postgres://override", cfg.ConnString())
}
