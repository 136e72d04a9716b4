package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	req := require.New(t)

	unique := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})
	foreignKey := &pgconn.PgError{Code: "23503"}

	req.True(IsUniqueViolation(unique))
	req.False(IsForeignKeyViolation(unique))
	req.True(IsForeignKeyViolation(foreignKey))
	req.False(IsUniqueViolation(errors.New("23505")))
	req.True(IsNotFound(fmt.Errorf("get user: %w", pgx.ErrNoRows)))
	req.False(IsNotFound(nil))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	req := require.New(t)

	entries, err := embedMigrations.ReadDir("migrations")

	req.NoError(err)
	req.NotEmpty(entries)
	req.Equal("00001_init.sql", entries[0].Name())
}
