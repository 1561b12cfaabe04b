package dbconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "p@ss")
	t.Setenv("DATABASE_URL", "")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "passingstone", cfg.Database)
	assert.Equal(t, "postgres://postgres:p%40ss@db:6543/passingstone?sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres@db:6543/passingstone", cfg.Redacted())

	t.Setenv("DATABASE_URL", "postgres://elsewhere/x")
	assert.Equal(t, "postgres://elsewhere/x", cfg.DSN())
}

func TestBadPortFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "abc")
	assert.Equal(t, 5432, NewConfigFromEnv().Port)
}
