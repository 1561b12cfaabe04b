package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ankianan/passingstone/go/internal/dbconfig"
	"github.com/ankianan/passingstone/go/internal/store/migrations"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func setupDatabase(ctx context.Context, dbConfig dbconfig.Config) (*sql.DB, error) {
	if err := migrations.Migrate(dbConfig.DSN()); err != nil {
		return nil, err
	}

	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("database", dbConfig.Redacted()).Msg("connected to database")
	return database, nil
}
