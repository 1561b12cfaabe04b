package main

import (
	"os"

	"github.com/ankianan/passingstone/go/internal/dbconfig"
	"github.com/ankianan/passingstone/go/internal/store/migrations"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := dbconfig.NewConfigFromEnv()
	log.Info().Str("database", cfg.Redacted()).Msg("applying migrations")

	if err := migrations.Migrate(cfg.DSN()); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
