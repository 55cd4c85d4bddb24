// The migrate binary applies the embedded schema migrations to a SQLite
// database and exits. The api and worker binaries migrate on startup anyway;
// this exists for provisioning a database ahead of a deploy.
package main

import (
	"flag"
	"fmt"

	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/store"
)

func main() {
	dbPath := flag.String("db", "statements.db", "path to the SQLite database file")
	flag.Parse()

	log := logger.New()

	if err := run(*dbPath); err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Migration failed")
	}

	log.Info().Str("db", *dbPath).Msg("Migrations applied")
}

func run(dbPath string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	return s.Migrate()
}
