// The cli binary is an operator tool for working with a statement database
// directly, without running the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/extract"
	"github.com/dvloznov/statement-engine/internal/filestore"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/pipeline"
	"github.com/dvloznov/statement-engine/internal/reprocess"
	"github.com/dvloznov/statement-engine/internal/store"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "inspect":
		runInspect(log)
	case "rules":
		runRules(log)
	case "reprocess":
		runReprocess(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Engine CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest     Ingest a local statement file synchronously")
	fmt.Println("  inspect    Inspect a statement and its transactions")
	fmt.Println("  rules      List categorization rules")
	fmt.Println("  reprocess  Recategorize every stored transaction")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openStore(log zerolog.Logger) (config.Config, *store.Store) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	return cfg, st
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	filePath := fs.String("file", "", "path to the statement file")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement file")
	}

	cfg, st := openStore(log)
	defer st.Close()

	files := filestore.New(cfg.UploadDir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	statementID := uuid.NewString()
	if _, err := files.Save(statementID, data); err != nil {
		log.Fatal().Err(err).Msg("Failed to store upload")
	}
	if _, err := st.CreateStatement(ctx, statementID, filepath.Base(*filePath)); err != nil {
		log.Fatal().Err(err).Msg("Failed to create statement")
	}

	processor := pipeline.NewProcessor(st, st, st, files, extract.NewLineExtractor(), cfg.ExtractTimeout)
	if err := processor.Process(ctx, statementID); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	stmt, err := st.GetStatement(ctx, statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read back statement")
	}

	fmt.Printf("Statement %s: %s", stmt.ID, stmt.Status)
	if stmt.Error != "" {
		fmt.Printf(" (%s)", stmt.Error)
	}
	fmt.Printf(", %d transactions\n", stmt.TransactionsCount)
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	statementID := fs.String("statement-id", "", "statement ID to inspect")
	fs.Parse(os.Args[2:])

	if *statementID == "" {
		log.Fatal().Msg("Error: --statement-id is required")
	}

	_, st := openStore(log)
	defer st.Close()

	ctx := context.Background()

	stmt, err := st.GetStatement(ctx, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Statement not found")
	}

	fmt.Println("\n=== Statement Details ===")
	fmt.Printf("ID:           %s\n", stmt.ID)
	fmt.Printf("Filename:     %s\n", stmt.Filename)
	fmt.Printf("Status:       %s\n", stmt.Status)
	fmt.Printf("Transactions: %d\n", stmt.TransactionsCount)
	fmt.Printf("Created:      %s\n", stmt.CreatedAt.Format(time.RFC3339))
	if stmt.Error != "" {
		fmt.Printf("Error:        %s\n", stmt.Error)
	}

	txns, err := st.ListTransactionsByStatement(ctx, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txns))
	for _, tx := range txns {
		date := "----------"
		if !tx.TxnDate.IsZero() {
			date = tx.TxnDate.Format("2006-01-02")
		}
		category := "(uncategorized)"
		if tx.Category != nil {
			category = *tx.Category
			if tx.Subcategory != nil {
				category += " / " + *tx.Subcategory
			}
		}
		fmt.Printf("%s  %10s  %-40s  %s\n", date, tx.Amount.StringFixed(2), tx.Description, category)
	}
}

func runRules(log zerolog.Logger) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	activeOnly := fs.Bool("active", false, "show only active rules")
	fs.Parse(os.Args[2:])

	_, st := openStore(log)
	defer st.Close()

	ctx := context.Background()

	var (
		rules []domain.Rule
		err   error
	)
	if *activeOnly {
		rules, err = st.ListActiveRules(ctx)
	} else {
		rules, err = st.ListRules(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list rules")
	}

	fmt.Printf("=== Rules (%d) ===\n", len(rules))
	for _, r := range rules {
		fmt.Printf("%4d  p%-4d %-8s  %-20s  %s", r.ID, r.Priority, r.Status, r.Keyword, r.Category)
		if r.Subcategory != "" {
			fmt.Printf(" / %s", r.Subcategory)
		}
		fmt.Println()
	}
}

func runReprocess(log zerolog.Logger) {
	fs := flag.NewFlagSet("reprocess", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	_, st := openStore(log)
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	coordinator := reprocess.NewCoordinator(st, st, log)
	result, err := coordinator.ReprocessAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Reprocess failed")
	}

	fmt.Printf("Reprocessed %d transactions, %d updated, in %s\n", result.Total, result.Updated, result.Duration)
}
