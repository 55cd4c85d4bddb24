// The seed binary loads the starter categories and categorization rules into
// an empty database. It is idempotent: a database that already has rules is
// left untouched.
package main

import (
	"context"
	"flag"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/store"
)

var seedCategories = []string{
	"Business Income",
	"Operating Expenses",
	"Technology Expenses",
	"Other",
}

var seedRules = []domain.Rule{
	{Keyword: "STRIPE", Category: "Business Income", Subcategory: "Payments", Priority: 10},
	{Keyword: "ANTHROPIC", Category: "Technology Expenses", Subcategory: "AI Services", Priority: 100},
	{Keyword: "OPENAI", Category: "Technology Expenses", Subcategory: "AI Services", Priority: 100},
	{Keyword: "AWS", Category: "Technology Expenses", Subcategory: "Cloud Services", Priority: 100},
	{Keyword: "SALARY", Category: "Operating Expenses", Subcategory: "Payroll", Priority: 100},
}

func main() {
	force := flag.Bool("force", false, "seed rules even when the database already has some")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ctx := context.Background()

	for _, name := range seedCategories {
		if _, err := st.EnsureCategory(ctx, name); err != nil {
			log.Fatal().Err(err).Str("category", name).Msg("Failed to seed category")
		}
	}
	log.Info().Int("count", len(seedCategories)).Msg("Categories seeded")

	count, err := st.CountRules(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count rules")
	}
	if count > 0 && !*force {
		log.Info().Int("existing", count).Msg("Rules already present, skipping (use -force to override)")
		return
	}

	for _, rule := range seedRules {
		created, err := st.CreateRule(ctx, rule)
		if err != nil {
			log.Fatal().Err(err).Str("keyword", rule.Keyword).Msg("Failed to seed rule")
		}
		log.Info().
			Int64("rule_id", created.ID).
			Str("keyword", created.Keyword).
			Str("category", created.Category).
			Msg("Rule seeded")
	}
}
