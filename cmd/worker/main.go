// The worker binary picks up statements that were uploaded but never
// processed, for example after an API crash, and drives them through the
// pipeline. It polls the database rather than listening on HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/extract"
	"github.com/dvloznov/statement-engine/internal/filestore"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/jobs/inmemory"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/pipeline"
	"github.com/dvloznov/statement-engine/internal/store"
)

func main() {
	interval := flag.Duration("interval", 30*time.Second, "how often to scan for unprocessed statements")
	staleAfter := flag.Duration("stale-after", 30*time.Minute, "age at which a statement stuck in processing is marked failed; must exceed the extraction timeout")
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

	files := filestore.New(cfg.UploadDir)
	processor := pipeline.NewProcessor(st, st, st, files, extract.NewLineExtractor(), cfg.ExtractTimeout)

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore)

	handler := func(ctx context.Context, job jobs.Job) error {
		processJob, ok := job.(*jobs.ProcessStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", processJob.JobID).
			Str("statement_id", processJob.StatementID).
			Msg("Processing statement job")

		return processor.Process(ctx, processJob.StatementID)
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	if err := queue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	log.Info().Dur("interval", *interval).Msg("Worker service started")

	// Scan loop. Statements already claimed by another process lose the
	// ClaimProcessing race inside the pipeline and are skipped cleanly.
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		for {
			scan(ctx, st, queue, log)
			sweepStale(ctx, st, *staleAfter, log)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

func scan(ctx context.Context, st *store.Store, publisher jobs.Publisher, log zerolog.Logger) {
	statements, err := st.ListStatementsByStatus(ctx, domain.StatementStatusUploaded)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list uploaded statements")
		return
	}
	if len(statements) == 0 {
		return
	}

	log.Info().Int("count", len(statements)).Msg("Found unprocessed statements")

	for _, stmt := range statements {
		job := &jobs.ProcessStatementJob{
			StatementID: stmt.ID,
			Filename:    stmt.Filename,
		}
		if err := publisher.PublishProcessStatement(ctx, job); err != nil {
			log.Error().Err(err).Str("statement_id", stmt.ID).Msg("Failed to enqueue statement")
			return
		}
	}
}

// sweepStale fails statements stuck in processing, typically left behind by a
// crash mid-pipeline. Age is measured from upload time, so the threshold has
// to be generous relative to the extraction timeout or a slow but live
// attempt could be failed out from under its worker.
func sweepStale(ctx context.Context, st *store.Store, staleAfter time.Duration, log zerolog.Logger) {
	statements, err := st.ListStatementsByStatus(ctx, domain.StatementStatusProcessing)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list processing statements")
		return
	}

	cutoff := time.Now().Add(-staleAfter)
	for _, stmt := range statements {
		if stmt.CreatedAt.After(cutoff) {
			continue
		}
		if err := st.MarkFailed(ctx, stmt.ID, "processing was interrupted"); err != nil {
			log.Error().Err(err).Str("statement_id", stmt.ID).Msg("Failed to fail stale statement")
			continue
		}
		log.Warn().
			Str("statement_id", stmt.ID).
			Time("uploaded_at", stmt.CreatedAt).
			Msg("Stale processing statement marked failed")
	}
}
