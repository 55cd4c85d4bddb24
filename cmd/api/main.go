package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/dvloznov/statement-engine/internal/api/handlers"
	"github.com/dvloznov/statement-engine/internal/api/middleware"
	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/extract"
	"github.com/dvloznov/statement-engine/internal/filestore"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/jobs/inmemory"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/pipeline"
	"github.com/dvloznov/statement-engine/internal/reprocess"
	"github.com/dvloznov/statement-engine/internal/sched"
	"github.com/dvloznov/statement-engine/internal/store"
)

func main() {
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

	// Job infrastructure and the pipeline behind it
	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore)

	processor := pipeline.NewProcessor(st, st, st, files, extract.NewLineExtractor(), cfg.ExtractTimeout)

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		processJob, ok := job.(*jobs.ProcessStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", processJob.JobID).
			Str("statement_id", processJob.StatementID).
			Msg("Processing statement job")

		if err := processor.Process(ctx, processJob.StatementID); err != nil {
			log.Error().
				Err(err).
				Str("job_id", processJob.JobID).
				Str("statement_id", processJob.StatementID).
				Msg("Statement processing failed")
			return err
		}
		return nil
	}

	workerCtx, cancelWorkers := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorkers()

	go func() {
		log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job workers")
		if err := queue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	coordinator := reprocess.NewCoordinator(st, st, log)

	var scheduler *sched.Scheduler
	if cfg.ReprocessSchedule != "" {
		scheduler, err = sched.New(cfg.ReprocessSchedule, coordinator, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create reprocess scheduler")
		}
		scheduler.Start()
	}

	// Handlers and routes
	statementsHandler := handlers.NewStatementsHandler(st, files, queue, cfg.MaxUploadBytes(), log)
	transactionsHandler := handlers.NewTransactionsHandler(st, log)
	rulesHandler := handlers.NewRulesHandler(st, log)
	categoriesHandler := handlers.NewCategoriesHandler(st, log)
	reprocessHandler := handlers.NewReprocessHandler(coordinator, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/statements", statementsHandler.Upload).Methods(http.MethodPost)
	api.HandleFunc("/statements", statementsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/statements/{id}", statementsHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/transactions", transactionsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/rules", rulesHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/rules", rulesHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}", rulesHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/categories", categoriesHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/reprocess", reprocessHandler.Trigger).Methods(http.MethodPost)
	api.HandleFunc("/jobs", jobsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", jobsHandler.Get).Methods(http.MethodGet)
	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(r),
			),
		),
	)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
