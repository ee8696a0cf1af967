package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/ridelake/internal/api"
	"github.com/hyperengineering/ridelake/internal/archive"
	"github.com/hyperengineering/ridelake/internal/chat"
	"github.com/hyperengineering/ridelake/internal/config"
	"github.com/hyperengineering/ridelake/internal/dispatch"
	"github.com/hyperengineering/ridelake/internal/embedding"
	"github.com/hyperengineering/ridelake/internal/pipeline"
	"github.com/hyperengineering/ridelake/internal/store"
	"github.com/hyperengineering/ridelake/internal/vector"
	"github.com/hyperengineering/ridelake/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ridelake",
	Short: "RideLake - Ride Ingestion and Analytics Service",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize store (connects and applies migrations)
	db, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	slog.Info("store initialized")

	// 5. Source-file archival (no-op unless a bucket is configured)
	archiver, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		return err
	}

	// 6. Stage dispatch queue and pipeline orchestrator
	queue := dispatch.NewQueue(cfg.Pipeline.QueueBuffer, cfg.Pipeline.Workers)
	orchestrator := pipeline.New(db, queue, cfg.Pipeline.StagingDir, archiver)

	// 7. Optional OpenAI-backed services
	opts := api.HandlerOptions{
		Store:          db,
		Ingestor:       orchestrator,
		Version:        Version,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		SearchLimit:    cfg.Vector.SearchLimit,
	}

	var embedder *embedding.OpenAI
	if cfg.OpenAI.APIKey != "" {
		embedder = embedding.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.Vector.Dimensions)
		opts.Embedder = embedder
		opts.Chat = chat.NewService(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, db)
		slog.Info("openai services initialized",
			"embedding_model", cfg.OpenAI.EmbeddingModel,
			"chat_model", cfg.OpenAI.ChatModel,
		)
	}

	var index *vector.Client
	if cfg.Vector.URL != "" {
		index = vector.NewClient(cfg.Vector.URL, cfg.Vector.Collection)
		opts.Index = index
		slog.Info("vector index initialized",
			"url", cfg.Vector.URL,
			"collection", cfg.Vector.Collection,
		)
	}

	// 8. HTTP router and server
	handler := api.NewHandler(opts)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "dispatch", func(ctx context.Context) {
		queue.Run(ctx, orchestrator)
	})
	if embedder != nil && index != nil {
		coordinator := worker.NewVectorSyncCoordinator(db, embedder, index,
			time.Duration(cfg.Vector.SyncInterval), cfg.Vector.Dimensions)
		startWorker(ctx, &wg, "vector-sync", coordinator.Run)
	}

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers to complete
	wg.Wait()

	// 12c. Close store
	db.Close()

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
