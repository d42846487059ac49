// Command notebookd runs the notebook knowledge pipeline server: the
// entry store, job queue, claim graph and retrieval layer exposed over
// HTTP + JSON.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tideline/notebook/internal/claims"
	"github.com/tideline/notebook/internal/config"
	"github.com/tideline/notebook/internal/embedding"
	"github.com/tideline/notebook/internal/jobs"
	"github.com/tideline/notebook/internal/notebookmgr"
	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/retrieval"
	"github.com/tideline/notebook/internal/server"
	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/store/dolt"
	"github.com/tideline/notebook/internal/store/memory"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "notebookd",
		Short: "Notebook knowledge pipeline server",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a notebook-local config.yaml overlay")

	if err := root.Execute(); err != nil {
		slog.Error("notebookd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	q := queue.New(st, cfg.LeaseTTL)
	q.SetDefaultMaxAttempts(cfg.MaxAttempts)
	graph := claims.NewGraph(st, claims.Thresholds{
		ReviewThreshold:     float32(cfg.ReviewThreshold),
		ContestedThreshold:  float32(cfg.ContestedThreshold),
		IntegratedThreshold: float32(cfg.IntegratedThreshold),
		MinComparisons:      cfg.MinComparisons,
	})

	var embedder *embedding.Client
	if cfg.EmbeddingURL != "" {
		embedder = embedding.New(cfg.EmbeddingURL, cfg.EmbeddingTimeout)
	}

	var jobsEmbedder jobs.Embedder
	var retrievalEmbedder retrieval.Embedder
	if embedder != nil {
		jobsEmbedder = embedder
		retrievalEmbedder = embedder
	}

	jobs.Register(q, st, graph, jobsEmbedder, cfg.CompareFanOut)
	mgr := notebookmgr.New(st, q)

	retriever := retrieval.New(st, retrievalEmbedder)
	retriever.SetReviewThreshold(float32(cfg.ReviewThreshold))
	retriever.SetRRFK(cfg.HybridRRFK)

	server.InitMeterProvider()
	srv := server.New(st, mgr, q, graph, retriever, cfg.BearerToken, log.With("component", "notebookd"))

	httpServer := &http.Server{Addr: cfg.BindAddress, Handler: srv}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.EmbeddingTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("notebookd listening", "addr", cfg.BindAddress, "backend", cfg.StoreBackend)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Storage, error) {
	switch cfg.StoreBackend {
	case "dolt":
		return dolt.New(ctx, dolt.Config{
			Path:           cfg.DoltPath,
			CommitterName:  "notebookd",
			CommitterEmail: "notebookd@localhost",
		})
	default:
		return memory.New(), nil
	}
}
