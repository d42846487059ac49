// Command notebook-worker polls a notebookd server for DISTILL_CLAIMS,
// COMPARE_CLAIMS and CLASSIFY_TOPIC jobs and completes them by
// prompting Claude. The job queue treats workers as external and
// pluggable (spec §1); this is the reference implementation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	serverURL    string
	notebookID   string
	token        string
	author       string
	apiKey       string
	pollInterval time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "notebook-worker",
		Short: "Reference LLM worker for the notebook job queue",
		RunE:  run,
	}
	root.Flags().StringVar(&serverURL, "server-url", envOr("SERVER_URL", "http://localhost:8080"), "notebookd base URL")
	root.Flags().StringVar(&notebookID, "notebook-id", os.Getenv("NOTEBOOK_ID"), "notebook to pull jobs for")
	root.Flags().StringVar(&token, "token", os.Getenv("TOKEN"), "bearer token for notebookd")
	root.Flags().StringVar(&author, "author", envOr("AUTHOR", "notebook-worker"), "worker identity reported on leases")
	root.Flags().StringVar(&apiKey, "api-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key")
	root.Flags().DurationVar(&pollInterval, "poll-interval", envDurationOr("POLL_INTERVAL", 5*time.Second), "idle poll interval")

	if err := root.Execute(); err != nil {
		slog.Error("notebook-worker exited with error", "error", err)
		os.Exit(2)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return def
}

func run(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if notebookID == "" {
		log.Error("missing required --notebook-id / NOTEBOOK_ID")
		os.Exit(1)
	}

	llm, err := newLLMClient(apiKey)
	if err != nil {
		log.Error("configure model client", "error", err)
		os.Exit(1)
	}

	api := newAPIClient(serverURL, token, notebookID)
	workerID := author + "-" + uuid.NewString()[:8]

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("notebook-worker starting", "server", serverURL, "notebook", notebookID, "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Info("notebook-worker shutting down")
			return nil
		default:
		}

		job, err := api.nextJob(ctx, workerID)
		if err != nil {
			log.Error("lease job", "error", err)
			return fmt.Errorf("unrecoverable queue error: %w", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
			continue
		}

		log.Info("leased job", "job_id", job.ID, "type", job.JobType)
		result, err := process(ctx, api, llm, job)
		if err != nil {
			log.Error("process job", "job_id", job.ID, "error", err)
			if failErr := api.failJob(ctx, job.ID, workerID, err.Error()); failErr != nil {
				log.Error("report job failure", "job_id", job.ID, "error", failErr)
			}
			continue
		}
		if err := api.completeJob(ctx, job.ID, workerID, result); err != nil {
			log.Error("report job completion", "job_id", job.ID, "error", err)
		}
	}
}
