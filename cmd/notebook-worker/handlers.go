package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tideline/notebook/internal/jobs"
	"github.com/tideline/notebook/internal/types"
)

// process dispatches one leased job to its worker contract and
// returns the result payload to report back as completion.
func process(ctx context.Context, api *apiClient, llm *llmClient, job *types.Job) (any, error) {
	switch job.JobType {
	case types.JobDistillClaims:
		return processDistill(ctx, api, llm, job)
	case types.JobCompareClaims:
		return processCompare(ctx, api, llm, job)
	case types.JobClassifyTopic:
		return processClassify(ctx, api, llm, job)
	default:
		return nil, fmt.Errorf("unsupported job type %q", job.JobType)
	}
}

func processDistill(ctx context.Context, api *apiClient, llm *llmClient, job *types.Job) (any, error) {
	var payload jobs.DistillPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode distill payload: %w", err)
	}
	entry, err := api.getEntry(ctx, payload.EntryID)
	if err != nil {
		return nil, fmt.Errorf("fetch entry: %w", err)
	}
	return llm.Distill(ctx, string(entry.Entry.Content))
}

func processCompare(ctx context.Context, api *apiClient, llm *llmClient, job *types.Job) (any, error) {
	var payload jobs.ComparePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode compare payload: %w", err)
	}
	entryView, err := api.getEntry(ctx, payload.EntryID)
	if err != nil {
		return nil, fmt.Errorf("fetch entry: %w", err)
	}
	peerView, err := api.getEntry(ctx, payload.PeerID)
	if err != nil {
		return nil, fmt.Errorf("fetch peer entry: %w", err)
	}
	return llm.Compare(ctx, entryView.Claims, peerView.Claims)
}

func processClassify(ctx context.Context, api *apiClient, llm *llmClient, job *types.Job) (any, error) {
	var payload jobs.ClassifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode classify payload: %w", err)
	}
	entry, err := api.getEntry(ctx, payload.EntryID)
	if err != nil {
		return nil, fmt.Errorf("fetch entry: %w", err)
	}
	topics, err := api.listTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return llm.Classify(ctx, string(entry.Entry.Content), topics)
}
