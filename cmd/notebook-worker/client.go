package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tideline/notebook/internal/types"
)

// apiClient talks to a running notebookd over the HTTP API described
// in spec §6.
type apiClient struct {
	baseURL    string
	token      string
	notebookID string
	http       *http.Client
}

func newAPIClient(baseURL, token, notebookID string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		token:      token,
		notebookID: notebookID,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(data))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// nextJob leases the next available job for this notebook, or nil if
// the queue is empty.
func (c *apiClient) nextJob(ctx context.Context, workerID string) (*types.Job, error) {
	var job types.Job
	status, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/notebooks/%s/jobs/next?worker_id=%s", c.notebookID, workerID), nil, &job)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &job, nil
}

func (c *apiClient) completeJob(ctx context.Context, jobID, workerID string, result any) error {
	body := map[string]any{"worker_id": workerID, "result": result}
	_, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/notebooks/%s/jobs/%s/complete", c.notebookID, jobID), body, nil)
	return err
}

func (c *apiClient) failJob(ctx context.Context, jobID, workerID, errMsg string) error {
	body := map[string]string{"worker_id": workerID, "error": errMsg}
	_, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/notebooks/%s/jobs/%s/fail", c.notebookID, jobID), body, nil)
	return err
}

type entryView struct {
	Entry types.Entry   `json:"entry"`
	Claims []types.Claim `json:"claims"`
}

func (c *apiClient) getEntry(ctx context.Context, entryID string) (*entryView, error) {
	var view entryView
	_, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/notebooks/%s/entries/%s", c.notebookID, entryID), nil, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// listTopics returns the distinct topics currently in the catalog, so
// CLASSIFY_TOPIC can prefer reusing one over minting a new one.
func (c *apiClient) listTopics(ctx context.Context) ([]string, error) {
	var resp struct {
		Clusters []types.CatalogCluster `json:"clusters"`
	}
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/notebooks/%s/catalog", c.notebookID), nil, &resp)
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(resp.Clusters))
	for _, cl := range resp.Clusters {
		if cl.Topic != "" && cl.Topic != "(none)" {
			topics = append(topics, cl.Topic)
		}
	}
	return topics, nil
}
