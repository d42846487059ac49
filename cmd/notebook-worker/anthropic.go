package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tideline/notebook/internal/types"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	defaultModel   = anthropic.Model("claude-3-5-haiku-20241022")
)

// llmClient produces DISTILL_CLAIMS/COMPARE_CLAIMS/CLASSIFY_TOPIC
// results by prompting Claude for strict JSON matching the worker
// result schemas of spec §4.3.
type llmClient struct {
	client anthropic.Client
	model  anthropic.Model
}

func newLLMClient(apiKey string) (*llmClient, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY (or --api-key) is required")
	}
	return &llmClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}, nil
}

func (c *llmClient) Distill(ctx context.Context, content string) (types.DistillResult, error) {
	prompt := fmt.Sprintf(`Extract the distinct factual claims made in this note, ordered from
most central to most peripheral. Respond with JSON only, matching exactly:
{"claims":[{"text":"...","confidence":0.0}]}

Note:
%s`, content)

	var result types.DistillResult
	if err := c.completeJSON(ctx, prompt, &result); err != nil {
		return types.DistillResult{}, err
	}
	return result, nil
}

func (c *llmClient) Compare(ctx context.Context, claimsA, claimsB []types.Claim) (types.CompareResult, error) {
	prompt := fmt.Sprintf(`Compare these two sets of claims from separate notes in the same
corpus. Score entropy (0=redundant, 1=wholly novel) and friction
(0=agreement, 1=direct contradiction) in [0,1], and list specific
claim-pairs that contradict each other. Respond with JSON only:
{"entropy":0.0,"friction":0.0,"contradictions":[{"claim_a_text":"...","claim_b_text":"...","severity":0.0}]}

Claims A:
%s

Claims B:
%s`, renderClaims(claimsA), renderClaims(claimsB))

	var result types.CompareResult
	if err := c.completeJSON(ctx, prompt, &result); err != nil {
		return types.CompareResult{}, err
	}
	return result, nil
}

func (c *llmClient) Classify(ctx context.Context, content string, existingTopics []string) (types.ClassifyResult, error) {
	prompt := fmt.Sprintf(`Assign this note to a topic. Prefer an existing topic if it fits;
otherwise propose a new one. Respond with JSON only:
{"primary_topic":"...","secondary_topics":["..."],"new_topic":"..."}
new_topic is only set when none of the existing topics fit.

Existing topics: %s

Note:
%s`, strings.Join(existingTopics, ", "), content)

	var result types.ClassifyResult
	if err := c.completeJSON(ctx, prompt, &result); err != nil {
		return types.ClassifyResult{}, err
	}
	return result, nil
}

func renderClaims(claims []types.Claim) string {
	var b strings.Builder
	for _, c := range claims {
		fmt.Fprintf(&b, "- %s\n", c.Text)
	}
	return b.String()
}

func (c *llmClient) completeJSON(ctx context.Context, prompt string, out any) error {
	text, err := c.callWithRetry(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), out); err != nil {
		return fmt.Errorf("parse model response as JSON: %w", err)
	}
	return nil
}

// extractJSON trims any leading/trailing prose a model adds around
// the JSON object despite instructions.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func (c *llmClient) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", errors.New("empty response from model")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("unexpected response block type %q", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable model error: %w", err)
		}
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
