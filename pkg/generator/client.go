package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/retry"
)

// Drafter produces a project draft from a job description.
type Drafter interface {
	GenerateDraft(ctx context.Context, req *DraftRequest) (*Draft, error)
}

// Config holds configuration for creating a draft generator.
type Config struct {
	Endpoint string // Base URL, e.g., "https://api.openai.com/v1"
	Model    string // Model name, e.g., "gpt-4o"
	APIKey   string // Optional for local endpoints
}

// Client generates drafts through an OpenAI-compatible chat endpoint.
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Drafter = (*Client)(nil)

// NewClient creates a draft generator client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("generator"),
	}, nil
}

const systemPrompt = `You are a construction contract assistant. Given a job description, produce a JSON object with three keys: "contract_terms", "scope", and "milestones". Respond with JSON only, no prose and no code fences.

"contract_terms" has "payment_schedule" (array of {"milestone", "percentage", "amount", "due_date"}), "timeline", "warranty", "liability", and "insurance".
"scope" has "work_breakdown" ({"phases": [{"name", "tasks", "timeline", "dependencies"}]}), "materials" ({"items": [{"name", "specifications", "quantity", "supplier"}]}), "requirements" ({"codes", "permits", "inspections", "quality_standards"}), and "exclusions" (array of strings).
"milestones" is an array of {"title", "description", "order_number", "payment_percentage", "deliverables", "acceptance_criteria", "duration_days"}. Order numbers start at 1 and payment percentages must sum to 100.`

// GenerateDraft calls the model and parses its response into a validated
// Draft. Endpoint failures and unusable responses are reported as
// apperrors.ErrUnavailable so callers can distinguish them from bad input.
func (c *Client) GenerateDraft(ctx context.Context, req *DraftRequest) (*Draft, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err)
	}

	prompt := fmt.Sprintf("Job title: %s\nBudget: %s\nDescription: %s\n",
		req.JobTitle, req.TotalAmount, req.JobDescription)
	if req.DurationWeeks > 0 {
		prompt += fmt.Sprintf("Target duration: %d weeks\n", req.DurationWeeks)
	}

	c.logger.Debug("draft request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.2,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return resp, fmt.Errorf("%w: %s", apperrors.ErrUnavailable, err)
		}
		return resp, nil
	})
	if err != nil {
		c.logger.Error("draft request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: draft generation failed", apperrors.ErrUnavailable)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty draft response", apperrors.ErrUnavailable)
	}

	draft, err := parseDraft(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Error("draft response unusable", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnavailable, err)
	}
	draft.PriceMilestones(req.TotalAmount)

	c.logger.Info("draft generated",
		zap.Int("milestones", len(draft.Milestones)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return draft, nil
}

// parseDraft extracts the JSON object from the model output and validates
// it. Models sometimes wrap JSON in code fences despite instructions, so
// the fences are stripped before unmarshaling.
func parseDraft(content string) (*Draft, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	// Narrow to the outermost object in case prose slipped through.
	if start := strings.IndexByte(raw, '{'); start > 0 {
		raw = raw[start:]
	}
	if end := strings.LastIndexByte(raw, '}'); end >= 0 && end < len(raw)-1 {
		raw = raw[:end+1]
	}

	var draft Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return &draft, nil
}
