// Package refine calls an OpenAI-compatible chat completions endpoint to
// rewrite and summarize transcript text.
package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com"

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse = errors.New("empty llm response")

// Config selects endpoint, credentials and models.
type Config struct {
	BaseURL      string
	APIKey       string
	RefineModel  string
	SummaryModel string
	Temperature  float64
}

// Client implements both refinement and summarization.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient constructs a client. A nil httpClient gets a 5 minute timeout.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.RefineModel) == "" {
		cfg.RefineModel = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.SummaryModel) == "" {
		cfg.SummaryModel = cfg.RefineModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	return &Client{cfg: cfg, client: httpClient}
}

// Refine rewrites text into the requested output format.
func (c *Client) Refine(ctx context.Context, text, format string) (string, error) {
	return c.complete(ctx, c.cfg.RefineModel, buildRefineSystemPrompt(format), text)
}

// Summarize produces a short summary of text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, c.cfg.SummaryModel, buildSummarySystemPrompt(), text)
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errors.New("OPENAI_API_KEY is not set")
	}

	payload := map[string]interface{}{
		"model":       model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := c.cfg.BaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wrapper struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(wrapper.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(wrapper.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
