// Package ollama wraps an Ollama-style HTTP API as the analysis capability:
// structured JSON completion and text embedding.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pitchlabs/pitchscore/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	// RequestsPerSecond caps outbound analysis calls; zero disables the cap.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Executor          *resilience.Executor
}

func New(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		executor:   options.Executor,
	}
}

// Complete asks the model for a JSON object for the prompt. schemaHint is
// appended so the model sees the expected shape; the caller validates the
// returned text against its schema.
func (c *Client) Complete(ctx context.Context, prompt, schemaHint string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	fullPrompt := prompt
	if schemaHint != "" {
		fullPrompt += "\nRespond with JSON shaped exactly like: " + schemaHint
	}
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": fullPrompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	err := c.execute(ctx, "ollama.generate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	})
	if err != nil {
		return "", wrapAnalysisError("generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapAnalysisError("embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, wrapAnalysisError("embed",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts)))
	}
	return response.Embeddings, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, wrapAnalysisError("embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("analysis rate limit: %w", err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyAnalysisError)
}
