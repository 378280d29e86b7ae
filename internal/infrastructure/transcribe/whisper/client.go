// Package whisper wraps a whisper-server style HTTP speech-to-text endpoint
// and normalizes provider output into ordered transcript segments.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

// OpenChannel reserves a streaming recognition channel for a session.
func (c *Client) OpenChannel(ctx context.Context, sessionID string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"model":      c.model,
	})
	if err != nil {
		return "", fmt.Errorf("marshal open channel request: %w", err)
	}

	var response struct {
		Channel string `json:"channel"`
	}
	err = c.execute(ctx, "whisper.open_channel", func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/channels", "application/json", bytes.NewReader(body), &response, "open channel")
	})
	if err != nil {
		return "", err
	}
	if response.Channel == "" {
		return "", fmt.Errorf("open channel: provider returned empty channel handle")
	}
	return response.Channel, nil
}

// Transcribe runs batch recognition over a full audio stream. The audio is
// buffered up front so every retried attempt resends the complete body.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader) ([]domain.TranscriptSegment, error) {
	raw, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var response providerResult
	err = c.execute(ctx, "whisper.transcribe", func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/transcribe?model="+c.model, "application/octet-stream", bytes.NewReader(raw), &response, "transcribe")
	})
	if err != nil {
		return nil, err
	}
	return normalizeSegments(response.Segments), nil
}

// Finalize flushes a streaming channel and returns trailing segments. The
// provider reports whatever partial results it holds even when the stream
// was interrupted.
func (c *Client) Finalize(ctx context.Context, channel string) ([]domain.TranscriptSegment, error) {
	if channel == "" {
		return nil, nil
	}
	var response providerResult
	err := c.execute(ctx, "whisper.finalize", func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/channels/"+channel+"/finalize", "application/json", nil, &response, "finalize")
	})
	if err != nil {
		return nil, err
	}
	return normalizeSegments(response.Segments), nil
}

type providerSegment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
}

type providerResult struct {
	Segments []providerSegment `json:"segments"`
}

// normalizeSegments orders provider segments by start offset and clamps
// confidence into [0,1].
func normalizeSegments(in []providerSegment) []domain.TranscriptSegment {
	sorted := append([]providerSegment(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]domain.TranscriptSegment, 0, len(sorted))
	for _, seg := range sorted {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		confidence := seg.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		out = append(out, domain.TranscriptSegment{
			Text:        text,
			StartOffset: seg.Start,
			EndOffset:   seg.End,
			Confidence:  confidence,
			IsFinal:     seg.Final,
		})
	}
	return out
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyTranscribeError)
}

func (c *Client) postJSON(ctx context.Context, path, contentType string, body io.Reader, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			return fmt.Errorf("whisper %s status: %s", operation, resp.Status)
		}
		return fmt.Errorf("whisper %s status: %s: %s", operation, resp.Status, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}

func classifyTranscribeError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}
	return resilience.Verdict{RecordFailure: true}
}
