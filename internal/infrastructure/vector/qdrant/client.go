// Package qdrant backs the retrieval index with a Qdrant HTTP instance.
// Each (tenant, document type) pair maps to its own collection, ensured
// lazily on first insert.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, collectionPrefix string) *Client {
	if collectionPrefix == "" {
		collectionPrefix = "pitchscore"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     collectionPrefix,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ensured:    make(map[string]int),
	}
}

func (c *Client) collectionName(tenantID string, docType domain.DocumentType) string {
	sanitize := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return c.prefix + "_" + sanitize(tenantID) + "_" + sanitize(string(docType))
}

func (c *Client) Insert(ctx context.Context, doc domain.RetrievalDocument, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty document vector")
	}
	collection := c.collectionName(doc.TenantID, doc.Type)
	if err := c.ensureCollection(ctx, collection, len(vector)); err != nil {
		return err
	}

	payload := map[string]any{
		"doc_id":        doc.ID,
		"tenant_id":     doc.TenantID,
		"document_type": string(doc.Type),
		"text":          doc.Text,
		"indexed_at":    doc.IndexedAt.Format(time.RFC3339Nano),
	}
	for k, v := range doc.Metadata {
		payload["meta_"+k] = v
	}

	body, err := json.Marshal(map[string]any{
		"points": []map[string]any{
			{"id": doc.ID, "vector": vector, "payload": payload},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	if err := c.do(ctx, http.MethodPut, url, body, nil, "upsert"); err != nil {
		return err
	}
	return nil
}

func (c *Client) Search(
	ctx context.Context,
	tenantID string,
	docType domain.DocumentType,
	queryVector []float32,
	topK int,
) ([]domain.RetrievedDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	collection := c.collectionName(tenantID, docType)

	// Collection names are sanitized, so distinct tenant ids can map to the
	// same collection. The payload filter keeps hits tenant-scoped either way.
	body, err := json.Marshal(map[string]any{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key": "tenant_id",
					"match": map[string]any{
						"value": tenantID,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var response struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	err = c.do(ctx, http.MethodPost, url, body, &response, "search")
	if err != nil {
		// A collection that was never created is an empty logical index,
		// not a failure.
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
			return []domain.RetrievedDocument{}, nil
		}
		return nil, err
	}

	out := make([]domain.RetrievedDocument, 0, len(response.Result))
	for _, point := range response.Result {
		out = append(out, domain.RetrievedDocument{
			Document:   documentFromPayload(tenantID, docType, point.Payload),
			Similarity: point.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Document.IndexedAt.After(out[j].Document.IndexedAt)
	})
	return out, nil
}

func documentFromPayload(tenantID string, docType domain.DocumentType, payload map[string]any) domain.RetrievalDocument {
	doc := domain.RetrievalDocument{
		TenantID: tenantID,
		Type:     docType,
	}
	if v, ok := payload["tenant_id"].(string); ok && v != "" {
		doc.TenantID = v
	}
	if v, ok := payload["doc_id"].(string); ok {
		doc.ID = v
	}
	if v, ok := payload["text"].(string); ok {
		doc.Text = v
	}
	if v, ok := payload["indexed_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			doc.IndexedAt = t
		}
	}
	for k, v := range payload {
		if !strings.HasPrefix(k, "meta_") {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		doc.Metadata[strings.TrimPrefix(k, "meta_")] = s
	}
	return doc
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal ensure collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	if err := c.do(ctx, http.MethodPut, url, body, nil, "ensure collection"); err != nil {
		var statusErr *httpStatusError
		if !errors.As(err, &statusErr) || statusErr.code != http.StatusConflict {
			return err
		}
	}

	c.ensureMu.Lock()
	c.ensured[collection] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

type httpStatusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *httpStatusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, strings.TrimSpace(e.body))
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &httpStatusError{
			operation: operation,
			code:      resp.StatusCode,
			status:    resp.Status,
			body:      string(raw),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}
