package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

// storeFake is an in-memory ports.TenantStore shared by the usecase tests.
type storeFake struct {
	mu      sync.Mutex
	data    map[string]map[string][]byte
	putErr  error
	getErr  error
	scanErr error
}

func newStoreFake() *storeFake {
	return &storeFake{data: make(map[string]map[string][]byte)}
}

func bucketKey(tenantID, entityType string) string {
	return tenantID + ":" + entityType
}

func (f *storeFake) Put(_ context.Context, tenantID, entityType, id string, value []byte, _ time.Duration) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.data[bucketKey(tenantID, entityType)]
	if bucket == nil {
		bucket = make(map[string][]byte)
		f.data[bucketKey(tenantID, entityType)] = bucket
	}
	bucket[id] = append([]byte(nil), value...)
	return nil
}

func (f *storeFake) Get(_ context.Context, tenantID, entityType, id string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[bucketKey(tenantID, entityType)][id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get entity", fmt.Errorf("no %s %s", entityType, id))
	}
	return append([]byte(nil), value...), nil
}

func (f *storeFake) Delete(_ context.Context, tenantID, entityType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data[bucketKey(tenantID, entityType)], id)
	return nil
}

func (f *storeFake) ScanPrefix(_ context.Context, tenantID, entityType string) ([]ports.StoredEntity, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.data[bucketKey(tenantID, entityType)]
	out := make([]ports.StoredEntity, 0, len(bucket))
	for id, value := range bucket {
		out = append(out, ports.StoredEntity{ID: id, Value: append([]byte(nil), value...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type blobFake struct {
	handle  string
	putErr  error
	stored  string
	signed  string
	signErr error
}

func (f *blobFake) Put(_ context.Context, data io.Reader) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.stored = string(raw)
	if f.handle == "" {
		f.handle = "blob-1"
	}
	return f.handle, nil
}

func (f *blobFake) Sign(handle string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	if f.signed != "" {
		return f.signed, nil
	}
	return "https://blob.local/" + handle, nil
}

type transcriberFake struct {
	channel      string
	openErr      error
	trailing     []domain.TranscriptSegment
	finalizeErr  error
	finalized    []string
	batch        []domain.TranscriptSegment
	batchErr     error
	batchedAudio []byte
}

func (f *transcriberFake) OpenChannel(context.Context, string) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	if f.channel == "" {
		return "chan-1", nil
	}
	return f.channel, nil
}

func (f *transcriberFake) Transcribe(_ context.Context, audio io.Reader) ([]domain.TranscriptSegment, error) {
	raw, _ := io.ReadAll(audio)
	f.batchedAudio = raw
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.batch, nil
}

func (f *transcriberFake) Finalize(_ context.Context, channel string) ([]domain.TranscriptSegment, error) {
	f.finalized = append(f.finalized, channel)
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	return f.trailing, nil
}

type publishedEvent struct {
	tenantID  string
	sessionID string
}

type queueFake struct {
	publishErr error
	published  []publishedEvent
}

func (f *queueFake) PublishSessionCompleted(_ context.Context, tenantID, sessionID string) error {
	f.published = append(f.published, publishedEvent{tenantID: tenantID, sessionID: sessionID})
	return f.publishErr
}

func (f *queueFake) SubscribeSessionCompleted(context.Context, func(context.Context, string, string) error) error {
	return nil
}

type indexedDoc struct {
	tenantID string
	docType  domain.DocumentType
	text     string
	metadata map[string]string
}

// indexerFake serves canned retrieval hits per document type and records
// every IndexDocument call.
type indexerFake struct {
	hits     map[domain.DocumentType][]domain.RetrievedDocument
	queryErr error
	indexErr error
	indexed  []indexedDoc
}

func (f *indexerFake) IndexDocument(_ context.Context, tenantID string, docType domain.DocumentType, text string, metadata map[string]string) ([]string, error) {
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	f.indexed = append(f.indexed, indexedDoc{tenantID: tenantID, docType: docType, text: text, metadata: metadata})
	return []string{"doc-1"}, nil
}

func (f *indexerFake) QueryDocuments(_ context.Context, _ string, docType domain.DocumentType, _ string, topK int) ([]domain.RetrievedDocument, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	hits := f.hits[docType]
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

type analyzerFake struct {
	response    string
	completeErr error
	prompts     []string
}

func (f *analyzerFake) Complete(_ context.Context, prompt, _ string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.response, nil
}

func (f *analyzerFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *analyzerFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func mustSaveSession(t *testing.T, store *storeFake, session *domain.Session) {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	if err := store.Put(context.Background(), session.TenantID, domain.EntitySession, session.ID, raw, 0); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func loadStoredSession(t *testing.T, store *storeFake, tenantID, sessionID string) *domain.Session {
	t.Helper()
	raw, err := store.Get(context.Background(), tenantID, domain.EntitySession, sessionID)
	if err != nil {
		t.Fatalf("load stored session: %v", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		t.Fatalf("decode stored session: %v", err)
	}
	return &session
}

func completedSession(tenantID, sessionID, team, text string) *domain.Session {
	words := strings.Fields(text)
	end := float64(len(words)) / 2
	return &domain.Session{
		ID:       sessionID,
		TenantID: tenantID,
		TeamName: team,
		Status:   domain.StatusCompleted,
		Transcript: domain.Transcript{
			Text: text,
			Segments: []domain.TranscriptSegment{
				{Text: text, StartOffset: 0, EndOffset: end, IsFinal: true},
			},
		},
	}
}

func validScoreJSON(score float64) string {
	payload := make(map[string]map[string]any, len(domain.CategoryOrder))
	for _, name := range domain.CategoryOrder {
		payload[name] = map[string]any{"score": score, "feedback": "ok"}
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}
