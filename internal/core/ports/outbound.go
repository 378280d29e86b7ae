package ports

import (
	"context"
	"io"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

// StoredEntity is one scanned key/value pair from the tenant store.
type StoredEntity struct {
	ID    string
	Value []byte
}

// TenantStore is the namespaced key-value capability. Implementations
// compose keys as tenant_id:entity_type:entity_id internally; callers can
// never construct a cross-tenant key. Absence surfaces as ErrNotFound,
// connectivity failure as ErrStorageUnavailable.
type TenantStore interface {
	Put(ctx context.Context, tenantID, entityType, id string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, tenantID, entityType, id string) ([]byte, error)
	// Delete removes an entry. Deleting an absent entry is a no-op.
	Delete(ctx context.Context, tenantID, entityType, id string) error
	ScanPrefix(ctx context.Context, tenantID, entityType string) ([]StoredEntity, error)
}

// BlobStore stores recorded audio and issues time-limited access URLs.
type BlobStore interface {
	Put(ctx context.Context, data io.Reader) (string, error)
	Sign(handle string, ttl time.Duration) (string, error)
}

// Transcriber wraps the external speech-to-text capability.
type Transcriber interface {
	// OpenChannel reserves a streaming transcription channel for a session
	// and returns its handle.
	OpenChannel(ctx context.Context, sessionID string) (string, error)
	// Transcribe runs batch recognition over a full audio stream.
	Transcribe(ctx context.Context, audio io.Reader) ([]domain.TranscriptSegment, error)
	// Finalize flushes a streaming channel and returns any trailing
	// segments. Partial results must survive interruption.
	Finalize(ctx context.Context, channel string) ([]domain.TranscriptSegment, error)
}

// Analyzer wraps the external structured-reasoning capability.
type Analyzer interface {
	// Complete returns raw JSON text for the prompt; schemaHint describes
	// the expected object shape to the model.
	Complete(ctx context.Context, prompt, schemaHint string) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores embedded documents per (tenant, document type) and
// answers nearest-neighbor queries. An empty logical index answers with an
// empty result set, not an error.
type VectorIndex interface {
	Insert(ctx context.Context, doc domain.RetrievalDocument, vector []float32) error
	Search(ctx context.Context, tenantID string, docType domain.DocumentType, queryVector []float32, topK int) ([]domain.RetrievedDocument, error)
}

// MessageQueue carries completed-session events to the scoring worker.
type MessageQueue interface {
	PublishSessionCompleted(ctx context.Context, tenantID, sessionID string) error
	SubscribeSessionCompleted(ctx context.Context, handler func(context.Context, string, string) error) error
}

// Chunker splits long grounding text before embedding.
type Chunker interface {
	Split(text string) []string
}
