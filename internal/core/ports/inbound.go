package ports

import (
	"context"
	"io"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

// SessionLifecycle is the inbound contract for the recording state machine.
type SessionLifecycle interface {
	CreateSession(ctx context.Context, tenantID, teamName, title string) (*domain.Session, error)
	BeginRecording(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)
	IngestSegment(ctx context.Context, tenantID, sessionID string, seg domain.TranscriptSegment) error
	CompleteSession(ctx context.Context, tenantID, sessionID string, audio io.Reader) (*domain.Session, error)
	GetSession(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)
}

// SessionScorer is the inbound contract for the scoring orchestrator.
type SessionScorer interface {
	ScoreSession(ctx context.Context, tenantID, sessionID, judgeID string) (*domain.ScoreRecord, error)
}

// TenantRanker computes the tenant leaderboard.
type TenantRanker interface {
	Rank(ctx context.Context, tenantID string) ([]domain.RankEntry, error)
}

// ContextIndexer manages grounding documents in the retrieval index.
type ContextIndexer interface {
	IndexDocument(ctx context.Context, tenantID string, docType domain.DocumentType, text string, metadata map[string]string) ([]string, error)
	QueryDocuments(ctx context.Context, tenantID string, docType domain.DocumentType, queryText string, topK int) ([]domain.RetrievedDocument, error)
}
