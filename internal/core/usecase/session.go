package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

// SessionUseCase owns the recording session lifecycle. All state changes go
// through the legal edges declared on domain.Session.
type SessionUseCase struct {
	store             ports.TenantStore
	blob              ports.BlobStore
	transcriber       ports.Transcriber
	queue             ports.MessageQueue
	indexer           ports.ContextIndexer
	transcribeTimeout time.Duration
}

func NewSessionUseCase(
	store ports.TenantStore,
	blob ports.BlobStore,
	transcriber ports.Transcriber,
	queue ports.MessageQueue,
	indexer ports.ContextIndexer,
	transcribeTimeout time.Duration,
) *SessionUseCase {
	if transcribeTimeout <= 0 {
		transcribeTimeout = 45 * time.Second
	}
	return &SessionUseCase{
		store:             store,
		blob:              blob,
		transcriber:       transcriber,
		queue:             queue,
		indexer:           indexer,
		transcribeTimeout: transcribeTimeout,
	}
}

// CreateSession creates a session and advances it to ready_to_record once a
// transcription channel is obtained. Channel failure leaves the session in
// the error state; the caller retries by creating a new session.
func (uc *SessionUseCase) CreateSession(ctx context.Context, tenantID, teamName, title string) (*domain.Session, error) {
	if tenantID == "" || teamName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create session",
			fmt.Errorf("tenant_id and team_name are required"))
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TeamName:  teamName,
		Title:     title,
		Status:    domain.StatusInitializing,
		CreatedAt: time.Now().UTC(),
	}

	channel, err := uc.transcriber.OpenChannel(ctx, session.ID)
	if err != nil {
		_ = session.MarkError(fmt.Sprintf("open transcription channel: %v", err))
		if saveErr := uc.saveSession(ctx, session); saveErr != nil {
			return nil, fmt.Errorf("save failed session: %w", saveErr)
		}
		return nil, fmt.Errorf("open transcription channel: %w", err)
	}
	session.TranscribeChannel = channel

	if err := session.Transition(domain.StatusReadyToRecord); err != nil {
		return nil, err
	}
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// BeginRecording moves ready_to_record -> recording. A session already
// recording is a no-op; any other state is an invalid transition.
func (uc *SessionUseCase) BeginRecording(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	session, err := uc.loadSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.StatusRecording {
		return session, nil
	}
	if err := session.Transition(domain.StatusRecording); err != nil {
		return nil, err
	}
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// IngestSegment appends one transcript segment in receipt order. Legal only
// while the session records.
func (uc *SessionUseCase) IngestSegment(ctx context.Context, tenantID, sessionID string, seg domain.TranscriptSegment) error {
	session, err := uc.loadSession(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	if err := session.AppendSegment(seg); err != nil {
		return err
	}
	return uc.saveSession(ctx, session)
}

// CompleteSession moves recording -> processing -> completed. Audio is
// committed to the blob store before the session references it, so a crash
// mid-write can orphan a blob but never dangle a reference. Finalization
// failure lands in the error state with the partial transcript preserved.
func (uc *SessionUseCase) CompleteSession(ctx context.Context, tenantID, sessionID string, audio io.Reader) (*domain.Session, error) {
	session, err := uc.loadSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Transition(domain.StatusProcessing); err != nil {
		return nil, err
	}

	var audioBytes []byte
	if audio != nil {
		audioBytes, err = io.ReadAll(audio)
		if err != nil {
			return nil, fmt.Errorf("read audio: %w", err)
		}
	}
	if len(audioBytes) > 0 {
		handle, err := uc.blob.Put(ctx, bytes.NewReader(audioBytes))
		if err != nil {
			_ = session.MarkError(fmt.Sprintf("store audio: %v", err))
			if saveErr := uc.saveSession(ctx, session); saveErr != nil {
				return nil, fmt.Errorf("save failed session: %w", saveErr)
			}
			return nil, fmt.Errorf("store audio: %w", err)
		}
		session.AudioRef = handle
	}
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}

	finalizeCtx, cancel := context.WithTimeout(ctx, uc.transcribeTimeout)
	trailing, err := uc.transcriber.Finalize(finalizeCtx, session.TranscribeChannel)
	cancel()
	if err != nil {
		_ = session.MarkError(fmt.Sprintf("finalize transcript: %v", err))
		if saveErr := uc.saveSession(ctx, session); saveErr != nil {
			return nil, fmt.Errorf("save failed session: %w", saveErr)
		}
		return nil, fmt.Errorf("finalize transcript: %w", err)
	}
	appendTranscript(session, trailing)

	// A session that never streamed has no segments; fall back to batch
	// recognition over the uploaded audio.
	if len(session.Transcript.Segments) == 0 && len(audioBytes) > 0 {
		batchCtx, cancel := context.WithTimeout(ctx, uc.transcribeTimeout)
		segments, err := uc.transcriber.Transcribe(batchCtx, bytes.NewReader(audioBytes))
		cancel()
		if err != nil {
			_ = session.MarkError(fmt.Sprintf("transcribe audio: %v", err))
			if saveErr := uc.saveSession(ctx, session); saveErr != nil {
				return nil, fmt.Errorf("save failed session: %w", saveErr)
			}
			return nil, fmt.Errorf("transcribe audio: %w", err)
		}
		appendTranscript(session, segments)
	}

	now := time.Now().UTC()
	session.CompletedAt = &now
	if err := session.Transition(domain.StatusCompleted); err != nil {
		return nil, err
	}
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}

	uc.indexTranscript(ctx, session)

	if err := uc.queue.PublishSessionCompleted(ctx, tenantID, session.ID); err != nil {
		// Scoring can still be requested directly; completion itself stands.
		slog.Warn("session_completed_publish_failed",
			"tenant_id", tenantID,
			"session_id", session.ID,
			"error", err,
		)
	}
	return session, nil
}

func (uc *SessionUseCase) GetSession(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	return uc.loadSession(ctx, tenantID, sessionID)
}

func appendTranscript(session *domain.Session, segs []domain.TranscriptSegment) {
	for _, seg := range segs {
		session.Transcript.Segments = append(session.Transcript.Segments, seg)
		if session.Transcript.Text != "" {
			session.Transcript.Text += " "
		}
		session.Transcript.Text += seg.Text
	}
}

// indexTranscript publishes the finished transcript into the retrieval
// index. Each completion indexes a new document version; failures only cost
// tier-1 grounding, so they are logged and swallowed.
func (uc *SessionUseCase) indexTranscript(ctx context.Context, session *domain.Session) {
	if session.Transcript.Text == "" {
		return
	}
	_, err := uc.indexer.IndexDocument(ctx, session.TenantID, domain.DocTypeTranscript, session.Transcript.Text, map[string]string{
		"session_id": session.ID,
		"team_name":  session.TeamName,
	})
	if err != nil {
		slog.Warn("transcript_index_failed",
			"tenant_id", session.TenantID,
			"session_id", session.ID,
			"error", err,
		)
	}
}

func (uc *SessionUseCase) loadSession(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	raw, err := uc.store.Get(ctx, tenantID, domain.EntitySession, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (uc *SessionUseCase) saveSession(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := uc.store.Put(ctx, session.TenantID, domain.EntitySession, session.ID, raw, 0); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}
