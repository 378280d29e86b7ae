package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

// errIndexEmpty is the internal tier-1 signal for a missing rubric index.
// Callers of the orchestrator never see it; it only routes to tier 2.
var errIndexEmpty = errors.New("retrieval index empty")

// ScoringConfig tunes the fallback chain and the heuristic tier.
type ScoringConfig struct {
	RubricTopK      int
	TierTimeout     time.Duration
	SponsorKeywords []string
	// LockTTL expires the cross-process scoring lock of a crashed holder.
	LockTTL time.Duration
	// Observer is optional scoring telemetry.
	Observer ScoringObserver
}

func (c ScoringConfig) normalize() ScoringConfig {
	out := c
	if out.RubricTopK <= 0 {
		out.RubricTopK = 4
	}
	if out.TierTimeout <= 0 {
		out.TierTimeout = 30 * time.Second
	}
	if out.LockTTL <= 0 {
		// Covers all three tiers plus commit overhead.
		out.LockTTL = 3*out.TierTimeout + 30*time.Second
	}
	return out
}

// LeaderboardInvalidator drops cached leaderboards after a score write.
type LeaderboardInvalidator interface {
	Invalidate(tenantID string)
}

// ScoringObserver receives scoring telemetry. A drift of method from
// rag_enhanced toward heuristic is the operator signal for upstream
// capability outages, so both binaries report through the same hook.
type ScoringObserver interface {
	StartScoring()
	TierFailed(tier string)
	FinishScoring(method, outcome string, elapsed time.Duration)
}

type scoringTier struct {
	method domain.ScoringMethod
	run    func(ctx context.Context, session *domain.Session) (*domain.ScoreRecord, error)
}

// ScoreUseCase drives the three-tier scoring chain and commits the result
// exactly once per call. At most one scoring operation runs per
// (tenant, session); a concurrent call is rejected with ErrAlreadyScoring.
type ScoreUseCase struct {
	store       ports.TenantStore
	indexer     ports.ContextIndexer
	analyzer    ports.Analyzer
	invalidator LeaderboardInvalidator
	cfg         ScoringConfig
	tiers       []scoringTier

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewScoreUseCase(
	store ports.TenantStore,
	indexer ports.ContextIndexer,
	analyzer ports.Analyzer,
	invalidator LeaderboardInvalidator,
	cfg ScoringConfig,
) *ScoreUseCase {
	uc := &ScoreUseCase{
		store:       store,
		indexer:     indexer,
		analyzer:    analyzer,
		invalidator: invalidator,
		cfg:         cfg.normalize(),
		inFlight:    make(map[string]struct{}),
	}
	uc.tiers = []scoringTier{
		{method: domain.MethodRAGEnhanced, run: uc.ragEnhanced},
		{method: domain.MethodStructuredLLM, run: uc.structuredLLM},
		{method: domain.MethodHeuristic, run: uc.heuristic},
	}
	return uc
}

// ScoreSession scores one completed session. Re-scoring overwrites the prior
// record. The result is staged in memory and committed in a single write, so
// cancellation never leaves a partial record.
func (uc *ScoreUseCase) ScoreSession(ctx context.Context, tenantID, sessionID, judgeID string) (*domain.ScoreRecord, error) {
	session, err := uc.loadSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusCompleted {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "score session",
			fmt.Errorf("session %s is %s, not completed", sessionID, session.Status))
	}

	acquired, err := uc.acquire(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domain.WrapError(domain.ErrAlreadyScoring, "score session",
			fmt.Errorf("session %s has an in-flight scoring call", sessionID))
	}
	defer uc.release(ctx, tenantID, sessionID)

	start := time.Now()
	if uc.cfg.Observer != nil {
		uc.cfg.Observer.StartScoring()
	}

	var record *domain.ScoreRecord
	var tierErrs []error
	for _, tier := range uc.tiers {
		if err := ctx.Err(); err != nil {
			uc.observeFinish("none", "error", start)
			return nil, err
		}
		tierCtx, cancel := context.WithTimeout(ctx, uc.cfg.TierTimeout)
		candidate, err := tier.run(tierCtx, session)
		cancel()
		if err == nil {
			candidate.SessionID = session.ID
			candidate.TenantID = tenantID
			candidate.JudgeID = judgeID
			candidate.MethodUsed = tier.method
			candidate.ScoredAt = time.Now().UTC()
			candidate.RecomputeTotal()
			err = candidate.Validate()
		}
		if err != nil {
			slog.Warn("scoring_tier_failed",
				"tenant_id", tenantID,
				"session_id", sessionID,
				"tier", string(tier.method),
				"error", err,
			)
			if uc.cfg.Observer != nil {
				uc.cfg.Observer.TierFailed(string(tier.method))
			}
			tierErrs = append(tierErrs, fmt.Errorf("%s: %w", tier.method, err))
			continue
		}
		record = candidate
		break
	}
	if record == nil {
		uc.observeFinish("none", "error", start)
		return nil, domain.WrapError(domain.ErrAnalysisCapability, "score session",
			errors.Join(tierErrs...))
	}

	if err := uc.commit(ctx, record); err != nil {
		uc.observeFinish("none", "error", start)
		return nil, err
	}
	uc.observeFinish(string(record.MethodUsed), "ok", start)
	uc.annotateScoringTriggered(ctx, session, record.ScoredAt)
	if uc.invalidator != nil {
		uc.invalidator.Invalidate(tenantID)
	}

	slog.Info("session_scored",
		"tenant_id", tenantID,
		"session_id", sessionID,
		"method_used", string(record.MethodUsed),
		"total_score", record.TotalScore,
	)
	return record, nil
}

// Tier 1: score grounded in retrieved rubric material plus the session's own
// indexed transcript document.
func (uc *ScoreUseCase) ragEnhanced(ctx context.Context, session *domain.Session) (*domain.ScoreRecord, error) {
	queryText := truncateText(session.Transcript.Text, maxQueryChars)
	if queryText == "" {
		return nil, fmt.Errorf("session has no transcript text")
	}

	rubricHits, err := uc.indexer.QueryDocuments(ctx, session.TenantID, domain.DocTypeRubric, queryText, uc.cfg.RubricTopK)
	if err != nil {
		return nil, fmt.Errorf("query rubric index: %w", err)
	}
	if len(rubricHits) == 0 {
		return nil, errIndexEmpty
	}

	transcriptDoc := uc.findOwnTranscriptDoc(ctx, session, queryText)

	raw, err := uc.analyzer.Complete(ctx, buildRAGPrompt(session, rubricHits, transcriptDoc), scoreSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("analysis completion: %w", err)
	}
	categories, err := parseCategoryScores(raw)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(rubricHits)+1)
	for _, hit := range rubricHits {
		refs = append(refs, hit.Document.ID)
	}
	if transcriptDoc != nil {
		refs = append(refs, transcriptDoc.Document.ID)
	}
	return &domain.ScoreRecord{Categories: categories, ContextRefs: refs}, nil
}

// Tier 2: direct structured analysis with the rubric embedded in the prompt.
func (uc *ScoreUseCase) structuredLLM(ctx context.Context, session *domain.Session) (*domain.ScoreRecord, error) {
	if session.Transcript.Text == "" {
		return nil, fmt.Errorf("session has no transcript text")
	}
	raw, err := uc.analyzer.Complete(ctx, buildDirectPrompt(session), scoreSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("analysis completion: %w", err)
	}
	categories, err := parseCategoryScores(raw)
	if err != nil {
		return nil, err
	}
	return &domain.ScoreRecord{Categories: categories}, nil
}

// Tier 3: deterministic local scoring from transcript statistics. Never
// fails, so every scoring call returns a result.
func (uc *ScoreUseCase) heuristic(_ context.Context, session *domain.Session) (*domain.ScoreRecord, error) {
	return heuristicScore(session, uc.cfg.SponsorKeywords), nil
}

// findOwnTranscriptDoc locates the most recent indexed transcript version
// for the session. Absence is tolerated; tier 1 then grounds on the rubric
// and the live transcript alone.
func (uc *ScoreUseCase) findOwnTranscriptDoc(ctx context.Context, session *domain.Session, queryText string) *domain.RetrievedDocument {
	hits, err := uc.indexer.QueryDocuments(ctx, session.TenantID, domain.DocTypeTranscript, queryText, uc.cfg.RubricTopK*4)
	if err != nil {
		slog.Warn("transcript_doc_lookup_failed",
			"tenant_id", session.TenantID,
			"session_id", session.ID,
			"error", err,
		)
		return nil
	}
	var best *domain.RetrievedDocument
	for i := range hits {
		if hits[i].Document.Metadata["session_id"] != session.ID {
			continue
		}
		if best == nil || hits[i].Document.IndexedAt.After(best.Document.IndexedAt) {
			best = &hits[i]
		}
	}
	return best
}

func (uc *ScoreUseCase) commit(ctx context.Context, record *domain.ScoreRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode score record: %w", err)
	}
	if err := uc.store.Put(ctx, record.TenantID, domain.EntityScore, record.SessionID, raw, 0); err != nil {
		return fmt.Errorf("commit score record: %w", err)
	}
	return nil
}

// annotateScoringTriggered is a side annotation on the session, not a state
// change. Failure here never invalidates the committed score.
func (uc *ScoreUseCase) annotateScoringTriggered(ctx context.Context, session *domain.Session, at time.Time) {
	session.ScoringTriggered = &at
	raw, err := json.Marshal(session)
	if err == nil {
		err = uc.store.Put(ctx, session.TenantID, domain.EntitySession, session.ID, raw, 0)
	}
	if err != nil {
		slog.Warn("scoring_annotation_failed",
			"tenant_id", session.TenantID,
			"session_id", session.ID,
			"error", err,
		)
	}
}

func (uc *ScoreUseCase) observeFinish(method, outcome string, start time.Time) {
	if uc.cfg.Observer != nil {
		uc.cfg.Observer.FinishScoring(method, outcome, time.Since(start))
	}
}

// acquire takes the in-process slot first, then a TTL'd lock token in the
// tenant store so the api and worker binaries exclude each other. The TTL
// expires the token of a crashed holder.
func (uc *ScoreUseCase) acquire(ctx context.Context, tenantID, sessionID string) (bool, error) {
	key := tenantID + ":" + sessionID
	uc.mu.Lock()
	if _, busy := uc.inFlight[key]; busy {
		uc.mu.Unlock()
		return false, nil
	}
	uc.inFlight[key] = struct{}{}
	uc.mu.Unlock()

	_, err := uc.store.Get(ctx, tenantID, domain.EntityScoreLock, sessionID)
	if err == nil {
		uc.releaseLocal(key)
		return false, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		uc.releaseLocal(key)
		return false, fmt.Errorf("check scoring lock: %w", err)
	}

	token, _ := json.Marshal(map[string]string{"locked_at": time.Now().UTC().Format(time.RFC3339Nano)})
	if err := uc.store.Put(ctx, tenantID, domain.EntityScoreLock, sessionID, token, uc.cfg.LockTTL); err != nil {
		uc.releaseLocal(key)
		return false, fmt.Errorf("take scoring lock: %w", err)
	}
	return true, nil
}

func (uc *ScoreUseCase) release(ctx context.Context, tenantID, sessionID string) {
	if err := uc.store.Delete(context.WithoutCancel(ctx), tenantID, domain.EntityScoreLock, sessionID); err != nil {
		slog.Warn("scoring_lock_release_failed",
			"tenant_id", tenantID,
			"session_id", sessionID,
			"error", err,
		)
	}
	uc.releaseLocal(tenantID + ":" + sessionID)
}

func (uc *ScoreUseCase) releaseLocal(key string) {
	uc.mu.Lock()
	delete(uc.inFlight, key)
	uc.mu.Unlock()
}

func (uc *ScoreUseCase) loadSession(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
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

type categoryPayload struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

// parseCategoryScores validates the analysis payload against the expected
// schema at the boundary. Any missing category, out-of-range score, or
// malformed JSON is a tier failure, never propagated inward untyped.
func parseCategoryScores(raw string) (map[string]domain.CategoryScore, error) {
	var payload map[string]categoryPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return nil, fmt.Errorf("parse score json: %w", err)
	}
	out := make(map[string]domain.CategoryScore, len(domain.CategoryOrder))
	for _, name := range domain.CategoryOrder {
		entry, ok := payload[name]
		if !ok || entry.Score == nil {
			return nil, fmt.Errorf("score json missing category %q", name)
		}
		if *entry.Score < 0 || *entry.Score > domain.CategoryMaxScore {
			return nil, fmt.Errorf("category %q score %.2f out of [0,%d]", name, *entry.Score, domain.CategoryMaxScore)
		}
		out[name] = domain.CategoryScore{Score: *entry.Score, Feedback: entry.Feedback}
	}
	return out, nil
}
