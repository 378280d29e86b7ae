package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

type RankingConfig struct {
	// TieBreakCategory is the primary tie-break on equal totals.
	TieBreakCategory string
	// CacheTTL bounds snapshot staleness. Invalidate only reaches the
	// process that scored the session; other processes age out via the TTL.
	CacheTTL time.Duration
}

func (c RankingConfig) normalize() RankingConfig {
	out := c
	if out.TieBreakCategory == "" {
		out.TieBreakCategory = domain.CategoryTechnical
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = 15 * time.Second
	}
	return out
}

// RankUseCase recomputes the tenant leaderboard in full on every rebuild.
// Event fields are tens to low hundreds of sessions, so recomputation beats
// maintaining an incremental structure under concurrent score rewrites.
type RankUseCase struct {
	store ports.TenantStore
	cfg   RankingConfig
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]*domain.Leaderboard
}

func NewRankUseCase(store ports.TenantStore, cfg RankingConfig) *RankUseCase {
	return &RankUseCase{
		store: store,
		cfg:   cfg.normalize(),
		now:   time.Now,
		cache: make(map[string]*domain.Leaderboard),
	}
}

// Rank returns the tenant leaderboard: descending total, ties broken by the
// configured category score, then earlier scored_at, then session id. The
// ordering is a pure function of the current score records.
func (uc *RankUseCase) Rank(ctx context.Context, tenantID string) ([]domain.RankEntry, error) {
	uc.mu.Lock()
	if snapshot, ok := uc.cache[tenantID]; ok && uc.now().Sub(snapshot.ComputedAt) < uc.cfg.CacheTTL {
		entries := append([]domain.RankEntry(nil), snapshot.Entries...)
		uc.mu.Unlock()
		return entries, nil
	}
	uc.mu.Unlock()

	records, err := uc.loadScores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	teams, err := uc.loadTeamNames(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RankEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, domain.RankEntry{
			SessionID:  rec.SessionID,
			TeamName:   teams[rec.SessionID],
			TotalScore: rec.TotalScore,
			TieBreak:   rec.Categories[uc.cfg.TieBreakCategory].Score,
			ScoredAt:   rec.ScoredAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.TieBreak != b.TieBreak {
			return a.TieBreak > b.TieBreak
		}
		if !a.ScoredAt.Equal(b.ScoredAt) {
			return a.ScoredAt.Before(b.ScoredAt)
		}
		return a.SessionID < b.SessionID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	uc.mu.Lock()
	uc.cache[tenantID] = &domain.Leaderboard{
		TenantID:   tenantID,
		Entries:    append([]domain.RankEntry(nil), entries...),
		ComputedAt: uc.now().UTC(),
	}
	uc.mu.Unlock()
	return entries, nil
}

// Invalidate drops the cached snapshot; the next Rank call rebuilds it.
func (uc *RankUseCase) Invalidate(tenantID string) {
	uc.mu.Lock()
	delete(uc.cache, tenantID)
	uc.mu.Unlock()
}

func (uc *RankUseCase) loadScores(ctx context.Context, tenantID string) ([]domain.ScoreRecord, error) {
	stored, err := uc.store.ScanPrefix(ctx, tenantID, domain.EntityScore)
	if err != nil {
		return nil, fmt.Errorf("scan scores: %w", err)
	}
	records := make([]domain.ScoreRecord, 0, len(stored))
	for _, entry := range stored {
		var rec domain.ScoreRecord
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode score %s: %w", entry.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (uc *RankUseCase) loadTeamNames(ctx context.Context, tenantID string) (map[string]string, error) {
	stored, err := uc.store.ScanPrefix(ctx, tenantID, domain.EntitySession)
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	teams := make(map[string]string, len(stored))
	for _, entry := range stored {
		var session domain.Session
		if err := json.Unmarshal(entry.Value, &session); err != nil {
			continue
		}
		teams[session.ID] = session.TeamName
	}
	return teams, nil
}
