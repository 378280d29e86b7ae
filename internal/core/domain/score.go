package domain

import (
	"fmt"
	"time"
)

type ScoringMethod string

const (
	MethodRAGEnhanced   ScoringMethod = "rag_enhanced"
	MethodStructuredLLM ScoringMethod = "structured_llm"
	MethodHeuristic     ScoringMethod = "heuristic"
)

// Scoring categories. Order is the canonical presentation order and the
// order category feedback is rendered in prompts and exports.
const (
	CategoryIdea         = "idea"
	CategoryTechnical    = "technical"
	CategoryToolUse      = "tool_use"
	CategoryPresentation = "presentation"
	CategoryImpact       = "impact"
)

var CategoryOrder = []string{
	CategoryIdea,
	CategoryTechnical,
	CategoryToolUse,
	CategoryPresentation,
	CategoryImpact,
}

// CategoryMaxScore caps every category; totals are bounded by 5x this value.
const CategoryMaxScore = 20

type CategoryScore struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback,omitempty"`
}

// ScoreRecord is the single scoring result for one session. At most one
// exists per (tenant, session); re-scoring overwrites, never duplicates.
type ScoreRecord struct {
	SessionID   string                   `json:"session_id"`
	TenantID    string                   `json:"tenant_id"`
	JudgeID     string                   `json:"judge_id,omitempty"`
	Categories  map[string]CategoryScore `json:"categories"`
	TotalScore  float64                  `json:"total_score"`
	MethodUsed  ScoringMethod            `json:"method_used"`
	ScoredAt    time.Time                `json:"scored_at"`
	ContextRefs []string                 `json:"scoring_context_refs,omitempty"`
}

// RecomputeTotal keeps the total consistent with the category sum. The total
// is never edited independently.
func (r *ScoreRecord) RecomputeTotal() {
	total := 0.0
	for _, c := range r.Categories {
		total += c.Score
	}
	r.TotalScore = total
}

// Validate checks category completeness, per-category bounds, and that the
// total equals the category sum.
func (r *ScoreRecord) Validate() error {
	if len(r.Categories) != len(CategoryOrder) {
		return WrapError(ErrInvalidInput, "validate score",
			fmt.Errorf("expected %d categories, got %d", len(CategoryOrder), len(r.Categories)))
	}
	sum := 0.0
	for _, name := range CategoryOrder {
		c, ok := r.Categories[name]
		if !ok {
			return WrapError(ErrInvalidInput, "validate score",
				fmt.Errorf("missing category %q", name))
		}
		if c.Score < 0 || c.Score > CategoryMaxScore {
			return WrapError(ErrInvalidInput, "validate score",
				fmt.Errorf("category %q score %.2f out of [0,%d]", name, c.Score, CategoryMaxScore))
		}
		sum += c.Score
	}
	if diff := r.TotalScore - sum; diff > 1e-6 || diff < -1e-6 {
		return WrapError(ErrInvalidInput, "validate score",
			fmt.Errorf("total %.2f does not match category sum %.2f", r.TotalScore, sum))
	}
	return nil
}
