package usecase

import (
	"fmt"
	"strings"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

// Heuristic speaking-rate window, words per minute.
const (
	idealRateLow  = 110.0
	idealRateHigh = 160.0
)

// heuristicScore computes deterministic scores from transcript statistics.
// It is the tier of last resort and must always produce a valid record.
func heuristicScore(session *domain.Session, keywords []string) *domain.ScoreRecord {
	words := session.Transcript.WordCount()
	duration := session.Transcript.DurationSeconds()

	categories := map[string]domain.CategoryScore{
		domain.CategoryIdea: {
			Score:    clampScore(8 + float64(words)/50),
			Feedback: fmt.Sprintf("Derived from pitch length: %d words.", words),
		},
		domain.CategoryTechnical: {
			Score:    clampScore(7 + float64(words)/60),
			Feedback: "Derived from transcript volume; no semantic analysis available.",
		},
		domain.CategoryToolUse:      toolUseScore(session.Transcript.Text, keywords),
		domain.CategoryPresentation: presentationScore(words, duration),
		domain.CategoryImpact: {
			Score:    clampScore(6 + float64(words)/80),
			Feedback: "Derived from transcript volume; no semantic analysis available.",
		},
	}

	return &domain.ScoreRecord{Categories: categories}
}

// toolUseScore rewards mentions of the required sponsor tools.
func toolUseScore(text string, keywords []string) domain.CategoryScore {
	if len(keywords) == 0 {
		return domain.CategoryScore{
			Score:    10,
			Feedback: "No sponsor tool keywords configured.",
		}
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			matched++
		}
	}
	return domain.CategoryScore{
		Score:    clampScore(6 + 12*float64(matched)/float64(len(keywords))),
		Feedback: fmt.Sprintf("Mentioned %d of %d sponsor tools.", matched, len(keywords)),
	}
}

// presentationScore compares the estimated speaking rate against the ideal
// window. Missing timing data falls back to a neutral score.
func presentationScore(words int, durationSeconds float64) domain.CategoryScore {
	if durationSeconds <= 0 || words == 0 {
		return domain.CategoryScore{
			Score:    10,
			Feedback: "No timing data available for speaking-rate estimation.",
		}
	}
	rate := float64(words) / (durationSeconds / 60)
	score := 18.0
	switch {
	case rate < idealRateLow:
		score -= (idealRateLow - rate) / 10
	case rate > idealRateHigh:
		score -= (rate - idealRateHigh) / 10
	}
	return domain.CategoryScore{
		Score:    clampScore(score),
		Feedback: fmt.Sprintf("Estimated speaking rate: %.0f words per minute.", rate),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > domain.CategoryMaxScore {
		return domain.CategoryMaxScore
	}
	return v
}
