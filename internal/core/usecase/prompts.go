package usecase

import (
	"fmt"
	"strings"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

const (
	maxQueryChars      = 2000
	maxTranscriptChars = 8000
)

const scoreSchemaHint = `{"idea":{"score":0,"feedback":""},"technical":{"score":0,"feedback":""},"tool_use":{"score":0,"feedback":""},"presentation":{"score":0,"feedback":""},"impact":{"score":0,"feedback":""}}`

// fixedRubricText is the embedded tier-2 rubric used when no rubric
// documents are retrievable.
const fixedRubricText = `Score each category from 0 to 20:
- idea: originality and clarity of the problem and solution.
- technical: depth and soundness of the technical implementation.
- tool_use: effective use of the sponsor tools and platform features.
- presentation: structure, pacing, and clarity of the spoken pitch.
- impact: potential real-world value and audience relevance.`

func buildRAGPrompt(session *domain.Session, rubricHits []domain.RetrievedDocument, transcriptDoc *domain.RetrievedDocument) string {
	var rubric strings.Builder
	for i, hit := range rubricHits {
		fmt.Fprintf(&rubric, "[%d] similarity=%.3f\n%s\n\n", i+1, hit.Similarity, hit.Document.Text)
	}

	var prior string
	if transcriptDoc != nil {
		prior = "Previously indexed transcript version:\n" + truncateText(transcriptDoc.Document.Text, maxTranscriptChars) + "\n\n"
	}

	return fmt.Sprintf(`You are a pitch competition judge.
Score the pitch below against the retrieved rubric material.
Return a strict JSON object shaped exactly like:
%s
Every score is a number from 0 to 20. No markdown, no extra keys.

Rubric material:
%s
%sTeam: %s
Title: %s

Pitch transcript:
%s
`, scoreSchemaHint, rubric.String(), prior, session.TeamName, session.Title, truncateText(session.Transcript.Text, maxTranscriptChars))
}

func buildDirectPrompt(session *domain.Session) string {
	return fmt.Sprintf(`You are a pitch competition judge.
Score the pitch below using this rubric:
%s

Return a strict JSON object shaped exactly like:
%s
Every score is a number from 0 to 20. No markdown, no extra keys.

Team: %s
Title: %s

Pitch transcript:
%s
`, fixedRubricText, scoreSchemaHint, session.TeamName, session.Title, truncateText(session.Transcript.Text, maxTranscriptChars))
}

// truncateText bounds a prompt section to max runes. Cutting on a rune
// boundary keeps multibyte transcripts valid UTF-8.
func truncateText(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
