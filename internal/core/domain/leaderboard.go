package domain

import "time"

// RankEntry is one row of a tenant leaderboard.
type RankEntry struct {
	Rank       int       `json:"rank"`
	SessionID  string    `json:"session_id"`
	TeamName   string    `json:"team_name,omitempty"`
	TotalScore float64   `json:"total_score"`
	TieBreak   float64   `json:"tie_break_key"`
	ScoredAt   time.Time `json:"scored_at"`
}

// Leaderboard is a derived snapshot: always a cache of a pure function over
// the tenant's score records, never a source of truth.
type Leaderboard struct {
	TenantID   string      `json:"tenant_id"`
	Entries    []RankEntry `json:"entries"`
	ComputedAt time.Time   `json:"computed_at"`
}
