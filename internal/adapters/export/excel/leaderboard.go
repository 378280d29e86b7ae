// Package excel renders leaderboard exports for judges.
package excel

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

const sheetName = "Leaderboard"

// Leaderboard renders rank entries into a single-sheet .xlsx workbook.
func Leaderboard(tenantID string, entries []domain.RankEntry) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headers := []any{"Rank", "Team", "Session ID", "Total Score", "Tie Break", "Scored At"}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	for i, entry := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row coordinates: %w", err)
		}
		row := []any{
			entry.Rank,
			entry.TeamName,
			entry.SessionID,
			entry.TotalScore,
			entry.TieBreak,
			entry.ScoredAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Leaderboard " + tenantID,
		Creator: "pitchscore",
	}); err != nil {
		return nil, fmt.Errorf("set doc props: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}
