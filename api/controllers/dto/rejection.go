package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomline/erp-backend/pkg/db/models"
)

type RejectionLine struct {
	ID         uuid.UUID `json:"id"`
	StageID    uuid.UUID `json:"stageId"`
	LineNumber int       `json:"lineNumber"`
	Reason     string    `json:"reason"`
	Quantity   int       `json:"quantity"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func NewRejectionLine(line *models.RejectionLine) RejectionLine {
	if line == nil {
		return RejectionLine{}
	}
	return RejectionLine{
		ID:         line.ID,
		StageID:    line.StageID,
		LineNumber: line.LineNumber,
		Reason:     line.Reason,
		Quantity:   line.Quantity,
		Notes:      line.Notes,
		CreatedAt:  line.CreatedAt,
	}
}

func NewRejectionLines(lines []models.RejectionLine) []RejectionLine {
	out := make([]RejectionLine, 0, len(lines))
	for i := range lines {
		out = append(out, NewRejectionLine(&lines[i]))
	}
	return out
}
