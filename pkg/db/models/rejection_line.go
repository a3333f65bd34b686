package models

import (
	"time"

	"github.com/google/uuid"
)

// RejectionLine attributes part of a stage's rejected quantity to a cause.
type RejectionLine struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StageID    uuid.UUID `gorm:"column:stage_id;type:uuid;not null"`
	LineNumber int       `gorm:"column:line_number;not null"`
	Reason     string    `gorm:"column:reason;not null"`
	Quantity   int       `gorm:"column:quantity;not null"`
	Notes      *string   `gorm:"column:notes"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RejectionLine) TableName() string {
	return "stage_rejection_lines"
}
