package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomline/erp-backend/pkg/enums"
)

// ProductionOrder is a confirmed garment order driven through the stage pipeline.
type ProductionOrder struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string            `gorm:"column:order_number;not null;uniqueIndex"`
	ProductRef        string            `gorm:"column:product_ref;not null"`
	TargetQuantity    int               `gorm:"column:target_quantity;not null"`
	Decoration        enums.Decoration  `gorm:"column:decoration;type:text;not null;default:'none'"`
	NeedsManualReview bool              `gorm:"column:needs_manual_review;not null;default:false"`
	Stages            []ProductionStage `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
