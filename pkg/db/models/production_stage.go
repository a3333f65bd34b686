package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/loomline/erp-backend/pkg/enums"
)

// ProductionStage is one pipeline step of a production order.
type ProductionStage struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	StageName            enums.StageName   `gorm:"column:stage_name;type:stage_name;not null"`
	SequenceIndex        int               `gorm:"column:sequence_index;not null"`
	Status               enums.StageStatus `gorm:"column:status;type:stage_status;not null;default:'pending'"`
	ActualStartTime      *time.Time        `gorm:"column:actual_start_time"`
	ActualEndTime        *time.Time        `gorm:"column:actual_end_time"`
	QuantityProcessed    int               `gorm:"column:quantity_processed;not null;default:0"`
	QuantityApproved     int               `gorm:"column:quantity_approved;not null;default:0"`
	QuantityRejected     int               `gorm:"column:quantity_rejected;not null;default:0"`
	MaterialUsed         decimal.Decimal   `gorm:"column:material_used;type:numeric(14,3);not null;default:0"`
	Outsourced           bool              `gorm:"column:outsourced;not null;default:false"`
	VendorRef            *string           `gorm:"column:vendor_ref"`
	OutwardDocumentRef   *string           `gorm:"column:outward_document_ref"`
	InwardDocumentRef    *string           `gorm:"column:inward_document_ref"`
	DispatchedAt         *time.Time        `gorm:"column:dispatched_at"`
	ReceivedAt           *time.Time        `gorm:"column:received_at"`
	Notes                *string           `gorm:"column:notes"`
	RejectionsReportedAt *time.Time        `gorm:"column:rejections_reported_at"`
	Version              int               `gorm:"column:version;not null;default:0"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
