package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AppealStatus enum constants. The workflow package owns the transition table;
// these are the only values ever written to the status column.
const (
	AppealStatusDraft     = "DRAFT"
	AppealStatusSubmitted = "SUBMITTED"
	AppealStatusApproved  = "APPROVED"
	AppealStatusRejected  = "REJECTED"
)

// Appeal is a funding request moving through draft, submission and a single
// approve/reject decision.
type Appeal struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Title               string           `gorm:"type:varchar(255);not null" json:"title"`
	Description         string           `gorm:"type:text;not null" json:"description"`
	EstimatedAmount     decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"estimated_amount"`
	ApprovedAmount      *decimal.Decimal `gorm:"type:decimal(18,2)" json:"approved_amount"` // set iff APPROVED
	BeneficiaryCategory string           `gorm:"type:varchar(100);not null;index" json:"beneficiary_category"`
	Duration            string           `gorm:"type:varchar(100);not null" json:"duration"`
	Status              string           `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	RejectionReason     *string          `gorm:"type:text" json:"rejection_reason"` // set iff REJECTED
	Remarks             string           `gorm:"type:text" json:"remarks"`
	Conditions          string           `gorm:"type:text" json:"conditions"`
	CreatedBy           uuid.UUID        `gorm:"type:uuid;not null;index" json:"created_by"`
	Creator             *User            `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	DecidedBy           *uuid.UUID       `gorm:"type:uuid" json:"decided_by"`
	Decider             *User            `gorm:"foreignKey:DecidedBy" json:"decider,omitempty"`
	SubmittedAt         *time.Time       `json:"submitted_at"`
	DecidedAt           *time.Time       `json:"decided_at"`
	Documents           []AppealDocument `gorm:"foreignKey:AppealID;constraint:OnDelete:CASCADE" json:"documents"`
	CreatedAt           time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// BeforeCreate assigns the id in Go so every dialect (postgres in prod, sqlite in tests) agrees.
func (a *Appeal) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AppealDocument is metadata for a file attached to an appeal. The bytes live in external storage.
type AppealDocument struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppealID    uuid.UUID `gorm:"type:uuid;not null;index" json:"appeal_id"`
	FileName    string    `gorm:"type:varchar(255);not null" json:"file_name"`
	ContentType string    `gorm:"type:varchar(100)" json:"content_type"`
	SizeBytes   int64     `gorm:"not null;default:0" json:"size_bytes"`
	URL         string    `gorm:"type:text" json:"url"`
	UploadedBy  uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by"`
	UploadedAt  time.Time `gorm:"not null" json:"uploaded_at"`
}

func (d *AppealDocument) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
