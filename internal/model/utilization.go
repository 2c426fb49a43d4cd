package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus enum constants
const (
	PaymentPending = "pending"
	PaymentPartial = "partial"
	PaymentPaid    = "paid"
)

// Utilization records money spent against an approved appeal.
type Utilization struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AppealID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"appeal_id"`
	Appeal          *Appeal         `gorm:"foreignKey:AppealID" json:"appeal,omitempty"`
	UtilizationDate time.Time       `gorm:"type:date;not null;index" json:"utilization_date"`
	Description     string          `gorm:"type:text;not null" json:"description"`
	AmountUtilized  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount_utilized"`
	VendorName      string          `gorm:"type:varchar(255)" json:"vendor_name"`
	VendorDetails   string          `gorm:"type:text" json:"vendor_details"`
	InvoiceNumber   string          `gorm:"type:varchar(100)" json:"invoice_number"`
	PONumber        string          `gorm:"column:po_number;type:varchar(100)" json:"po_number"`
	PaymentStatus   string          `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	CreatedBy       uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (u *Utilization) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
