package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DonationStatus enum constants
const (
	DonationPending   = "PENDING"
	DonationConfirmed = "CONFIRMED"
	DonationFailed    = "FAILED"
)

// DonationMode enum constants
const (
	DonationModeCash         = "cash"
	DonationModeCheque       = "cheque"
	DonationModeBankTransfer = "bank_transfer"
	DonationModeUPI          = "upi"
	DonationModeOnline       = "online"
)

// Donation is a receipt for money received against an appeal.
type Donation struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptNo       string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"receipt_no"`
	AppealID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"appeal_id"`
	Appeal          *Appeal         `gorm:"foreignKey:AppealID" json:"appeal,omitempty"`
	DonorName       string          `gorm:"type:varchar(255);not null" json:"donor_name"`
	DonorEmail      string          `gorm:"type:varchar(255);index" json:"donor_email"`
	DonorPhone      string          `gorm:"type:varchar(50)" json:"donor_phone"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Mode            string          `gorm:"type:varchar(20);not null" json:"mode"`
	ChequeNumber    string          `gorm:"type:varchar(50)" json:"cheque_number"`
	ChequeDate      *time.Time      `json:"cheque_date"`
	TransactionRef  string          `gorm:"type:varchar(100)" json:"transaction_ref"`
	ReceivingEntity string          `gorm:"type:varchar(100)" json:"receiving_entity"`
	ReceivedAt      time.Time       `gorm:"not null;index" json:"received_at"`
	Status          string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	FailureReason   string          `gorm:"type:text" json:"failure_reason"`
	RecordedBy      uuid.UUID       `gorm:"type:uuid;not null" json:"recorded_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (d *Donation) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Donor is a distinct contact derived from the donations recorded for an appeal.
type Donor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
