package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CommunicationTrigger enum constants
const (
	TriggerApproval  = "APPROVAL"
	TriggerRejection = "REJECTION"
	TriggerManual    = "MANUAL"
)

// CommunicationChannel enum constants
const (
	ChannelEmail    = "EMAIL"
	ChannelSMS      = "SMS"
	ChannelWhatsApp = "WHATSAPP"
)

// CommunicationStatus enum constants
const (
	CommunicationPending = "PENDING"
	CommunicationSent    = "SENT"
	CommunicationFailed  = "FAILED"
)

// Communication is both the donor communication history and the delivery outbox:
// a FAILED row can be re-published later without touching the appeal it refers to.
type Communication struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AppealID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"appeal_id"`
	Trigger        string         `gorm:"column:trigger_type;type:varchar(20);not null;index" json:"trigger"`
	Channel        string         `gorm:"type:varchar(20);not null" json:"channel"`
	Subject        string         `gorm:"type:varchar(255)" json:"subject"`
	Message        string         `gorm:"type:text;not null" json:"message"`
	Recipients     datatypes.JSON `gorm:"type:jsonb" json:"recipients"`
	RecipientCount int            `gorm:"not null;default:0" json:"recipient_count"`
	Status         string         `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	LastError      string         `gorm:"type:text" json:"last_error"`
	SentBy         *uuid.UUID     `gorm:"type:uuid" json:"sent_by"`
	SentAt         *time.Time     `json:"sent_at"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (c *Communication) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
