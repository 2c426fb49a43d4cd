package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Beneficiary is a person helped by an appeal, with their feedback on the impact received.
type Beneficiary struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppealID       uuid.UUID `gorm:"type:uuid;not null;index" json:"appeal_id"`
	Appeal         *Appeal   `gorm:"foreignKey:AppealID" json:"appeal,omitempty"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Phone          string    `gorm:"type:varchar(50)" json:"phone"`
	Email          string    `gorm:"type:varchar(255)" json:"email"`
	Location       string    `gorm:"type:text" json:"location"`
	Category       string    `gorm:"type:varchar(100);not null;index" json:"category"`
	ImpactReceived string    `gorm:"type:text" json:"impact_received"`
	FeedbackRating int       `gorm:"type:int;not null;default:0" json:"feedback_rating"` // 0 = no feedback yet, else 1..5
	FeedbackText   string    `gorm:"type:text" json:"feedback_text"`
	RegisteredBy   uuid.UUID `gorm:"type:uuid;not null" json:"registered_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (b *Beneficiary) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
