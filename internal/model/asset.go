package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssetOwner enum constants
const (
	AssetOwnerITC     = "itc"
	AssetOwnerMission = "mission"
)

// AssetLink references an asset registered in an external asset register against the
// utilization that paid for it. The asset lifecycle itself lives outside this system.
type AssetLink struct {
	ID                      uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UtilizationID           uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_asset_links_utilization_asset" json:"utilization_id"`
	Utilization             *Utilization `gorm:"foreignKey:UtilizationID" json:"utilization,omitempty"`
	AssetRegistrationNumber string       `gorm:"type:varchar(100);not null;index;uniqueIndex:idx_asset_links_utilization_asset" json:"asset_registration_number"`
	AssetName               string       `gorm:"type:varchar(255);not null" json:"asset_name"`
	AssetOwner              string       `gorm:"type:varchar(20);not null;index" json:"asset_owner"`
	Notes                   string       `gorm:"type:text" json:"notes"`
	LinkedBy                uuid.UUID    `gorm:"type:uuid;not null" json:"linked_by"`
	CreatedAt               time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt               time.Time    `json:"updated_at"`
}

func (a *AssetLink) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
