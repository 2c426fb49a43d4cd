package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCreateAppeal   = "CREATE_APPEAL"
	ActionUpdateAppeal   = "UPDATE_APPEAL"
	ActionDeleteAppeal   = "DELETE_APPEAL"
	ActionAttachDocument = "ATTACH_DOCUMENT"

	// Workflow transitions
	ActionSubmitAppeal  = "SUBMIT_APPEAL"
	ActionApproveAppeal = "APPROVE_APPEAL"
	ActionRejectAppeal  = "REJECT_APPEAL"

	ActionRecordDonation    = "RECORD_DONATION"
	ActionConfirmDonation   = "CONFIRM_DONATION"
	ActionFailDonation      = "FAIL_DONATION"
	ActionUpdateDonation    = "UPDATE_DONATION"
	ActionRecordUtilization = "RECORD_UTILIZATION"
	ActionUpdateUtilization = "UPDATE_UTILIZATION"
	ActionLinkAsset         = "LINK_ASSET"
	ActionUnlinkAsset       = "UNLINK_ASSET"
	ActionAddBeneficiary    = "ADD_BENEFICIARY"
	ActionUpdateBeneficiary = "UPDATE_BENEFICIARY"
	ActionSendCommunication = "SEND_COMMUNICATION"
	ActionCreateUser        = "CREATE_USER"
	ActionUpdateUser        = "UPDATE_USER"
	ActionDeleteUser        = "DELETE_USER"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for scheduler-driven writes
	User       *User          `gorm:"foreignKey:UserID" json:"user"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
