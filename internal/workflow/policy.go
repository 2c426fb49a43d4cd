package workflow

import (
	"slices"

	"donationdesk/internal/model"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Policy holds the role sets that grant workflow rights. It is configuration,
// loaded at start-up, never hard-coded in the engine.
type Policy struct {
	// CreatorRoles may create appeals. Empty means every role except viewer.
	CreatorRoles []string
	// ApproverRoles may approve or reject submitted appeals.
	ApproverRoles []string
	// OverrideRoles may edit, submit or delete appeals they did not create.
	OverrideRoles []string
}

// DefaultPolicy mirrors the role matrix of the admin UI.
func DefaultPolicy() Policy {
	return Policy{
		CreatorRoles:  []string{model.RoleSuperAdmin, model.RoleITCAdmin, model.RoleMissionAuthority, model.RoleAccountsUser},
		ApproverRoles: []string{model.RoleSuperAdmin, model.RoleMissionAuthority},
		OverrideRoles: []string{model.RoleSuperAdmin},
	}
}

func (p Policy) CanCreate(a Actor) bool {
	if len(p.CreatorRoles) == 0 {
		return a.Role != "" && a.Role != model.RoleViewer
	}
	return slices.Contains(p.CreatorRoles, a.Role)
}

func (p Policy) CanApprove(a Actor) bool {
	return slices.Contains(p.ApproverRoles, a.Role)
}

// CanManage reports whether a may edit, submit or delete the appeal.
func (p Policy) CanManage(a Actor, appeal model.Appeal) bool {
	if a.ID != uuid.Nil && a.ID == appeal.CreatedBy {
		return true
	}
	return slices.Contains(p.OverrideRoles, a.Role)
}
