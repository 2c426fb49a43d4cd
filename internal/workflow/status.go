package workflow

import (
	"fmt"
	"strings"

	"donationdesk/internal/model"
)

// Status is the appeal life-cycle discriminant.
type Status string

const (
	Draft     Status = model.AppealStatusDraft
	Submitted Status = model.AppealStatusSubmitted
	Approved  Status = model.AppealStatusApproved
	Rejected  Status = model.AppealStatusRejected
)

// Statuses lists every status in life-cycle order.
var Statuses = []Status{Draft, Submitted, Approved, Rejected}

// legacyAliases maps status spellings seen in older clients onto the canonical set.
var legacyAliases = map[string]Status{
	"PENDING": Submitted,
}

// ParseStatus validates a status crossing a boundary (request parameter, stored row).
// Canonical names are matched case-insensitively; unknown values are rejected.
func ParseStatus(raw string) (Status, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch Status(s) {
	case Draft, Submitted, Approved, Rejected:
		return Status(s), nil
	}
	if alias, ok := legacyAliases[s]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown appeal status %q", raw)
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == Approved || s == Rejected
}

func (s Status) String() string {
	return string(s)
}

// Action is a command that may move an appeal between statuses.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"

	// Edit and delete never change status but are only allowed in DRAFT.
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// transitions is the complete table. A missing entry means the action is not allowed.
var transitions = map[Status]map[Action]Status{
	Draft: {
		ActionSubmit: Submitted,
		ActionEdit:   Draft,
		ActionDelete: Draft,
	},
	Submitted: {
		ActionApprove: Approved,
		ActionReject:  Rejected,
	},
	Approved: {},
	Rejected: {},
}

// Next returns the status reached by applying action in from, or an
// *InvalidTransitionError when the table has no such edge.
func Next(from Status, action Action) (Status, error) {
	if to, ok := transitions[from][action]; ok {
		return to, nil
	}
	return "", &InvalidTransitionError{From: from, Action: action, Required: requiredFor(action)}
}

// requiredFor returns the single status from which action is legal.
func requiredFor(action Action) Status {
	for _, from := range Statuses {
		if _, ok := transitions[from][action]; ok {
			return from
		}
	}
	return ""
}
