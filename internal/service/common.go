package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/notify"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const timeLayout = time.RFC3339

// parseID turns a path or body id into a uuid, reporting field on failure.
func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, workflow.NewValidationError(field, "must be a valid id")
	}
	return id, nil
}

func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// auditEntry builds an audit row for actor. Details are stored as JSON; a nil map stores nothing.
func auditEntry(actor workflow.Actor, action, entityID, entityName string, details map[string]any) *model.AuditLog {
	entry := &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		entry.UserID = &id
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}
	return entry
}

// validAmount applies the money rule shared by every record: positive, at most two decimals.
func validAmount(v *workflow.ValidationError, field string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		v.Add(field, "must be greater than 0")
		return
	}
	if !amount.Equal(amount.Truncate(2)) {
		v.Add(field, "must have at most 2 decimal places")
	}
}

// requireStatus loads the appeal behind a record and checks that it is in one of allowed.
func requireStatus(ctx context.Context, find func(context.Context, uuid.UUID) (*model.Appeal, error), field string, id uuid.UUID, allowed ...workflow.Status) (*model.Appeal, error) {
	appeal, err := find(ctx, id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, workflow.NewValidationError(field, "appeal does not exist")
		}
		return nil, err
	}
	names := make([]string, 0, len(allowed))
	for _, st := range allowed {
		if appeal.Status == string(st) {
			return appeal, nil
		}
		names = append(names, string(st))
	}
	return nil, workflow.NewValidationError(field, "appeal must be "+strings.Join(names, " or ")+" (current: "+appeal.Status+")")
}

// publishFeed mirrors an event to the live feed. Failures only cost a UI refresh.
func publishFeed(ctx context.Context, feed notify.Publisher, event notify.Event) {
	if feed == nil {
		return
	}
	if err := feed.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "live feed publish failed", "kind", event.Kind, "appeal_id", event.AppealID, "error", err)
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func userName(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.Name
}
