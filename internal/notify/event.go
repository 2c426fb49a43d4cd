package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
)

// Event kinds double as AMQP routing keys.
const (
	KindAppealApproved = "appeal.approved"
	KindAppealRejected = "appeal.rejected"
	KindAppealManual   = "appeal.manual"
	KindAppealStatus   = "appeal.status"
)

// Event is one donor communication (or status change) handed to a transport.
type Event struct {
	ID         uuid.UUID     `json:"id"`
	Kind       string        `json:"kind"`
	AppealID   uuid.UUID     `json:"appeal_id"`
	Status     string        `json:"status,omitempty"`
	Channel    string        `json:"channel,omitempty"`
	Subject    string        `json:"subject,omitempty"`
	Message    string        `json:"message,omitempty"`
	Recipients []model.Donor `json:"recipients,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// KindForTrigger maps a communication trigger onto its routing key.
func KindForTrigger(trigger string) string {
	switch trigger {
	case model.TriggerApproval:
		return KindAppealApproved
	case model.TriggerRejection:
		return KindAppealRejected
	default:
		return KindAppealManual
	}
}

// FromCommunication rebuilds the delivery event of a stored communication row.
func FromCommunication(c model.Communication) (Event, error) {
	var recipients []model.Donor
	if len(c.Recipients) > 0 {
		if err := json.Unmarshal(c.Recipients, &recipients); err != nil {
			return Event{}, fmt.Errorf("decode recipients of communication %s: %w", c.ID, err)
		}
	}
	return Event{
		ID:         c.ID,
		Kind:       KindForTrigger(c.Trigger),
		AppealID:   c.AppealID,
		Channel:    strings.ToLower(c.Channel),
		Subject:    c.Subject,
		Message:    c.Message,
		Recipients: recipients,
		OccurredAt: time.Now().UTC(),
	}, nil
}
