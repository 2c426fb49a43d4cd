package notify

import (
	"context"
	"errors"
	"testing"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type captureHub struct {
	got []any
}

func (h *captureHub) BroadcastJSON(v any) error {
	h.got = append(h.got, v)
	return nil
}

func TestMulti_JoinsErrors(t *testing.T) {
	var calls int
	ok := PublisherFunc(func(context.Context, Event) error { calls++; return nil })
	bad := PublisherFunc(func(context.Context, Event) error { calls++; return errors.New("broker down") })

	err := Multi{ok, nil, bad}.Publish(context.Background(), Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, 2, calls)

	assert.NoError(t, Multi{ok, LogPublisher{}}.Publish(context.Background(), Event{}))
}

func TestHubPublisher_StripsDonorData(t *testing.T) {
	hub := &captureHub{}
	ev := Event{Kind: KindAppealApproved, Message: "Dear donor", Recipients: []model.Donor{{Email: "a@b.c"}}}

	require.NoError(t, HubPublisher{Hub: hub}.Publish(context.Background(), ev))
	require.Len(t, hub.got, 1)
	sent := hub.got[0].(Event)
	assert.Empty(t, sent.Recipients)
	assert.Empty(t, sent.Message)
	assert.Equal(t, KindAppealApproved, sent.Kind)
}

func TestFromCommunication(t *testing.T) {
	c := model.Communication{
		ID:         uuid.New(),
		AppealID:   uuid.New(),
		Trigger:    model.TriggerRejection,
		Channel:    model.ChannelSMS,
		Message:    "hello",
		Recipients: datatypes.JSON(`[{"name":"Ravi","email":"","phone":"+91"}]`),
	}

	ev, err := FromCommunication(c)
	require.NoError(t, err)
	assert.Equal(t, KindAppealRejected, ev.Kind)
	assert.Equal(t, "sms", ev.Channel)
	require.Len(t, ev.Recipients, 1)
	assert.Equal(t, "Ravi", ev.Recipients[0].Name)

	c.Recipients = datatypes.JSON(`{bad`)
	_, err = FromCommunication(c)
	assert.Error(t, err)
}
