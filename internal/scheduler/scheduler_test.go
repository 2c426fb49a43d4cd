package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retrierStub struct {
	calls atomic.Int32
	sent  int
	err   error
}

func (r *retrierStub) RetryFailed(ctx context.Context) (int, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	return r.sent, r.err
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestRetryNotifications(t *testing.T) {
	var buf bytes.Buffer
	r := &retrierStub{sent: 2}
	New(r, testLogger(&buf), "@every 1m").RetryNotifications()

	assert.EqualValues(t, 1, r.calls.Load())
	assert.Contains(t, buf.String(), "sent=2")
}

func TestRetryNotificationsLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	r := &retrierStub{err: errors.New("db down")}
	New(r, testLogger(&buf), "@every 1m").RetryNotifications()

	assert.Contains(t, buf.String(), "notification retry job failed")
	assert.Contains(t, buf.String(), "db down")
}

func TestStart(t *testing.T) {
	var buf bytes.Buffer

	t.Run("empty schedule disables the job", func(t *testing.T) {
		s := New(&retrierStub{}, testLogger(&buf), "")
		require.NoError(t, s.Start())
		assert.Empty(t, s.cron.Entries())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		s := New(&retrierStub{}, testLogger(&buf), "every now and then")
		assert.Error(t, s.Start())
	})

	t.Run("runs on schedule", func(t *testing.T) {
		r := &retrierStub{}
		s := New(r, testLogger(&buf), "@every 1s")
		require.NoError(t, s.Start())
		defer s.Stop()

		assert.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	})
}
