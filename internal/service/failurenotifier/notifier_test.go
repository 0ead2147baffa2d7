package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmail/internal/observability/notify"
)

type capture struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
	ctxErrs  []error
}

func (c *capture) sink() notify.Sink {
	return notify.SinkFunc(func(ctx context.Context, payload notify.JobFailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.payloads = append(c.payloads, payload)
		c.ctxErrs = append(c.ctxErrs, ctx.Err())
		return nil
	})
}

func TestServiceNotifyJobFailure(t *testing.T) {
	var a, b capture
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "a", Sink: a.sink()},
			{Name: "nil"},
			{Sink: b.sink()},
		},
	})
	require.True(t, svc.Enabled())

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123", Kind: "find"})

	require.Len(t, a.payloads, 1)
	require.Len(t, b.payloads, 1)
	assert.Equal(t, notify.SeverityCritical, a.payloads[0].Severity)
	assert.False(t, a.payloads[0].OccurredAt.IsZero())
	assert.Equal(t, "find", b.payloads[0].Kind)
}

func TestServiceKeepsExplicitSeverity(t *testing.T) {
	var c capture
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "c", Sink: c.sink()}}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1", Severity: notify.SeverityError})

	require.Len(t, c.payloads, 1)
	assert.Equal(t, notify.SeverityError, c.payloads[0].Severity)
}

func TestServiceDeliversAfterCallerCancel(t *testing.T) {
	var c capture
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "c", Sink: c.sink()}}, DeliveryTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{JobID: "1"})

	require.Len(t, c.ctxErrs, 1)
	assert.NoError(t, c.ctxErrs[0])
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"})

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"})
}

func TestServiceLogsErrors(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})
}
