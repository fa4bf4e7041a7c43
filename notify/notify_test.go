package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/notify"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestDispatcher_DeliversBeforeClose(t *testing.T) {
	rec := &recorder{}
	d := notify.NewDispatcher(rec, time.Second)

	d.Dispatch(notify.Message{Kind: notify.KindCertificateApproved, To: "a@example.com"})
	d.Dispatch(notify.Message{Kind: notify.KindBookingConfirmed, To: "b@example.com"})
	d.Close()

	require.Len(t, rec.msgs, 2)
}

func TestDispatcher_FailureDoesNotPropagate(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	d := notify.NewDispatcher(notify.NotifierFunc(func(context.Context, notify.Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("smtp down")
	}), time.Second)

	d.Dispatch(notify.Message{Kind: notify.KindEnrollmentCreated})
	d.Close()

	assert.Equal(t, 1, calls)
}

func TestDispatcher_AppliesTimeout(t *testing.T) {
	var gotDeadline bool
	d := notify.NewDispatcher(notify.NotifierFunc(func(ctx context.Context, _ notify.Message) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	}), 50*time.Millisecond)

	d.Dispatch(notify.Message{Kind: notify.KindBookingCancelled})
	d.Close()

	assert.True(t, gotDeadline)
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	rec := &recorder{}
	d := notify.NewDispatcher(rec, time.Second)
	d.Close()

	d.Dispatch(notify.Message{Kind: notify.KindCertificateRejected})
	d.Close()

	assert.Empty(t, rec.msgs)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "notify.certificate_approved", notify.RoutingKey(notify.KindCertificateApproved))
}
