/*
notify.go - Best-effort notifications

PURPOSE:
  Approvals, bookings and enrollments tell someone about themselves: an
  email to the student, a message on a queue for the mailer. None of that
  may hold up or fail the operation that triggered it. The Dispatcher hands
  each message to a Notifier on its own goroutine with a timeout and only
  logs what goes wrong.

KEY TYPES:
  Message:    What to send (kind, recipient, subject, data)
  Notifier:   Something that can send a Message (log, AMQP)
  Sink:       What domain code depends on; Dispatch never blocks or fails
  Dispatcher: Sink that runs a Notifier asynchronously

SEE ALSO:
  - amqp.go: RabbitMQ notifier
  - certificate/workflow.go, booking/service.go, payment/reconciler.go: Senders
*/
package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

type Kind string

const (
	KindCertificateApproved Kind = "certificate_approved"
	KindCertificateRejected Kind = "certificate_rejected"
	KindBookingConfirmed    Kind = "booking_confirmed"
	KindBookingCancelled    Kind = "booking_cancelled"
	KindEnrollmentCreated   Kind = "enrollment_created"
)

type Message struct {
	Kind    Kind           `json:"kind"`
	To      string         `json:"to"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notifier delivers a message. Implementations may block.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sink accepts messages for delivery without blocking the caller and
// without reporting failure.
type Sink interface {
	Dispatch(msg Message)
}

// =============================================================================
// DISPATCHER
// =============================================================================

const DefaultTimeout = 10 * time.Second

type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Dispatch sends msg in the background. Messages dispatched after Close are
// dropped.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Printf("[Notify] dispatcher closed, dropping %s to %s", msg.Kind, msg.To)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, msg); err != nil {
			log.Printf("[Notify] %s to %s failed: %v", msg.Kind, msg.To, err)
		}
	}()
}

// Close stops accepting messages and waits for in-flight sends.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// =============================================================================
// SIMPLE SINKS AND NOTIFIERS
// =============================================================================

type discard struct{}

func (discard) Dispatch(Message) {}

// Discard drops every message.
var Discard Sink = discard{}

// LogNotifier writes messages to the standard logger. Used when no broker
// is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, msg Message) error {
	log.Printf("[Notify] %s to=%s subject=%q", msg.Kind, msg.To, msg.Subject)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }
