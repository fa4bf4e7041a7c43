/*
store.go - Audit log interface shared by the domain stores

PURPOSE:
  Every money- or certificate-affecting action is recorded with who did it
  and when. The audit log is separate from the domain tables and, like the
  domain ledgers it observes, append-only.

KEY INTERFACES:
  AuditLog: Append + Query over AuditEntry

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - Query(): Filtered read, newest first
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/sqlite/audit.go: SQLite audit_log table
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - certificate/workflow.go: Records every approval transition
  - payment/reconciler.go: Records reconciliations
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Separate from domain tables, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	ActorRole  Role
	Action     AuditAction
	EntityType string
	EntityID   string
	Details    map[string]any
}

type AuditAction string

const (
	AuditCertificateCreated  AuditAction = "certificate_created"
	AuditFinanceConfirmed    AuditAction = "finance_confirmed"
	AuditCertificateApproved AuditAction = "certificate_approved"
	AuditCertificateRejected AuditAction = "certificate_rejected"
	AuditPaymentReconciled   AuditAction = "payment_reconciled"
	AuditPaymentFailed       AuditAction = "payment_failed"
	AuditBookingCreated      AuditAction = "booking_created"
	AuditBookingCancelled    AuditAction = "booking_cancelled"
	AuditBookingHoldExpired  AuditAction = "booking_hold_expired"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Actions    []AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Matches reports whether e passes the filter. Stores that cannot push a
// filter down to their query language use this.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
