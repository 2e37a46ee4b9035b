package domain

import "strings"

// ReconcileResult classifies what a status update did to an installment.
type ReconcileResult string

const (
	ReconcileApplied  ReconcileResult = "applied"
	ReconcileNoop     ReconcileResult = "noop"
	ReconcileConflict ReconcileResult = "conflict"
	ReconcileUnmapped ReconcileResult = "unmapped"
	ReconcileUnknown  ReconcileResult = "unknown_reference"
)

// externalStatusTable maps gateway payment statuses to installment statuses.
var externalStatusTable = map[string]InstallmentStatus{
	"approved":     InstallmentCompleted,
	"rejected":     InstallmentCancelled,
	"cancelled":    InstallmentCancelled,
	"refunded":     InstallmentRefunded,
	"charged_back": InstallmentRefunded,
	"pending":      InstallmentPending,
	"in_process":   InstallmentPending,
	"in_mediation": InstallmentPending,
	"authorized":   InstallmentPending,
}

// MapExternalStatus translates a gateway status. ok is false for unmapped values.
func MapExternalStatus(external string) (InstallmentStatus, bool) {
	s, ok := externalStatusTable[strings.ToLower(strings.TrimSpace(external))]
	return s, ok
}

// Transition is the decision taken for one (current status, target status) pair.
type Transition struct {
	From    InstallmentStatus
	To      InstallmentStatus
	Result  ReconcileResult
	Cascade bool
}

// Changed reports whether the installment must be updated.
func (t Transition) Changed() bool {
	return t.Result == ReconcileApplied
}

// ResolveTransition decides how an external status applies to the current one.
// It is pure: no I/O, safe to call repeatedly with the same input.
func ResolveTransition(current InstallmentStatus, external string) Transition {
	target, ok := MapExternalStatus(external)
	if !ok {
		return Transition{From: current, To: current, Result: ReconcileUnmapped}
	}
	return ResolveStatusChange(current, target)
}

// ResolveStatusChange applies the transition rules to an internal target status.
// Completed installments may only move to Refunded; Refunded is terminal.
func ResolveStatusChange(current, target InstallmentStatus) Transition {
	t := Transition{From: current, To: target}
	if current == target {
		t.Result = ReconcileNoop
		return t
	}

	allowed := false
	switch current {
	case InstallmentPending:
		allowed = true
	case InstallmentCancelled:
		allowed = target == InstallmentCompleted || target == InstallmentPending
	case InstallmentCompleted:
		allowed = target == InstallmentRefunded
	case InstallmentRefunded:
		allowed = false
	}
	if !allowed {
		t.To = current
		t.Result = ReconcileConflict
		return t
	}

	t.Result = ReconcileApplied
	t.Cascade = current == InstallmentCompleted || target == InstallmentCompleted
	return t
}

// InstallmentEvent returns the per-installment notification implied by an
// applied transition, if any.
func (t Transition) InstallmentEvent() (EventType, bool) {
	if !t.Changed() {
		return "", false
	}
	switch {
	case t.To == InstallmentCompleted:
		return EventPaymentValidated, true
	case t.To == InstallmentCancelled:
		return EventPaymentRejected, true
	case t.From == InstallmentCancelled && t.To == InstallmentPending:
		return EventPaymentReinstated, true
	}
	return "", false
}
