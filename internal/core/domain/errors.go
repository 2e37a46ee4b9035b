package domain

import "errors"

// Sentinel errors shared by services and adapters. Adapters wrap them with
// context; callers test with errors.Is.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrRecipientInvalid = errors.New("invalid recipient")
	ErrNoTargets        = errors.New("no delivery targets")
	ErrStatusConflict   = errors.New("status changed concurrently")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicateRef     = errors.New("external reference already in use")
	ErrLockNotAcquired  = errors.New("lock not acquired")
)
