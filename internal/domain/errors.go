package domain

import "errors"

var (
	// ErrNotFoundOrUnauthorized deliberately covers both a missing order and an
	// order owned by someone else, so the API never confirms another user's
	// order exists.
	ErrNotFoundOrUnauthorized = errors.New("order not found or not yours")

	// ErrOrderNotFound is for completion callbacks, where the caller is the
	// gateway and there is no ownership to hide.
	ErrOrderNotFound = errors.New("order not found")

	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrSequenceUnavailable means the per-restaurant queue number could not be
	// allocated. The paid flag is already set, so the caller must retry the
	// completion until it succeeds.
	ErrSequenceUnavailable = errors.New("queue sequence unavailable")

	ErrInvalidTransition = errors.New("invalid status transition")

	ErrNotQueued = errors.New("order has no queue entry")
)
