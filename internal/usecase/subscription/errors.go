// Package subscription provides the use cases behind feed subscriptions:
// subscribing and unsubscribing targets, listing what a target follows,
// guild settings, and the per-feed update check run by the poller.
package subscription

import (
	"errors"
	"fmt"
)

// Sentinel errors for subscription use case operations.
var (
	// ErrFeedNotFound indicates that a feed referenced by id no longer exists.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrInvalidSubscriber indicates a nil or unsaved subscriber.
	// Subscribers must come from GetOrCreateSubscriber before they are used.
	ErrInvalidSubscriber = errors.New("invalid subscriber")

	// ErrUnknownPlatform indicates a stored feed whose platform adapter is
	// not registered.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// UnexpectedResultError wraps a store failure that is not part of normal
// operation (anything other than a uniqueness violation or a missing row).
type UnexpectedResultError struct {
	Message string
	Err     error
}

func (e *UnexpectedResultError) Error() string {
	if e.Err == nil {
		return "unexpected result: " + e.Message
	}
	return fmt.Sprintf("unexpected result: %s: %v", e.Message, e.Err)
}

func (e *UnexpectedResultError) Unwrap() error { return e.Err }

func unexpected(msg string, err error) error {
	return &UnexpectedResultError{Message: msg, Err: err}
}
