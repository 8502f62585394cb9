// Package push defines the push delivery contract: a structured message sent
// to one device token, and typed failures that let callers distinguish a dead
// token from a retryable problem.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a delivery failure.
type FailureKind string

const (
	// KindTokenInvalid means the device token is permanently unregistered.
	KindTokenInvalid FailureKind = "token_invalid"
	// KindTransient covers network errors, quota and server side failures.
	KindTransient FailureKind = "transient"
	// KindMalformed means the provider rejected the message itself.
	KindMalformed FailureKind = "malformed"
)

var (
	// ErrTokenInvalid matches delivery errors of kind KindTokenInvalid.
	ErrTokenInvalid = errors.New("push: token no longer valid")
	// ErrTransient matches delivery errors of kind KindTransient.
	ErrTransient = errors.New("push: transient delivery failure")
	// ErrMalformed matches delivery errors of kind KindMalformed.
	ErrMalformed = errors.New("push: malformed message")
)

// DeliveryError is returned by Client.Send on failure.
type DeliveryError struct {
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("push: %s", e.Kind)
	}
	return fmt.Sprintf("push: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the provider error.
func (e *DeliveryError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *DeliveryError) Is(target error) bool {
	switch target {
	case ErrTokenInvalid:
		return e.Kind == KindTokenInvalid
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// Fail wraps err as a delivery failure of kind.
func Fail(kind FailureKind, err error) error {
	return &DeliveryError{Kind: kind, Err: err}
}

// KindOf classifies err. Errors that are not a DeliveryError, including
// context errors, are transient.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var dErr *DeliveryError
	if errors.As(err, &dErr) {
		return dErr.Kind
	}
	return KindTransient
}

// Priority is the delivery priority hint.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Hints carries platform specific presentation directives.
type Hints struct {
	Priority          Priority
	Sound             string
	Icon              string
	AndroidChannel    string
	Visibility        string
	APNSCategory      string
	InterruptionLevel string
	TTL               time.Duration
}

// Message is a rendered notification for one device.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
	Hints Hints
}

// Client delivers messages.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
