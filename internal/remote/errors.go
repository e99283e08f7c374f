package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failure reported by a mailbox backend
type Kind int

const (
	KindOther Kind = iota
	KindUnauthorized
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindRateLimited:
		return "rate limited"
	default:
		return "other"
	}
}

// Error is the only error type backends return for remote failures
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (%s, status %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or KindOther for foreign errors
func KindOf(err error) Kind {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return KindOther
}

// IsUnauthorized reports whether err is an authentication failure
func IsUnauthorized(err error) bool {
	return err != nil && KindOf(err) == KindUnauthorized
}

// IsNotFound reports whether the remote item does not exist
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// KindForStatus maps an HTTP status to a failure kind
func KindForStatus(status int) Kind {
	switch status {
	case 401:
		return KindUnauthorized
	case 404:
		return KindNotFound
	case 429:
		return KindRateLimited
	default:
		return KindOther
	}
}
