package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no cached record matches an id
var ErrNotFound = errors.New("email not found")

// ErrMalformed is returned when a record file cannot be parsed
var ErrMalformed = errors.New("malformed email file")

// AmbiguousIDError is returned when a partial id matches several records
type AmbiguousIDError struct {
	Partial string
	Matches []string
}

func (e *AmbiguousIDError) Error() string {
	shown := e.Matches
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return fmt.Sprintf("ambiguous id %q matches %d emails: %s", e.Partial, len(e.Matches), strings.Join(shown, ", "))
}

// Is lets errors.Is(err, ErrNotFound) treat ambiguity as a lookup miss
func (e *AmbiguousIDError) Is(target error) bool {
	return target == ErrNotFound
}

// IOError is a cache read or write failure
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
