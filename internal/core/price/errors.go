package price

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means every source answered and none had a price.
	ErrNotFound = errors.New("price not found")
	// ErrTransient marks failures worth retrying: timeouts, closed connections,
	// protocol errors, selectors that never appeared.
	ErrTransient = errors.New("transient price source failure")
)

type transientError struct{ err error }

func (e *transientError) Error() string        { return e.err.Error() }
func (e *transientError) Unwrap() error        { return e.err }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err so errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}

// Transientf is Transient(fmt.Errorf(...)).
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// sessionLevel reports whether err means the browser itself is gone, not just the page.
func sessionLevel(err error) bool {
	if err == nil {
		return false
	}
	es := strings.ToLower(err.Error())
	// page-scoped protocol errors ("Protocol error (Page.navigate): ...") are not listed
	for _, marker := range []string{
		"target closed",
		"browser has been closed",
		"browser closed",
		"connection closed",
		"has been disconnected",
		"websocket closed",
		"websocket error",
	} {
		if strings.Contains(es, marker) {
			return true
		}
	}
	return false
}

// isRetryable classifies raw automation/network errors.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if sessionLevel(err) {
		return true
	}
	es := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"net::err_",
		"protocol error",
		"429",
		"too many requests",
		"503",
		"502",
		"504",
	} {
		if strings.Contains(es, marker) {
			return true
		}
	}
	return false
}
