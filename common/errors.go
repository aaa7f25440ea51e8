package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a scan failed.
type ErrorKind string

const (
	SpawnFailure         ErrorKind = "spawn failure"
	StreamFailure        ErrorKind = "stream failure"
	RemoteConnectFailure ErrorKind = "remote connect failure"
	RemoteAuthFailure    ErrorKind = "remote auth failure"
	ParseFailure         ErrorKind = "parse failure"
	SchemaMismatch       ErrorKind = "schema mismatch"
	UnknownTable         ErrorKind = "unknown table"
)

// ScanError is returned by every stage of the command-to-table pipeline.
type ScanError struct {
	Kind  ErrorKind
	Table string // logical table name, empty if not yet known
	Host  string // host alias, empty for local scans
	Err   error
}

func (e *ScanError) Error() string {
	var parts []string

	parts = append(parts, string(e.Kind))

	if e.Table != "" {
		parts = append(parts, fmt.Sprintf("table=%s", e.Table))
	}

	if e.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", e.Host))
	}

	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewError wraps err in a ScanError of the given kind.
func NewError(kind ErrorKind, err error) *ScanError {
	return &ScanError{Kind: kind, Err: err}
}

// Errorf builds a ScanError of the given kind from a format string.
func Errorf(kind ErrorKind, format string, args ...interface{}) *ScanError {
	return &ScanError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first ScanError found in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a ScanError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// WithTarget fills in table and host on a ScanError found in err's chain
// without overwriting values set closer to the failure.
func WithTarget(err error, table, host string) error {
	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		return err
	}
	if scanErr.Table == "" {
		scanErr.Table = table
	}
	if scanErr.Host == "" {
		scanErr.Host = host
	}
	return err
}
