// Package backuperr defines the error kinds a backup run can produce.
package backuperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a backup error.
type Kind string

// Error kinds.
const (
	KindConfig             Kind = "config"
	KindCredential         Kind = "credential"
	KindStorageAccess      Kind = "storage_access"
	KindDatabaseConnection Kind = "database_connection"
	KindDatabaseMissing    Kind = "database_missing"
	KindDump               Kind = "dump"
	KindEmptyArtifact      Kind = "empty_artifact"
	KindUpload             Kind = "upload"
	KindRetentionDelete    Kind = "retention_delete"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrConfig             = &Error{Kind: KindConfig}
	ErrCredential         = &Error{Kind: KindCredential}
	ErrStorageAccess      = &Error{Kind: KindStorageAccess}
	ErrDatabaseConnection = &Error{Kind: KindDatabaseConnection}
	ErrDatabaseMissing    = &Error{Kind: KindDatabaseMissing}
	ErrDump               = &Error{Kind: KindDump}
	ErrEmptyArtifact      = &Error{Kind: KindEmptyArtifact}
	ErrUpload             = &Error{Kind: KindUpload}
	ErrRetentionDelete    = &Error{Kind: KindRetentionDelete}
)

// Error is a classified backup error.
type Error struct {
	Kind Kind
	Msg  string
	Keys []string // offending settings or names, when relevant
	Err  error
}

// New creates an error of the given kind.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Config creates a config error naming the offending keys.
func Config(msg string, keys ...string) *Error {
	return &Error{Kind: KindConfig, Msg: msg, Keys: keys}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Keys) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Keys, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindCredential, KindStorageAccess, KindDatabaseConnection:
		return true
	default:
		return false
	}
}
