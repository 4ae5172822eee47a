package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for storage failure classification.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	// ErrThrottled covers 429 and S3 SlowDown.
	ErrThrottled = errors.New("rate limited")
	// ErrAuth means missing or invalid credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrAccessDenied means valid credentials without permission.
	ErrAccessDenied = errors.New("access denied")
	ErrNetwork      = errors.New("network error")
	errUnclassified = errors.New("storage error")
)

// StorageError wraps an archive storage failure with its classification.
type StorageError struct {
	// Kind is the sentinel, e.g. ErrPermissionDenied.
	Kind error
	// Op is "init", "write" or "read".
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the classification sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapWriteError classifies a write failure. Returns nil for nil.
func WrapWriteError(err error, path string) error {
	return wrap(err, "write", path)
}

// WrapReadError classifies a read failure. Returns nil for nil.
func WrapReadError(err error, path string) error {
	return wrap(err, "read", path)
}

// WrapInitError classifies a dataset initialization failure.
func WrapInitError(err error, dataset string) error {
	return wrap(err, "init", dataset)
}

func wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classifyError(err), Op: op, Path: path, Err: err}
}

// classifyError maps err to a sentinel by type, then by message pattern.
func classifyError(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission denied", "eacces", "access denied"):
		if containsAny(msg, "accessdenied", "forbidden", "403") {
			return ErrAccessDenied
		}
		return ErrPermissionDenied
	case containsAny(msg, "no such file", "does not exist", "not found", "enoent", "404", "nosuchkey", "nosuchbucket"):
		return ErrNotFound
	case containsAny(msg, "no space left", "disk full", "enospc", "quota exceeded"):
		return ErrDiskFull
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"):
		return ErrThrottled
	case containsAny(msg, "nocredentialproviders", "credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"):
		return ErrAuth
	case containsAny(msg, "accessdenied", "forbidden", "403"):
		return ErrAccessDenied
	case containsAny(msg, "connection refused", "no route to host", "network unreachable",
		"dns", "dial tcp"):
		return ErrNetwork
	default:
		return errUnclassified
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
