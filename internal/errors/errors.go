// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors defines the structured error taxonomy shared by every
// fognet component. Backend failures carry a subkind so the orchestrator
// can distinguish retryable conditions from fatal ones.
package errors

import (
	"errors"
	"fmt"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindValidation
	KindNotFound
	KindConflict
	KindAlreadyExists

	// Backend failure subkinds. Each wraps a failure from one of the
	// lifecycle backends (netlink, nftables, namespace manager, dnsmasq).
	KindResourceBusy
	KindPermissionDenied
	KindRuleSyntax
	KindKernelReject
	KindDaemonStart
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAlreadyExists:
		return "already_exists"
	case KindResourceBusy:
		return "resource_busy"
	case KindPermissionDenied:
		return "permission_denied"
	case KindRuleSyntax:
		return "rule_syntax"
	case KindKernelReject:
		return "kernel_reject"
	case KindDaemonStart:
		return "daemon_start"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// KindFromString is the inverse of Kind.String, used when errors cross the
// RPC boundary.
func KindFromString(s string) Kind {
	for k := KindInternal; k <= KindUnavailable; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// IsBackend reports whether the kind is a backend failure subkind.
func (k Kind) IsBackend() bool {
	switch k {
	case KindResourceBusy, KindPermissionDenied, KindRuleSyntax,
		KindKernelReject, KindDaemonStart, KindUnavailable:
		return true
	}
	return false
}

// Error represents a structured error in the fognet system.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{
		Kind:    kind,
		Message: msg,
	}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    msg,
		Underlying: err,
	}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Underlying: err,
	}
}

// Attr attaches an attribute to an error. If the error is not an *Error, it wraps it as KindInternal.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Kind:       KindInternal,
			Message:    err.Error(),
			Underlying: err,
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of the error, or KindUnknown if it's not a fognet error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetAttributes returns all attributes associated with the error and its chain.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	var e *Error

	tempErr := err
	for tempErr != nil {
		if errors.As(tempErr, &e) {
			for k, v := range e.Attributes {
				if _, ok := attrs[k]; !ok {
					attrs[k] = v
				}
			}
			tempErr = e.Underlying
		} else {
			break
		}
	}

	return attrs
}

// Retryable reports whether the orchestrator may retry the failed operation
// as-is. ResourceBusy and Unavailable are transient; everything else needs
// operator or caller intervention first.
func Retryable(err error) bool {
	switch GetKind(err) {
	case KindResourceBusy, KindUnavailable:
		return true
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if err's type contains an Unwrap method returning error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
