// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "invalid subnet")
	if err.Error() != "invalid subnet" {
		t.Errorf("expected 'invalid subnet', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to validate")
	if wrapped.Error() != "failed to validate: invalid subnet" {
		t.Errorf("expected 'failed to validate: invalid subnet', got '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindConflict, "network has attached interfaces")
	if GetKind(err) != KindConflict {
		t.Errorf("expected KindConflict, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestKindRoundTrip(t *testing.T) {
	for k := KindInternal; k <= KindUnavailable; k++ {
		if got := KindFromString(k.String()); got != k {
			t.Errorf("round trip failed for %v: got %v", k, got)
		}
	}
	if KindFromString("nonsense") != KindUnknown {
		t.Errorf("expected KindUnknown for unrecognized string")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindResourceBusy, true},
		{KindUnavailable, true},
		{KindPermissionDenied, false},
		{KindRuleSyntax, false},
		{KindKernelReject, false},
		{KindDaemonStart, false},
		{KindConflict, false},
		{KindNotFound, false},
	}
	for _, tt := range tests {
		if got := Retryable(New(tt.kind, "x")); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
	if Retryable(errors.New("plain")) {
		t.Error("plain errors must not be retryable")
	}
}

func TestIsBackend(t *testing.T) {
	backend := []Kind{KindResourceBusy, KindPermissionDenied, KindRuleSyntax, KindKernelReject, KindDaemonStart, KindUnavailable}
	for _, k := range backend {
		if !k.IsBackend() {
			t.Errorf("%v should be a backend kind", k)
		}
	}
	for _, k := range []Kind{KindNotFound, KindConflict, KindAlreadyExists, KindValidation, KindInternal} {
		if k.IsBackend() {
			t.Errorf("%v should not be a backend kind", k)
		}
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindValidation, "invalid input")
	err = Attr(err, "network", "n1")
	err = Attr(err, "subnet", "10.0.0.0/24")

	attrs := GetAttributes(err)
	if attrs["network"] != "n1" {
		t.Errorf("expected n1, got %v", attrs["network"])
	}
	if attrs["subnet"] != "10.0.0.0/24" {
		t.Errorf("expected 10.0.0.0/24, got %v", attrs["subnet"])
	}

	wrapped := Wrap(err, KindInternal, "failed")
	wrapped = Attr(wrapped, "operation", "createNetwork")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["network"] != "n1" || allAttrs["operation"] != "createNetwork" {
		t.Errorf("missing attributes: %v", allAttrs)
	}
}
