// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Config{Level: "warn", Output: &buf})

	lg.Debug("hidden debug")
	lg.Info("hidden info")
	lg.Warn("visible warn")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "visible warn") {
		t.Errorf("warn message missing from output: %s", out)
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Config{Level: "debug", Output: &buf})

	lg.WithComponent("dispatcher").
		WithError(errors.New("boom")).
		WithFields("network", "n1").
		Error("operation failed")

	out := buf.String()
	for _, want := range []string{"dispatcher", "boom", "n1", "operation failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestBadLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Config{Level: "nonsense", Output: &buf})
	lg.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("info should be logged at fallback level: %s", buf.String())
	}
}
