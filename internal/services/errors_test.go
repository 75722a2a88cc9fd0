package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tapedeck/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestFailureHint(t *testing.T) {
	if hint := services.FailureHint(nil); hint != "" {
		t.Fatalf("expected empty hint for nil, got %q", hint)
	}
	cancelled := fmt.Errorf("download: %w", context.Canceled)
	if !services.IsCancellation(cancelled) {
		t.Fatal("expected wrapped context.Canceled to be a cancellation")
	}
	if hint := services.FailureHint(cancelled); !strings.Contains(hint, "cancelled") {
		t.Fatalf("unexpected cancellation hint %q", hint)
	}
	auth := services.Wrap(services.ErrAuthorization, "catalog", "list", "rejected", nil)
	if hint := services.FailureHint(auth); !strings.Contains(hint, "login") {
		t.Fatalf("unexpected auth hint %q", hint)
	}
	tool := services.Wrap(services.ErrExternalTool, "convert", "run", "exit 1", nil)
	if hint := services.FailureHint(tool); !strings.Contains(hint, "ffmpeg") {
		t.Fatalf("unexpected tool hint %q", hint)
	}
}
