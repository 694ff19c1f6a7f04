package services_test

import (
	"errors"
	"strings"
	"testing"

	"quill/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extraction", "ffmpeg", "failed", base)
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
	for _, fragment := range []string{"extraction", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "delivery", "send", "gateway unavailable", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default marker, got %v", err)
	}
}

func TestIsTransientClassification(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "acquisition", "download", "connection reset", errors.New("io"))
	if !services.IsTransient(transient) {
		t.Fatalf("expected transient classification for %v", transient)
	}

	timeout := services.Wrap(services.ErrTimeout, "transcription", "segment", "deadline exceeded", nil)
	if !services.IsTransient(timeout) {
		t.Fatalf("expected timeout to classify transient, got %v", timeout)
	}

	permanent := services.Wrap(services.ErrValidation, "acquisition", "describe", "source too large", nil)
	if services.IsTransient(permanent) {
		t.Fatalf("validation error should be permanent, got %v", permanent)
	}

	if services.IsTransient(nil) {
		t.Fatal("nil error should not be transient")
	}
}
