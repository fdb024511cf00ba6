package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(ErrTransient, "transcribe", "run whisper", "tool exited", base)

	if !errors.Is(err, ErrTransient) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("cause lost: %v", err)
	}
	want := "transient failure: transcribe: run whisper: tool exited: connection refused"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "probe", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{Wrap(ErrInput, "probe", "", "unreachable", nil), ClassInput},
		{Wrap(ErrNotFound, "registry", "", "no media", nil), ClassInput},
		{Wrap(ErrContract, "plan", "", "invalid plan", nil), ClassContract},
		{Wrap(ErrFatal, "render", "", "invariant broken", nil), ClassFatal},
		{Wrap(ErrTimeout, "transcribe", "", "deadline", nil), ClassTransient},
		{Wrap(ErrExternalTool, "render", "", "ffmpeg exit 1", nil), ClassTransient},
		{fmt.Errorf("unmarked"), ClassTransient},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !ClassTransient.Retryable() || !ClassContract.Retryable() {
		t.Fatal("transient and contract must be retryable")
	}
	if ClassInput.Retryable() || ClassFatal.Retryable() {
		t.Fatal("input and fatal must not be retryable")
	}
}
