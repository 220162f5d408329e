package task

import "testing"

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindImage, KindTextToVideo, KindFramesToVideo, KindIngredientsToVideo} {
		if !k.Valid() {
			t.Errorf("expected %q valid", k)
		}
	}
	if Kind("Make Sandwich").Valid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestKindFileExt(t *testing.T) {
	if got := KindImage.FileExt(); got != ".png" {
		t.Errorf("expected .png for image kind, got %s", got)
	}
	for _, k := range []Kind{KindTextToVideo, KindFramesToVideo, KindIngredientsToVideo} {
		if got := k.FileExt(); got != ".mp4" {
			t.Errorf("expected .mp4 for %q, got %s", k, got)
		}
		if !k.IsVideo() {
			t.Errorf("expected %q to be a video kind", k)
		}
	}
	if KindImage.IsVideo() {
		t.Error("image kind should not be video")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSucceeded, StatusFailed, StatusTimedOut, StatusSaveFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusAssigned} {
		if s.Terminal() {
			t.Errorf("expected %q not terminal", s)
		}
	}
}

func TestStatusRetryable(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusTimedOut, StatusSaveFailed} {
		if !s.Retryable() {
			t.Errorf("expected %q retryable", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusAssigned, StatusSucceeded} {
		if s.Retryable() {
			t.Errorf("expected %q not retryable", s)
		}
	}
}
