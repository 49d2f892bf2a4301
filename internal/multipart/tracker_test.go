package multipart

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   SessionStatus
		expected bool
	}{
		{SessionInitiated, false},
		{SessionInProgress, false},
		{SessionCompleted, true},
		{SessionFailed, true},
		{SessionAborted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTracker_RecordPart(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(&Session{UploadID: "u1", Scheme: "s3", Bucket: "b", Key: "k"}, nil)

	tracker.RecordPart("u1", Part{Number: 1, ETag: "e1", Size: 100})
	tracker.RecordPart("u1", Part{Number: 2, ETag: "e2", Size: 50})
	tracker.RecordPart("missing", Part{Number: 1})

	s, ok := tracker.Get("u1")
	if !ok {
		t.Fatal("session not tracked")
	}
	if s.Status != SessionInProgress {
		t.Errorf("Status = %s, want %s", s.Status, SessionInProgress)
	}
	if s.BytesUploaded != 150 {
		t.Errorf("BytesUploaded = %d, want 150", s.BytesUploaded)
	}
	if len(s.Parts) != 2 {
		t.Errorf("expected 2 parts, got %d", len(s.Parts))
	}
}

func TestTracker_AbortActive(t *testing.T) {
	tracker := NewTracker()
	var aborted []string
	abortFn := func(id string, err error) func(context.Context) error {
		return func(context.Context) error {
			aborted = append(aborted, id)
			return err
		}
	}

	tracker.Track(&Session{UploadID: "open"}, abortFn("open", nil))
	tracker.Track(&Session{UploadID: "broken"}, abortFn("broken", errors.New("network down")))
	tracker.Track(&Session{UploadID: "done"}, abortFn("done", nil))
	tracker.MarkCompleted("done")

	n, err := tracker.AbortActive(context.Background())
	if n != 2 {
		t.Errorf("AbortActive aborted %d sessions, want 2", n)
	}
	if err == nil {
		t.Error("expected abort error to be reported")
	}
	if len(aborted) != 2 {
		t.Errorf("abort called %d times, want 2", len(aborted))
	}
	if len(tracker.Active()) != 0 {
		t.Error("no session should remain active")
	}
}

func TestTracker_Cleanup(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(&Session{UploadID: "old"}, nil)
	tracker.Track(&Session{UploadID: "live"}, nil)
	tracker.MarkAborted("old")

	if removed := tracker.Cleanup(time.Hour); removed != 0 {
		t.Errorf("Cleanup(1h) removed %d, want 0", removed)
	}
	if removed := tracker.Cleanup(0); removed != 1 {
		t.Errorf("Cleanup(0) removed %d, want 1", removed)
	}
	if tracker.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tracker.Count())
	}
	tracker.Remove("live")
	if tracker.Count() != 0 {
		t.Errorf("Count() after Remove = %d, want 0", tracker.Count())
	}
}

func TestIsProtocolViolation(t *testing.T) {
	if IsProtocolViolation(nil) {
		t.Error("nil is not a violation")
	}
	if IsProtocolViolation(errors.New("timeout")) {
		t.Error("plain errors are not violations")
	}
	if !IsProtocolViolation(errors.New("All non-trailing parts must have the same length.")) {
		t.Error("documented substring must match")
	}
}
