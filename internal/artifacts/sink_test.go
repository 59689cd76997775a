package artifacts

import (
	"context"
	"errors"
	"testing"
)

type failingSink struct {
	calls int
}

func (f *failingSink) Put(ctx context.Context, runID, stage string, payload []byte) error {
	f.calls++
	return errors.New("sink unavailable")
}

func (f *failingSink) Close() error { return nil }

func TestKey(t *testing.T) {
	got := Key("run-42", "markup")
	if got != "artifact:run-42:markup" {
		t.Fatalf("Key = %q", got)
	}
}

func TestTryPut_SwallowsErrors(t *testing.T) {
	sink := &failingSink{}

	// Must not panic or propagate the sink error
	TryPut(context.Background(), sink, "run-1", "markup", []byte("<html>"))

	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}
}

func TestTryPut_NilSink(t *testing.T) {
	TryPut(context.Background(), nil, "run-1", "markup", []byte("<html>"))
}

func TestNoopSink(t *testing.T) {
	var s Sink = NoopSink{}

	if err := s.Put(context.Background(), "run-1", "stage", nil); err != nil {
		t.Fatalf("NoopSink.Put returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("NoopSink.Close returned error: %v", err)
	}
}
