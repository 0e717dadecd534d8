package runner

import (
	"strings"
	"testing"
	"time"
)

// collectEvents drains the runner's event channel until it closes,
// failing the test if that takes longer than the bound.
func collectEvents(t *testing.T, r *Runner, bound time.Duration) []Event {
	t.Helper()

	var events []Event
	timeout := time.After(bound)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(events))
		}
	}
}

// waitDone fails the test if the runner does not reach its terminal
// state within the bound.
func waitDone(t *testing.T, r *Runner, bound time.Duration) {
	t.Helper()

	select {
	case <-r.Done():
	case <-time.After(bound):
		t.Fatal("timed out waiting for Done")
	}
}

// TestRunSingleLine runs "echo hi" and verifies exactly one non-error
// event carrying the trimmed line, followed by a clean terminal state.
func TestRunSingleLine(t *testing.T) {
	r := Run("", "echo hi")

	events := collectEvents(t, r, 5*time.Second)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(events), events)
	}
	if events[0].Text != "hi" || events[0].IsError {
		t.Errorf("unexpected event %+v", events[0])
	}
	waitDone(t, r, time.Second)
}

// TestRunSilentExit runs a command with no output and verifies the
// runner finishes without emitting any events.
func TestRunSilentExit(t *testing.T) {
	r := Run("", "true")

	events := collectEvents(t, r, 5*time.Second)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
	waitDone(t, r, time.Second)
}

// TestRunShellComposition verifies the command line goes through the
// shell, so && sequencing works and lines arrive in order.
func TestRunShellComposition(t *testing.T) {
	r := Run("", "echo first && echo second")

	events := collectEvents(t, r, 5*time.Second)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(events), events)
	}
	if events[0].Text != "first" || events[1].Text != "second" {
		t.Errorf("wrong order: %v", events)
	}
}

// TestRunStderrFlushedOnce sends output to stderr only and verifies it
// arrives as a single error-flagged event with the Error: prefix.
func TestRunStderrFlushedOnce(t *testing.T) {
	r := Run("", "echo oops >&2")

	events := collectEvents(t, r, 5*time.Second)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(events), events)
	}
	if events[0].Text != "Error: oops" || !events[0].IsError {
		t.Errorf("unexpected event %+v", events[0])
	}
}

// TestRunStderrAfterStdout mixes both streams and verifies stdout lines
// come through untagged while stderr is flushed last as one error event.
func TestRunStderrAfterStdout(t *testing.T) {
	r := Run("", "echo out; echo err >&2; echo more")

	events := collectEvents(t, r, 5*time.Second)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	if events[0].Text != "out" || events[0].IsError {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].Text != "more" || events[1].IsError {
		t.Errorf("unexpected second event %+v", events[1])
	}
	last := events[2]
	if last.Text != "Error: err" || !last.IsError {
		t.Errorf("unexpected stderr flush %+v", last)
	}
}

// TestKillTerminatesProcessGroup starts a long sleep behind the shell
// and verifies Kill brings the whole group down promptly.
func TestKillTerminatesProcessGroup(t *testing.T) {
	r := Run("", "sleep 30")

	// Give the shell a moment to exec the sleep.
	time.Sleep(100 * time.Millisecond)
	r.Kill()

	waitDone(t, r, 5*time.Second)

	// A second Kill after the terminal state must be a no-op.
	r.Kill()
}

// TestKillAfterExitIsNoop verifies a first Kill issued only after the
// process already finished is accepted quietly: the terminal state
// gates the signal, so nothing is sent to the reaped group.
func TestKillAfterExitIsNoop(t *testing.T) {
	r := Run("", "true")

	waitDone(t, r, 5*time.Second)
	r.Kill()

	if events := collectEvents(t, r, time.Second); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

// TestSpawnFailure points at a missing shell and verifies the runner
// reports exactly one error event and still reaches its terminal state.
func TestSpawnFailure(t *testing.T) {
	r := Run("/nonexistent/shell", "echo hi")

	events := collectEvents(t, r, 5*time.Second)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(events), events)
	}
	if !strings.HasPrefix(events[0].Text, "Command execution failed: ") || !events[0].IsError {
		t.Errorf("unexpected event %+v", events[0])
	}
	waitDone(t, r, time.Second)
}
