package console

import (
	"errors"
	"testing"
	"time"
)

// TestRunLocalStreamsOutput runs a real command and verifies its line
// arrives on the terminal's channel, untagged.
func TestRunLocalStreamsOutput(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec.sinks(), testOptions(staticDial(newFakeConn())))
	defer c.Stop()

	if err := c.RunLocal(1, "echo hi"); err != nil {
		t.Fatalf("RunLocal: %v", err)
	}

	out := nextOutput(t, rec)
	if out.Channel != 3 || out.Text != "hi" || out.IsError {
		t.Errorf("unexpected event %+v", out)
	}
	expectNoOutput(t, rec, 100*time.Millisecond)
}

// TestRunLocalStderrTagged verifies stderr comes through as a single
// error-flagged event.
func TestRunLocalStderrTagged(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec.sinks(), testOptions(staticDial(newFakeConn())))
	defer c.Stop()

	if err := c.RunLocal(2, "echo bad >&2"); err != nil {
		t.Fatalf("RunLocal: %v", err)
	}

	out := nextOutput(t, rec)
	if out.Channel != 4 || out.Text != "Error: bad" || !out.IsError {
		t.Errorf("unexpected event %+v", out)
	}
}

// TestRunLocalReplacesRunningProcess verifies the one-live-process
// policy: a busy terminal kills and joins the old process before the
// new one starts, and only the new one's output appears.
func TestRunLocalReplacesRunningProcess(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec.sinks(), testOptions(staticDial(newFakeConn())))
	defer c.Stop()

	if err := c.RunLocal(1, "sleep 30"); err != nil {
		t.Fatalf("RunLocal(sleep): %v", err)
	}
	waitFor(t, func() bool { return c.Snapshot().Terminals[0].Running }, "process never registered")

	if err := c.RunLocal(1, "echo replaced"); err != nil {
		t.Fatalf("RunLocal(echo): %v", err)
	}

	out := nextOutput(t, rec)
	if out.Text != "replaced" || out.Channel != 3 {
		t.Errorf("unexpected event %+v", out)
	}
	waitFor(t, func() bool { return !c.Snapshot().Terminals[0].Running }, "terminal never went idle")
}

// TestRunLocalEmptyCommandIgnored verifies a blank command line is
// dropped without starting anything.
func TestRunLocalEmptyCommandIgnored(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec.sinks(), testOptions(staticDial(newFakeConn())))
	defer c.Stop()

	if err := c.RunLocal(1, "   "); err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	expectNoOutput(t, rec, 100*time.Millisecond)
	if c.Snapshot().Terminals[0].Running {
		t.Error("terminal unexpectedly running")
	}
}

// TestRunLocalUnknownTerminal verifies the sentinel for out-of-range
// terminal ids.
func TestRunLocalUnknownTerminal(t *testing.T) {
	c := New(nil, Sinks{}, testOptions(staticDial(newFakeConn())))
	defer c.Stop()

	if err := c.RunLocal(9, "echo hi"); !errors.Is(err, ErrUnknownTerminal) {
		t.Errorf("expected ErrUnknownTerminal, got %v", err)
	}
}

// TestStopKillsRunningProcess verifies Stop takes a live local process
// down with it and the terminal reports idle afterwards.
func TestStopKillsRunningProcess(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec.sinks(), testOptions(staticDial(newFakeConn())))

	if err := c.RunLocal(1, "sleep 30"); err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	waitFor(t, func() bool { return c.Snapshot().Terminals[0].Running }, "process never registered")

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return; process not killed")
	}
}
