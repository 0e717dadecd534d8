// Package runner executes one-shot local command lines through the
// system shell, streaming stdout line by line and collecting stderr
// until the process exits.
package runner

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

const (
	// DefaultShell interprets the command line when none is configured.
	DefaultShell = "/bin/bash"

	eventBufferSize = 256
	maxLineBytes    = 1 << 20
)

// Event is one unit of process output. Stdout arrives line by line with
// IsError false; stderr is flushed after exit as a single IsError event.
type Event struct {
	Text    string
	IsError bool
}

// Runner owns one child process and the two goroutine readers draining
// its pipes. Runners are single-use: once Done is closed the process has
// been reaped and no further events can appear.
type Runner struct {
	cmd *exec.Cmd

	events chan Event
	done   chan struct{}

	killOnce sync.Once
}

// Run spawns commandLine through `shell -c` so pipes, && and redirection
// compose. The child gets its own process group so Kill can take down
// anything it forked. Run never fails: a spawn error is reported as a
// single error event and the runner goes straight to its terminal state.
func Run(shell, commandLine string) *Runner {
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.Command(shell, "-c", commandLine)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	r := &Runner{
		cmd:    cmd,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.failSpawn(err)
		return r
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.failSpawn(err)
		return r
	}
	if err := cmd.Start(); err != nil {
		r.failSpawn(err)
		return r
	}

	go r.run(stdout, stderr)
	return r
}

// Events returns the process output stream. The channel is closed after
// the process exited and the stderr flush (if any) was emitted.
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Done is closed once both pipe readers finished and the process was
// reaped. A successor process for the same terminal must not start
// before Done is closed.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Kill forcibly terminates the whole process group. Safe to call at any
// time and more than once; after a natural exit it is a no-op.
func (r *Runner) Kill() {
	r.killOnce.Do(func() {
		select {
		case <-r.done:
			return
		default:
		}
		if r.cmd.Process != nil {
			// Negative pid addresses the group (Setpgid above).
			_ = syscall.Kill(-r.cmd.Process.Pid, syscall.SIGKILL)
		}
	})
}

// run drains both pipes, reaps the process and flushes collected stderr
// as one trailing error event. Readers must finish before Wait closes
// the pipes out from under them.
func (r *Runner) run(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	var errOutput []byte

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.streamLines(stdout)
	}()
	go func() {
		defer wg.Done()
		errOutput, _ = io.ReadAll(stderr)
	}()

	wg.Wait()
	_ = r.cmd.Wait()

	if text := strings.TrimSpace(string(errOutput)); text != "" {
		r.events <- Event{Text: "Error: " + text, IsError: true}
	}

	close(r.events)
	close(r.done)
}

// streamLines emits one event per stdout line, whitespace-trimmed, as
// soon as the line is complete.
func (r *Runner) streamLines(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		r.events <- Event{Text: strings.TrimSpace(sc.Text())}
	}
}

// failSpawn puts the runner into its terminal state with exactly one
// error event explaining why the process never started.
func (r *Runner) failSpawn(err error) {
	r.events <- Event{Text: "Command execution failed: " + err.Error(), IsError: true}
	close(r.events)
	close(r.done)
}
