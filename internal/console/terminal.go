package console

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/user/roboterm/internal/runner"
)

// terminal is one local terminal slot. proc and forwarderDone are
// guarded by Console.mu; launchMu serializes RunLocal so replacing a
// live process (kill + join) cannot race another launch.
type terminal struct {
	id      int
	name    string
	channel int

	launchMu sync.Mutex

	proc          *runner.Runner
	forwarderDone chan struct{}
}

func (c *Console) terminalByID(id int) *terminal {
	if id < 1 || id > len(c.terminals) {
		return nil
	}
	return c.terminals[id-1]
}

// RunLocal starts commandLine on the terminal through the configured
// shell. A terminal holds at most one live process: a prior one is
// killed and fully joined before the successor starts. An empty command
// line is ignored.
func (c *Console) RunLocal(id int, commandLine string) error {
	t := c.terminalByID(id)
	if t == nil {
		return ErrUnknownTerminal
	}
	if strings.TrimSpace(commandLine) == "" {
		return nil
	}

	t.launchMu.Lock()
	defer t.launchMu.Unlock()

	c.mu.Lock()
	prev, prevFwd := t.proc, t.forwarderDone
	t.proc = nil
	t.forwarderDone = nil
	c.mu.Unlock()

	if prev != nil {
		slog.Debug("killing previous local process", "terminal", t.id)
		prev.Kill()
		<-prev.Done()
	}
	if prevFwd != nil {
		<-prevFwd
	}

	slog.Debug("local command started", "terminal", t.id)
	proc := runner.Run(c.opts.Shell, commandLine)
	fwd := make(chan struct{})

	c.mu.Lock()
	t.proc = proc
	t.forwarderDone = fwd
	c.mu.Unlock()

	go c.forwardRunner(t, proc, fwd)
	return nil
}

// forwardRunner moves runner events onto the dispatcher queue until the
// runner finishes, then clears the terminal slot if it still owns it.
func (c *Console) forwardRunner(t *terminal, proc *runner.Runner, done chan struct{}) {
	defer close(done)
	for ev := range proc.Events() {
		c.enqueue(outputEvent(t.channel, ev.Text, ev.IsError))
	}
	<-proc.Done()

	c.mu.Lock()
	if t.proc == proc {
		t.proc = nil
		t.forwarderDone = nil
	}
	c.mu.Unlock()
}
