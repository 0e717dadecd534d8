package console

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/roboterm/internal/remote"
)

// session is one remote session slot. state, conn, gen and
// forwarderDone are guarded by Console.mu; opMu serializes user-driven
// connect/disconnect so their notices cannot interleave on the channel.
// gen increments on every connect and teardown, letting stale dial
// results, stream-end reports and post-send notices identify
// themselves.
type session struct {
	id           int
	name         string
	channel      int
	initCommands []string

	opMu sync.Mutex

	state         State
	conn          Conn
	gen           int
	forwarderDone chan struct{}
}

func (c *Console) sessionByID(id int) *session {
	if id < 1 || id > len(c.sessions) {
		return nil
	}
	return c.sessions[id-1]
}

// ToggleSession connects a Disconnected session and disconnects a
// Connected one. A connect already in progress is rejected.
func (c *Console) ToggleSession(id int) error {
	s := c.sessionByID(id)
	if s == nil {
		return ErrUnknownSession
	}

	c.mu.Lock()
	state := s.state
	c.mu.Unlock()

	switch state {
	case StateConnected:
		return c.DisconnectSession(id)
	case StateConnecting:
		return ErrSessionBusy
	default:
		return c.ConnectSession(id)
	}
}

// ConnectSession starts an asynchronous connect for the session using
// the shared credentials. With an empty host or username nothing is
// attempted: one error line lands on the channel and the state does not
// change. Otherwise the session turns Connecting and the dial proceeds
// on a background goroutine; the outcome arrives as events.
func (c *Console) ConnectSession(id int) error {
	s := c.sessionByID(id)
	if s == nil {
		return ErrUnknownSession
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	c.mu.Lock()
	switch s.state {
	case StateConnecting:
		c.mu.Unlock()
		return ErrSessionBusy
	case StateConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	creds := c.creds
	if creds.Host == "" || creds.Username == "" {
		c.mu.Unlock()
		c.enqueue(outputEvent(s.channel, "Error: IP address and username are required!\n", true))
		return ErrCredentialsRequired
	}
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	c.mu.Unlock()

	slog.Info("connecting", "session", s.id, "host", creds.Host, "user", creds.Username)
	c.enqueue(statusEvent(s.id, StateConnecting, ""))
	c.enqueue(outputEvent(s.channel, fmt.Sprintf("Connecting to %s@%s...\n", creds.Username, creds.Host), false))

	go c.dialSession(s, gen, creds)
	return nil
}

// dialSession completes a connect attempt started by ConnectSession. A
// generation mismatch means the attempt was abandoned (disconnect or
// shutdown meanwhile): the fresh transport is closed and nothing is
// reported.
func (c *Console) dialSession(s *session, gen int, creds remote.Credentials) {
	conn, err := c.opts.Dial(creds)

	c.mu.Lock()
	if s.gen != gen || s.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.state = StateDisconnected
		c.mu.Unlock()
		slog.Warn("connect failed", "session", s.id, "host", creds.Host, "error", err)
		c.enqueue(outputEvent(s.channel, fmt.Sprintf("Connection failed: %v\n", err), true))
		c.enqueue(statusEvent(s.id, StateFailed, err.Error()))
		c.enqueue(statusEvent(s.id, StateDisconnected, ""))
		return
	}
	s.conn = conn
	s.state = StateConnected
	fwd := make(chan struct{})
	s.forwarderDone = fwd
	c.mu.Unlock()

	slog.Info("session connected", "session", s.id, "host", creds.Host)
	c.enqueue(statusEvent(s.id, StateConnected, ""))
	c.enqueue(outputEvent(s.channel, "Connected successfully!\n", false))

	go c.forwardSession(s, conn, gen, fwd)
	go c.runInitSequence(s, conn, gen)
	c.scheduleSave()
}

// DisconnectSession closes the session's transport, which joins the
// output pump, then joins the forwarder before the Disconnected notice
// is queued: nothing can land on the channel after it. Disconnecting a
// session that is already Disconnected is a no-op; one that is still
// Connecting abandons the dial.
func (c *Console) DisconnectSession(id int) error {
	s := c.sessionByID(id)
	if s == nil {
		return ErrUnknownSession
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	c.mu.Lock()
	if s.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	conn, fwd := s.conn, s.forwarderDone
	s.conn = nil
	s.forwarderDone = nil
	s.gen++
	s.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if fwd != nil {
		<-fwd
	}

	slog.Info("session disconnected", "session", s.id)
	c.enqueue(outputEvent(s.channel, "Disconnected\n", false))
	c.enqueue(statusEvent(s.id, StateDisconnected, ""))
	return nil
}

// SubmitCommand writes one command to the session's shell, appending the
// newline when missing. Exactly one send per submission. While not
// Connected the command is rejected with a notice line instead.
func (c *Console) SubmitCommand(id int, text string) error {
	s := c.sessionByID(id)
	if s == nil {
		return ErrUnknownSession
	}

	c.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		c.mu.Unlock()
		c.enqueue(outputEvent(s.channel, "Not connected!\n", false))
		return ErrNotConnected
	}
	conn, gen := s.conn, s.gen
	c.mu.Unlock()

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := conn.Send([]byte(text)); err != nil {
		c.noticeIfCurrent(s, gen, fmt.Sprintf("Error sending command: %v\n", err), true)
		return fmt.Errorf("console: send failed: %w", err)
	}
	return nil
}

// SubmitInterrupt sends Ctrl-C to the session's foreground process and
// echoes a confirmation on the channel. While not Connected it yields
// the same notice line as SubmitCommand.
func (c *Console) SubmitInterrupt(id int) error {
	s := c.sessionByID(id)
	if s == nil {
		return ErrUnknownSession
	}

	c.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		c.mu.Unlock()
		c.enqueue(outputEvent(s.channel, "Not connected!\n", false))
		return ErrNotConnected
	}
	conn, gen := s.conn, s.gen
	c.mu.Unlock()

	if err := conn.SendInterrupt(); err != nil {
		c.noticeIfCurrent(s, gen, fmt.Sprintf("Error sending Ctrl+C: %v\n", err), true)
		return fmt.Errorf("console: send failed: %w", err)
	}
	c.noticeIfCurrent(s, gen, "[Sent Ctrl+C to interrupt current command]\n", false)
	return nil
}

// noticeIfCurrent queues a notice line unless the captured generation
// has been superseded. opMu is held across the check and the enqueue,
// so a disconnect cannot complete in between: once its Disconnected
// line is queued, the channel stays silent.
func (c *Console) noticeIfCurrent(s *session, gen int, text string, isError bool) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	c.mu.Lock()
	current := s.gen == gen && s.state == StateConnected
	c.mu.Unlock()
	if current {
		c.enqueue(outputEvent(s.channel, text, isError))
	}
}

// forwardSession moves pump events onto the dispatcher queue until the
// pump's channel closes. It always drains to the end so the pump can
// never be stuck on a full buffer, even during shutdown.
func (c *Console) forwardSession(s *session, conn Conn, gen int, done chan struct{}) {
	defer close(done)
	for ev := range conn.Output() {
		switch ev.Type {
		case remote.EventOutput:
			c.enqueue(outputEvent(s.channel, ev.Text, false))
		case remote.EventDecodeError:
			c.enqueue(outputEvent(s.channel, ev.Text, true))
		case remote.EventClosed:
			c.streamEnded(s, gen)
		}
	}
}

// streamEnded handles the pump reporting a dead stream. Only the current
// generation of a Connected session reacts; an explicit disconnect has
// already bumped the generation and wins the race.
func (c *Console) streamEnded(s *session, gen int) {
	c.mu.Lock()
	if s.gen != gen || s.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.forwarderDone = nil
	s.gen++
	s.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	slog.Warn("session stream ended unexpectedly", "session", s.id)
	c.enqueue(outputEvent(s.channel, "Connection lost\n", true))
	c.enqueue(statusEvent(s.id, StateDisconnected, ""))
}

// runInitSequence sends the session's init commands best-effort: a
// disconnect or shutdown mid-sequence just stops it, and a send failure
// surfaces as an error line, never as a connection failure.
func (c *Console) runInitSequence(s *session, conn Conn, gen int) {
	for _, cmd := range s.initCommands {
		c.mu.Lock()
		stale := s.gen != gen || s.state != StateConnected
		c.mu.Unlock()
		if stale {
			return
		}
		if err := conn.Send([]byte(cmd + "\n")); err != nil {
			c.noticeIfCurrent(s, gen, fmt.Sprintf("Error sending command: %v\n", err), true)
			return
		}
		select {
		case <-time.After(c.opts.InitDelay):
		case <-c.stop:
			return
		}
	}
}
