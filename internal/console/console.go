// Package console is the daemon core. It owns the remote sessions and
// local terminals, multiplexes their output into per-channel ordered
// streams, guards the shared credentials and debounces settings saves.
// All sink callbacks are invoked from the single dispatcher goroutine.
package console

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/roboterm/internal/remote"
	"github.com/user/roboterm/internal/runner"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultInitDelay      = 200 * time.Millisecond
	defaultSaveDebounce   = 500 * time.Millisecond
	defaultReplayLines    = 500

	dispatchQueueSize = 256
)

var (
	ErrUnknownSession  = errors.New("console: unknown session")
	ErrUnknownTerminal = errors.New("console: unknown terminal")
	ErrUnknownChannel  = errors.New("console: unknown channel")

	ErrNotConnected     = errors.New("console: session not connected")
	ErrSessionBusy      = errors.New("console: connect already in progress")
	ErrAlreadyConnected = errors.New("console: session already connected")

	ErrCredentialsRequired = errors.New("console: host and username are required")
	ErrCredentialsLocked   = errors.New("console: credentials are locked while a session is active")
)

// State is the lifecycle state of a remote session. Failed is transient:
// it is reported through the status sink with a reason, after which the
// session immediately settles on Disconnected.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Conn is the slice of a remote session the console drives. Implemented
// by *remote.Session; tests substitute scripted fakes through
// Options.Dial.
type Conn interface {
	Send(data []byte) error
	SendInterrupt() error
	Output() <-chan remote.Event
	Close() error
}

var _ Conn = (*remote.Session)(nil)

// DialFunc opens the transport for one connect attempt. It is called on
// a background goroutine and must respect its own timeout.
type DialFunc func(creds remote.Credentials) (Conn, error)

// Store persists the shared credentials between runs.
type Store interface {
	Save(creds remote.Credentials) error
	Load() (remote.Credentials, error)
}

// Sinks receive dispatched events. Both callbacks run on the dispatcher
// goroutine and must not block; nil callbacks are skipped.
type Sinks struct {
	OnOutput func(channel int, text string, isError bool)
	OnStatus func(session int, state State, reason string)
}

// SessionSpec configures one remote session slot. A nil InitCommands
// falls back to the console-wide list.
type SessionSpec struct {
	Name         string
	InitCommands []string
}

type Options struct {
	// Shell runs local terminal commands, default /bin/bash.
	Shell string
	// ConnectTimeout bounds the default dial; ignored when Dial is set.
	ConnectTimeout time.Duration
	// InitDelay is the pause after each init command.
	InitDelay time.Duration
	// SaveDebounce is the settings save coalescing window.
	SaveDebounce time.Duration
	// ReplayLines caps each channel's replay ring.
	ReplayLines int
	// InitCommands are sent to a session right after it connects. nil
	// selects the built-in sequence; an empty slice disables it.
	InitCommands []string

	Sessions  []SessionSpec
	Terminals []string

	// Dial overrides the transport; nil dials ssh with ConnectTimeout.
	Dial DialFunc
}

// Console multiplexes up to two remote shell sessions and two local
// terminals into ordered per-channel output streams. Channels are
// numbered from 1: sessions first, then terminals.
type Console struct {
	opts  Options
	store Store
	sinks Sinks

	sessions  []*session
	terminals []*terminal
	rings     []*ringBuffer

	events chan event
	stop   chan struct{}
	done   chan struct{}

	// mu guards creds and the mutable fields of sessions and terminals.
	mu    sync.Mutex
	creds remote.Credentials

	saveMu    sync.Mutex
	saveTimer *time.Timer

	stopOnce sync.Once
}

var defaultInitCommands = []string{
	"source ~/.bashrc",
	"echo 'Environment initialized'",
	"command -v ros2 >/dev/null 2>&1 && echo 'ROS2 detected: $ROS_DISTRO' || echo 'ROS2 not found'",
}

// New builds the console and starts its dispatcher. Credentials are
// loaded from the store once; a nil store disables persistence.
func New(store Store, sinks Sinks, opts Options) *Console {
	if opts.Shell == "" {
		opts.Shell = runner.DefaultShell
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.InitDelay <= 0 {
		opts.InitDelay = defaultInitDelay
	}
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = defaultSaveDebounce
	}
	if opts.ReplayLines <= 0 {
		opts.ReplayLines = defaultReplayLines
	}
	if opts.InitCommands == nil {
		opts.InitCommands = defaultInitCommands
	}
	if len(opts.Sessions) == 0 {
		opts.Sessions = []SessionSpec{{Name: "Robot Control"}, {Name: "ToF Control"}}
	}
	if len(opts.Terminals) == 0 {
		opts.Terminals = []string{"For ToF", "For Rviz"}
	}
	if opts.Dial == nil {
		timeout := opts.ConnectTimeout
		opts.Dial = func(creds remote.Credentials) (Conn, error) {
			s, err := remote.Dial(creds, remote.Options{Timeout: timeout})
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}

	c := &Console{
		opts:   opts,
		store:  store,
		sinks:  sinks,
		events: make(chan event, dispatchQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	channel := 1
	for i, spec := range opts.Sessions {
		init := spec.InitCommands
		if init == nil {
			init = opts.InitCommands
		}
		c.sessions = append(c.sessions, &session{
			id:           i + 1,
			name:         spec.Name,
			channel:      channel,
			state:        StateDisconnected,
			initCommands: init,
		})
		channel++
	}
	for i, name := range opts.Terminals {
		c.terminals = append(c.terminals, &terminal{
			id:      i + 1,
			name:    name,
			channel: channel,
		})
		channel++
	}
	c.rings = make([]*ringBuffer, channel-1)
	for i := range c.rings {
		c.rings[i] = newRingBuffer(opts.ReplayLines)
	}

	if store != nil {
		creds, err := store.Load()
		if err != nil {
			slog.Warn("failed to load saved settings", "error", err)
		} else {
			c.creds = creds
		}
	}

	go c.dispatch()
	return c
}

// Stop tears everything down: disconnects all sessions, kills all local
// processes, joins their forwarders, flushes a pending settings save and
// stops the dispatcher. In-flight dials are abandoned; their result is
// closed when it arrives. Idempotent.
func (c *Console) Stop() {
	c.stopOnce.Do(func() {
		for _, s := range c.sessions {
			s.opMu.Lock()
			c.mu.Lock()
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
			s.opMu.Unlock()
		}

		for _, t := range c.terminals {
			t.launchMu.Lock()
			c.mu.Lock()
			proc, fwd := t.proc, t.forwarderDone
			t.proc = nil
			t.forwarderDone = nil
			c.mu.Unlock()
			if proc != nil {
				proc.Kill()
				<-proc.Done()
			}
			if fwd != nil {
				<-fwd
			}
			t.launchMu.Unlock()
		}

		c.flushSave()

		close(c.stop)
		<-c.done
	})
}

// Credentials returns the current shared credentials.
func (c *Console) Credentials() remote.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// CredentialsLocked reports whether any session currently holds the
// credentials (Connecting or Connected), blocking edits.
func (c *Console) CredentialsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credentialsLockedLocked()
}

func (c *Console) credentialsLockedLocked() bool {
	for _, s := range c.sessions {
		if s.state == StateConnecting || s.state == StateConnected {
			return true
		}
	}
	return false
}

// SetCredentials replaces the shared credentials and schedules the
// debounced save. Rejected with ErrCredentialsLocked while any session
// is Connecting or Connected.
func (c *Console) SetCredentials(creds remote.Credentials) error {
	creds.Host = strings.TrimSpace(creds.Host)
	creds.Username = strings.TrimSpace(creds.Username)
	creds.Password = strings.TrimSpace(creds.Password)

	c.mu.Lock()
	if c.credentialsLockedLocked() {
		c.mu.Unlock()
		return ErrCredentialsLocked
	}
	c.creds = creds
	c.mu.Unlock()

	c.scheduleSave()
	return nil
}

// scheduleSave arms the single-shot save timer, collapsing rapid edits
// into one store write.
func (c *Console) scheduleSave() {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveTimer = time.AfterFunc(c.opts.SaveDebounce, c.saveNow)
}

// flushSave runs a still-pending save synchronously.
func (c *Console) flushSave() {
	c.saveMu.Lock()
	pending := c.saveTimer != nil && c.saveTimer.Stop()
	c.saveTimer = nil
	c.saveMu.Unlock()
	if pending {
		c.saveNow()
	}
}

func (c *Console) saveNow() {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()
	if err := c.store.Save(creds); err != nil {
		slog.Warn("failed to save settings", "error", err)
	}
}

// SessionStatus is one row of the status snapshot.
type SessionStatus struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Channel int    `json:"channel"`
	State   State  `json:"state"`
}

// TerminalStatus is one row of the status snapshot.
type TerminalStatus struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Channel int    `json:"channel"`
	Running bool   `json:"running"`
}

// Status is a point-in-time snapshot of the whole console.
type Status struct {
	Sessions          []SessionStatus  `json:"sessions"`
	Terminals         []TerminalStatus `json:"terminals"`
	CredentialsLocked bool             `json:"credentials_locked"`
}

// Snapshot reports every session and terminal with its current state.
func (c *Console) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Sessions:          make([]SessionStatus, 0, len(c.sessions)),
		Terminals:         make([]TerminalStatus, 0, len(c.terminals)),
		CredentialsLocked: c.credentialsLockedLocked(),
	}
	for _, s := range c.sessions {
		st.Sessions = append(st.Sessions, SessionStatus{
			ID:      s.id,
			Name:    s.name,
			Channel: s.channel,
			State:   s.state,
		})
	}
	for _, t := range c.terminals {
		st.Terminals = append(st.Terminals, TerminalStatus{
			ID:      t.id,
			Name:    t.name,
			Channel: t.channel,
			Running: t.proc != nil,
		})
	}
	return st
}

// ChannelInfo describes one output channel for presentation clients.
type ChannelInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	State string `json:"state"`
}

// Channels lists every output channel: sessions first, then terminals.
// Terminal state is "running" while a process is live, "idle" otherwise.
func (c *Console) Channels() []ChannelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]ChannelInfo, 0, len(c.sessions)+len(c.terminals))
	for _, s := range c.sessions {
		list = append(list, ChannelInfo{
			ID:    s.channel,
			Name:  s.name,
			Kind:  "session",
			State: string(s.state),
		})
	}
	for _, t := range c.terminals {
		state := "idle"
		if t.proc != nil {
			state = "running"
		}
		list = append(list, ChannelInfo{
			ID:    t.channel,
			Name:  t.name,
			Kind:  "terminal",
			State: state,
		})
	}
	return list
}

// Replay returns up to lines recent entries from the channel's ring,
// oldest first. lines <= 0 means the whole ring.
func (c *Console) Replay(channel, lines int) ([]OutputEntry, error) {
	if channel < 1 || channel > len(c.rings) {
		return nil, ErrUnknownChannel
	}
	if lines <= 0 {
		lines = c.opts.ReplayLines
	}
	return c.rings[channel-1].Last(lines), nil
}
