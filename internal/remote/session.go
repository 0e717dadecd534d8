// Package remote maintains one password-authenticated interactive SSH
// shell per session, pumping its output into a channel of events until
// the session is closed.
package remote

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	// DefaultPort is used when credentials carry no port.
	DefaultPort = 22

	readChunkSize   = 4096
	eventBufferSize = 1024

	// interruptByte is ETX, what a terminal sends for Ctrl-C.
	interruptByte = 0x03
)

type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (c Credentials) addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type Options struct {
	// Timeout bounds the dial and the ssh handshake.
	Timeout time.Duration
	// HostKey verifies the remote host key; nil trusts any host.
	HostKey ssh.HostKeyCallback
}

// KnownHostsKey returns a host key callback verifying against the user's
// known_hosts file.
func KnownHostsKey() (ssh.HostKeyCallback, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("remote: failed to get home directory: %w", err)
	}
	cb, err := knownhosts.New(filepath.Join(homeDir, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("remote: failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Session owns one ssh transport, its interactive shell channel and the
// pump goroutine draining shell output. Sessions are not reused: a
// reconnect dials a fresh one.
type Session struct {
	stdin     io.WriteCloser
	shell     io.Closer
	transport io.Closer

	events    chan Event
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
}

// Dial connects, authenticates with the password, requests a pty and
// starts an interactive shell plus its output pump. Any failure tears
// down whatever was opened and is classified as one of ErrConnectTimeout,
// ErrAuthFailure, ErrNetworkError or ErrProtocolError.
func Dial(creds Credentials, opts Options) (*Session, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hostKey := opts.HostKey
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	sshConfig := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	addr := creds.addr()
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, classifyDialError(err)
	}

	// The handshake and shell setup have no timeout of their own; bound
	// them with a conn deadline, lifted again before the pump starts.
	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm", 24, 80, modes); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
	}

	_ = conn.SetDeadline(time.Time{})

	s := newSession(stdin, sess, client)
	s.start(stdout)
	return s, nil
}

func newSession(stdin io.WriteCloser, shell, transport io.Closer) *Session {
	return &Session{
		stdin:     stdin,
		shell:     shell,
		transport: transport,
		events:    make(chan Event, eventBufferSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

func (s *Session) start(r io.Reader) {
	go s.readPump(r)
}

// Output delivers pump events in production order. The channel is closed
// once the pump has exited, after which no further events can appear.
func (s *Session) Output() <-chan Event {
	return s.events
}

// Send writes raw bytes to the shell's stdin. Back-pressure is the
// transport's to handle; the write blocks at most until the ssh window
// opens.
func (s *Session) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// SendInterrupt asks the remote foreground process to stop, as an
// interactive Ctrl-C would.
func (s *Session) SendInterrupt() error {
	return s.Send([]byte{interruptByte})
}

// Close cancels the pump, closes the shell channel (which unblocks the
// pump's read), joins the pump and closes the transport. Idempotent and
// safe from any state; once it returns no further events are emitted.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.shell != nil {
			s.shell.Close()
		}
		<-s.finished
		if s.transport != nil {
			s.transport.Close()
		}
	})
	return nil
}
