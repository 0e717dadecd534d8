package remote

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrConnectTimeout = errors.New("remote: connection timed out")
	ErrAuthFailure    = errors.New("remote: authentication failed")
	ErrNetworkError   = errors.New("remote: network error")
	ErrProtocolError  = errors.New("remote: protocol error")

	ErrNotConnected = errors.New("remote: not connected")
	ErrTransport    = errors.New("remote: transport error")
)

func classifyDialError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkError, err)
}

// classifyHandshakeError sorts ssh handshake failures into the connect
// taxonomy. The ssh package reports auth rejection only through the error
// text, so that match is on the message.
func classifyHandshakeError(err error) error {
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout():
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: %v", ErrAuthFailure, err)
	case isNetworkFailure(err):
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	default:
		return fmt.Errorf("%w: %v", ErrProtocolError, err)
	}
}

func isNetworkFailure(err error) bool {
	var operr *net.OpError
	if errors.As(err, &operr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "EOF")
}
