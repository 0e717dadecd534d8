package remote

import (
	"io"
	"strings"
	"unicode/utf8"
)

type EventType int

const (
	// EventOutput carries decoded shell output. Chunks may start or end
	// mid-line; sinks must tolerate fragments.
	EventOutput EventType = iota
	// EventDecodeError marks a chunk that contained invalid UTF-8.
	EventDecodeError
	// EventClosed is the pump's final event before its channel closes.
	EventClosed
)

type Event struct {
	Type EventType
	Text string
}

const decodeErrorText = "\nDecode error: invalid UTF-8 sequence\n"

// readPump drains the shell output stream in chunks of up to
// readChunkSize bytes until the stream errors out or the session is
// closed. Decoding replaces invalid sequences instead of failing: a
// multi-byte character split across two reads is carried over, anything
// genuinely invalid yields one decode-error event and the pump carries
// on. Every emit races the done signal so cancellation is never blocked
// by a full event buffer.
func (s *Session) readPump(r io.Reader) {
	defer func() {
		close(s.events)
		close(s.finished)
	}()

	buf := make([]byte, readChunkSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, 0, len(carry)+n)
			data = append(data, carry...)
			data = append(data, buf[:n]...)

			complete, rest := splitIncompleteRune(data)
			carry = rest

			if len(complete) > 0 {
				text, ok := decodeText(complete)
				if !ok && !s.emit(Event{Type: EventDecodeError, Text: decodeErrorText}) {
					return
				}
				if !s.emit(Event{Type: EventOutput, Text: text}) {
					return
				}
			}
		}
		if err != nil {
			if len(carry) > 0 {
				text, _ := decodeText(carry)
				if !s.emit(Event{Type: EventOutput, Text: text}) {
					return
				}
			}
			s.emit(Event{Type: EventClosed})
			return
		}

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// decodeText converts raw shell bytes to a string, replacing invalid
// sequences with U+FFFD. ok is false when a replacement happened.
func decodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), true
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), false
}

// splitIncompleteRune splits off a trailing partial multi-byte rune so it
// can be completed by the next read. Invalid bytes are not split off;
// they stay in place for decodeText to replace.
func splitIncompleteRune(data []byte) (complete, carry []byte) {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		need := encodedRuneLen(data[i])
		if need < 0 {
			return data, nil
		}
		if i+need > len(data) {
			return data[:i], data[i:]
		}
		return data, nil
	}
	return data, nil
}

// encodedRuneLen reports how many bytes a UTF-8 sequence starting with b
// should have, or -1 when b cannot start one.
func encodedRuneLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return -1
	}
}
