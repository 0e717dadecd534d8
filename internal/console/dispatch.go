package console

import (
	"sync"
	"time"
)

type eventKind int

const (
	eventOutput eventKind = iota
	eventStatus
)

// event is one dispatcher queue entry: either an output line/chunk for a
// channel or a session status transition.
type event struct {
	kind eventKind

	channel int
	text    string
	isError bool

	session int
	state   State
	reason  string
}

func outputEvent(channel int, text string, isError bool) event {
	return event{kind: eventOutput, channel: channel, text: text, isError: isError}
}

func statusEvent(session int, state State, reason string) event {
	return event{kind: eventStatus, session: session, state: state, reason: reason}
}

// enqueue hands an event to the dispatcher. The select against stop
// means a full queue can never wedge a producer that is being shut down;
// after Stop the event is dropped.
func (c *Console) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

// dispatch is the single consumer of the event queue. It appends output
// to the replay rings and invokes the sinks, preserving per-channel
// production order end-to-end. On stop it drains whatever producers
// already queued before exiting.
func (c *Console) dispatch() {
	defer close(c.done)
	for {
		select {
		case ev := <-c.events:
			c.deliver(ev)
		case <-c.stop:
			for {
				select {
				case ev := <-c.events:
					c.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *Console) deliver(ev event) {
	switch ev.kind {
	case eventOutput:
		if ev.channel >= 1 && ev.channel <= len(c.rings) {
			c.rings[ev.channel-1].Add(OutputEntry{
				Text:      ev.text,
				IsError:   ev.isError,
				Timestamp: time.Now().UTC(),
			})
		}
		if c.sinks.OnOutput != nil {
			c.sinks.OnOutput(ev.channel, ev.text, ev.isError)
		}
	case eventStatus:
		if c.sinks.OnStatus != nil {
			c.sinks.OnStatus(ev.session, ev.state, ev.reason)
		}
	}
}

// OutputEntry is one replay ring record.
type OutputEntry struct {
	Text      string    `json:"text"`
	IsError   bool      `json:"is_error"`
	Timestamp time.Time `json:"timestamp"`
}

type ringBuffer struct {
	mu      sync.RWMutex
	entries []OutputEntry
	size    int
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = defaultReplayLines
	}
	return &ringBuffer{size: size}
}

func (r *ringBuffer) Add(entry OutputEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.size {
		r.entries = r.entries[len(r.entries)-r.size:]
	}
}

// Last returns up to n newest entries, oldest first.
func (r *ringBuffer) Last(n int) []OutputEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || len(r.entries) == 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]OutputEntry, n)
	copy(result, r.entries[len(r.entries)-n:])
	return result
}
