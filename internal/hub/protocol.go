package hub

// Server → client frames. Every frame carries a type discriminator so
// clients can dispatch without peeking at optional fields.

type OutputMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
	Ts      int64  `json:"ts"`
}

type StatusMessage struct {
	Type    string `json:"type"`
	Session int    `json:"session"`
	State   string `json:"state"`
	Reason  string `json:"reason,omitempty"`
}

// ChannelsMessage is the snapshot a client receives on join: one entry
// per output channel, sessions first, then terminals.
type ChannelsMessage struct {
	Type string        `json:"type"`
	List []ChannelInfo `json:"list"`
}

type ChannelInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	State string `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is the only client → server frame. Channel 0 in a
// subscribe resets the client to receiving every channel.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel,omitempty"`
}

// hubBroadcast pairs a marshaled frame with the channel it belongs to.
// Channel 0 targets every client regardless of subscriptions.
type hubBroadcast struct {
	data    []byte
	channel int
}
