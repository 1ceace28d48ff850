package schema

// EventType classifies the normalized lifecycle events emitted by the
// response dispatcher.
type EventType int

const (
	// EventNone marks responses with no recognised lifecycle meaning.
	EventNone EventType = iota
	// EventLoginAccept marks a successful exchange login.
	EventLoginAccept
	// EventLoginFail marks a rejected exchange login.
	EventLoginFail
	// EventPlaceAck marks an accepted order placement request.
	EventPlaceAck
	// EventPlaceReject marks a rejected order placement request.
	EventPlaceReject
	// EventCancelAccept marks an accepted cancel request.
	EventCancelAccept
	// EventCancelFail marks a rejected cancel request.
	EventCancelFail
	// EventModifyAccept marks an accepted amend request.
	EventModifyAccept
	// EventModifyFail marks a rejected amend request.
	EventModifyFail
)

var eventNames = map[EventType]string{
	EventNone:         "NONE",
	EventLoginAccept:  "LOGIN_ACCEPT",
	EventLoginFail:    "LOGIN_FAIL",
	EventPlaceAck:     "PLACE_ACK",
	EventPlaceReject:  "PLACE_REJECT",
	EventCancelAccept: "CANCEL_ACCEPT",
	EventCancelFail:   "CANCEL_FAIL",
	EventModifyAccept: "MODIFY_ACCEPT",
	EventModifyFail:   "MODIFY_FAIL",
}

func (e EventType) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "NONE"
}

// ChannelStatus tracks the lifecycle state of a logical channel.
type ChannelStatus int

const (
	// StatusOffline marks a channel with no usable connection.
	StatusOffline ChannelStatus = iota
	// StatusOnline marks a connected (and, for private channels,
	// authenticated) channel.
	StatusOnline
)

func (s ChannelStatus) String() string {
	if s == StatusOnline {
		return "ONLINE"
	}
	return "OFFLINE"
}

// EventDetail carries the normalized outcome of one exchange operation.
// The OEMS consumes this instead of wire-format detail.
type EventDetail struct {
	Label   string    `json:"label"`
	Status  int       `json:"status"`
	Message string    `json:"message"`
	Event   EventType `json:"event"`
}

// ChannelData pairs a downstream channel name with its payload inside a
// normalized envelope.
type ChannelData struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// Envelope is the normalized event relayed to downstream sessions:
// {exchange, name, credential_id?, data:[{channel, data}]}.
type Envelope struct {
	Exchange     string        `json:"exchange"`
	Name         string        `json:"name"`
	CredentialID string        `json:"credential_id,omitempty"`
	TraceID      string        `json:"trace_id,omitempty"`
	Data         []ChannelData `json:"data"`
}
