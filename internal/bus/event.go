// Package bus connects local delivery to the distributed pub/sub channel
// so every server process serving a chat converges on the same message
// and membership view. Delivery is at-least-once; consumers stay
// idempotent and the bridge suppresses the echo of its own events.
package bus

import "encoding/json"

const (
	EventNewMessage        = "newMessage"
	EventMembershipChanged = "membershipChanged"
	EventPresenceChanged   = "presenceChanged"
)

// Chat kinds carried on events so remote bridges pick the delivery mode.
const (
	ChatKindPersonal = "1:1"
	ChatKindGroup    = "group"
)

// Event is the wire format on the bus channel. Origin is the UUID of the
// publishing process; a bridge receiving its own origin drops the event,
// since local delivery already covered this process.
type Event struct {
	Origin   string          `json:"origin"`
	Type     string          `json:"type"`
	ChatID   string          `json:"chatId,omitempty"`
	ChatKind string          `json:"chatKind,omitempty"`
	To       string          `json:"to,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// PresencePayload is the presenceChanged event body, re-emitted locally
// as a userStatus event.
type PresencePayload struct {
	UserName string `json:"userName"`
	Active   bool   `json:"active"`
}
