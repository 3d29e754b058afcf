// Package transport manages one network session with the live
// conversational service over a WebSocket.
//
// The external callback-per-event API shape is normalized into a single
// stream of tagged events (Opened, Message, Error, Closed) consumed by
// the connection controller's dispatch loop, which keeps the state
// machine independent of the SDK-style callback registration the
// service's own clients use.
package transport

import "github.com/orbitvoice/go-orbit/pkg/wire"

// EventType tags a session event.
type EventType string

const (
	// EventOpened fires once when the session is established and
	// configured.
	EventOpened EventType = "opened"
	// EventMessage carries one parsed inbound server message.
	EventMessage EventType = "message"
	// EventError reports a transport failure. It is informational: the
	// terminal signal for a session is always EventClosed.
	EventError EventType = "error"
	// EventClosed fires exactly once as the session's final event; the
	// event channel is closed immediately after.
	EventClosed EventType = "closed"
)

// Event is one tagged session event.
type Event struct {
	Type EventType

	// Message is set for EventMessage.
	Message *wire.ServerMessage

	// Err is set for EventError.
	Err error

	// Clean reports, for EventClosed, whether the session ended with a
	// normal closure (client-initiated close or a normal close frame
	// from the peer).
	Clean bool

	// Reason carries the close cause for EventClosed. Unclean closes
	// always set it; the controller classifies it for user messaging.
	Reason error
}
