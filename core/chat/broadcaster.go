package chat

import "context"

// Event names pushed to room groups.
const (
	EventUserListUpdated = "UserListUpdated"
	EventUserJoined      = "UserJoined"
	EventUserLeft        = "UserLeft"
	EventReceiveTyping   = "ReceiveTyping"
	EventReceiveMessage  = "ReceiveMessage"
)

// Event is a named payload addressed to every connection of a room group,
// except ExceptConnID when set.
type Event struct {
	Name         string      `json:"type"`
	RoomID       string      `json:"roomId"`
	Payload      interface{} `json:"data"`
	ExceptConnID string      `json:"-"`
}

// Broadcaster is the transport's fan-out port.
type Broadcaster interface {
	AddToGroup(ctx context.Context, connID, roomID string) error
	RemoveFromGroup(ctx context.Context, connID, roomID string) error
	Broadcast(ctx context.Context, ev Event) error
}
