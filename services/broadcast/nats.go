package broadcastsvc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
)

type envelope struct {
	Origin string          `json:"origin"`
	Name   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
	Except string          `json:"except,omitempty"`
}

// Relay wraps the local Hub and mirrors every broadcast to the other instances over NATS,
// on subject "<prefix>.<roomID>". Messages published by this instance are ignored on receipt.
type Relay struct {
	hub    *Hub
	nc     *nats.Conn
	prefix string
	origin string
	logger core.Logger
	sub    *nats.Subscription
}

var _ chat.Broadcaster = (*Relay)(nil)

func NewRelay(hub *Hub, nc *nats.Conn, prefix string, logger core.Logger) *Relay {
	return &Relay{hub: hub, nc: nc, prefix: prefix, origin: uuid.NewString(), logger: logger}
}

func (r *Relay) subject(roomID string) string {
	return r.prefix + "." + roomID
}

// Start subscribes to every room subject.
func (r *Relay) Start() error {
	sub, err := r.nc.Subscribe(r.prefix+".>", r.handle)
	if err != nil {
		return errors.Wrap(err, "subscribing to room subjects")
	}
	r.sub = sub
	return nil
}

func (r *Relay) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *Relay) handle(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.Warn("broadcast.Relay: decoding envelope", err, map[string]interface{}{"subject": msg.Subject})
		return
	}
	if env.Origin == r.origin {
		return
	}
	ev := chat.Event{Name: env.Name, RoomID: env.RoomID, Payload: env.Data, ExceptConnID: env.Except}
	if err := r.hub.Broadcast(context.Background(), ev); err != nil {
		r.logger.Warn("broadcast.Relay: local delivery", err, map[string]interface{}{"room": env.RoomID})
	}
}

func (r *Relay) AddToGroup(ctx context.Context, connID, roomID string) error {
	return r.hub.AddToGroup(ctx, connID, roomID)
}

func (r *Relay) RemoveFromGroup(ctx context.Context, connID, roomID string) error {
	return r.hub.RemoveFromGroup(ctx, connID, roomID)
}

// Broadcast delivers locally first, then publishes for the other instances.
func (r *Relay) Broadcast(ctx context.Context, ev chat.Event) error {
	localErr := r.hub.Broadcast(ctx, ev)

	data, err := r.encode(ev)
	if err != nil {
		return err
	}
	if err := r.nc.Publish(r.subject(ev.RoomID), data); err != nil {
		return errors.Wrap(err, "publishing event")
	}
	return localErr
}

func (r *Relay) encode(ev chat.Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "encoding payload")
	}
	data, err := json.Marshal(envelope{
		Origin: r.origin,
		Name:   ev.Name,
		RoomID: ev.RoomID,
		Data:   payload,
		Except: ev.ExceptConnID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding envelope")
	}
	return data, nil
}
