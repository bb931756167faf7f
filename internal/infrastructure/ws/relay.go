package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
)

const (
	relayRoom = "room"
	relayUser = "user"
)

type relayFrame struct {
	Origin string          `json:"origin"`
	Kind   string          `json:"kind"`
	Target string          `json:"target"`
	Except string          `json:"except,omitempty"`
	Event  json.RawMessage `json:"event"`
}

// Relay fans room and user deliveries out to every instance over Redis
// pub/sub. Deliveries are made to local sockets first and then published;
// each instance ignores its own frames.
type Relay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
	log     zerolog.Logger
}

// NewRelay wraps hub so its deliveries reach the sockets of other instances.
func NewRelay(hub *Hub, client *redis.Client, channel string, log zerolog.Logger) *Relay {
	return &Relay{
		hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}
}

func (r *Relay) Attach(connID, roomID string) { r.hub.Attach(connID, roomID) }
func (r *Relay) Detach(connID string)         { r.hub.Detach(connID) }

// SendToConn is local only: a connection lives on the instance that
// handles its events.
func (r *Relay) SendToConn(ctx context.Context, connID string, evt domain.Event) error {
	return r.hub.SendToConn(ctx, connID, evt)
}

func (r *Relay) BroadcastToRoom(ctx context.Context, roomID string, evt domain.Event, exceptConnID string) error {
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	r.hub.deliverRoom(roomID, payload, exceptConnID)
	return r.publish(ctx, relayFrame{Kind: relayRoom, Target: roomID, Except: exceptConnID, Event: payload})
}

func (r *Relay) SendToUser(ctx context.Context, userID string, evt domain.Event) error {
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	r.hub.deliverUser(userID, payload)
	return r.publish(ctx, relayFrame{Kind: relayUser, Target: userID, Event: payload})
}

func (r *Relay) publish(ctx context.Context, f relayFrame) error {
	f.Origin = r.origin
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and delivers frames from other
// instances until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var f relayFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		r.log.Warn().Err(err).Msg("invalid relay frame")
		return
	}
	if f.Origin == r.origin {
		return
	}
	switch f.Kind {
	case relayRoom:
		r.hub.deliverRoom(f.Target, f.Event, f.Except)
	case relayUser:
		r.hub.deliverUser(f.Target, f.Event)
	}
}
