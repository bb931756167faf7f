// Package ws keeps the live WebSocket connections of this instance and
// delivers events to them by connection, room or user.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/pkg/metrics"
)

// ErrConnNotFound is returned when a connection is not registered here.
var ErrConnNotFound = errors.New("connection not found")

// Hub manages all WebSocket clients of the instance. Registration and
// unregistration go through Run; the room and user indexes are guarded by
// mutex so deliveries can happen from any goroutine.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	users   map[string]map[string]*Client
	roomOf  map[string]string

	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	log zerolog.Logger
}

// NewHub creates a Hub ready to accept clients once Run is started.
func NewHub(log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		users:      make(map[string]map[string]*Client),
		roomOf:     make(map[string]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands a new client to the hub, which starts its pumps.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = c.conn.Close()
	}
}

// Run processes registrations until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			if c == nil {
				continue
			}
			h.add(c)
			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				c.writePump()
			}()
			go func() {
				defer h.wg.Done()
				c.readPump(h.ctx)
			}()

		case c := <-h.unregister:
			h.remove(c, false)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mutex.Lock()
	h.clients[c.id] = c
	addIndex(h.users, c.userID, c)
	count := len(h.clients)
	h.mutex.Unlock()

	metrics.ConnectionsActive.Inc()
	h.log.Debug().Str("conn_id", c.id).Str("user_id", c.userID).Int("clients", count).Msg("client registered")
}

// remove drops the client from every index and closes its send queue.
func (h *Hub) remove(c *Client, slow bool) {
	h.mutex.Lock()
	if _, ok := h.clients[c.id]; !ok || c.closed {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, c.id)
	removeIndex(h.users, c.userID, c.id)
	if room, ok := h.roomOf[c.id]; ok {
		removeIndex(h.rooms, room, c.id)
		delete(h.roomOf, c.id)
	}
	c.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	close(c.send)
	metrics.ConnectionsActive.Dec()
	if slow {
		metrics.SlowConsumersTotal.Inc()
		h.log.Warn().Str("conn_id", c.id).Str("user_id", c.userID).Msg("client dropped, send buffer full")
		return
	}
	h.log.Debug().Str("conn_id", c.id).Int("clients", count).Msg("client unregistered")
}

// Attach puts the connection in the room index, leaving any previous room.
func (h *Hub) Attach(connID, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if prev, ok := h.roomOf[connID]; ok {
		removeIndex(h.rooms, prev, connID)
	}
	addIndex(h.rooms, roomID, c)
	h.roomOf[connID] = roomID
}

// Detach removes the connection from its room, if any.
func (h *Hub) Detach(connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, ok := h.roomOf[connID]; ok {
		removeIndex(h.rooms, room, connID)
		delete(h.roomOf, connID)
	}
}

// SendToConn delivers evt to one local connection.
func (h *Hub) SendToConn(_ context.Context, connID string, evt domain.Event) error {
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	h.mutex.RLock()
	c, ok := h.clients[connID]
	h.mutex.RUnlock()
	if !ok {
		return ErrConnNotFound
	}
	h.deliver([]*Client{c}, payload)
	return nil
}

// BroadcastToRoom delivers evt to every local connection in the room except
// exceptConnID.
func (h *Hub) BroadcastToRoom(_ context.Context, roomID string, evt domain.Event, exceptConnID string) error {
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	h.deliverRoom(roomID, payload, exceptConnID)
	return nil
}

// SendToUser delivers evt to every local connection of the user.
func (h *Hub) SendToUser(_ context.Context, userID string, evt domain.Event) error {
	payload, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	h.deliverUser(userID, payload)
	return nil
}

func (h *Hub) deliverRoom(roomID string, payload []byte, exceptConnID string) {
	h.deliver(h.snapshot(h.rooms, roomID, exceptConnID), payload)
}

func (h *Hub) deliverUser(userID string, payload []byte) {
	h.deliver(h.snapshot(h.users, userID, ""), payload)
}

func (h *Hub) snapshot(index map[string]map[string]*Client, key, except string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	set := index[key]
	out := make([]*Client, 0, len(set))
	for id, c := range set {
		if id == except {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (h *Hub) deliver(clients []*Client, payload []byte) {
	var slow []*Client
	for _, c := range clients {
		if !h.safeSend(c, payload) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.remove(c, true)
	}
}

func (h *Hub) safeSend(c *Client, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, ok := h.clients[c.id]; !ok || c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdownClients() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("conn_id", c.id).Msg("error closing client connection")
			}
		}
	}
	h.log.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown stops the hub, closes every connection and waits for the client
// goroutines to exit, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func encodeEvent(evt domain.Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.Name, err)
	}
	return payload, nil
}

func addIndex(index map[string]map[string]*Client, key string, c *Client) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]*Client)
		index[key] = set
	}
	set[c.id] = c
}

func removeIndex(index map[string]map[string]*Client, key, connID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(index, key)
	}
}
