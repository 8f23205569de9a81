/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message or ping to the peer.
	writeWait = 10 * time.Second

	// Outbound send buffer per connection. A peer that falls this far
	// behind is treated as dead and pruned.
	sendBuffer = 16
)

// Client is one live transport handle, bound to a (room, player) pair
// for its whole lifetime.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	roomID   string
	playerID string

	// lastSeen is updated on every inbound frame, including pongs.
	// Guarded by the owning Fanout's mutex.
	lastSeen time.Time
}

// Fanout owns, per room, the set of live connections. Seat state stays
// in the Registry; Fanout only ever touches it during the join
// handshake, under the room's mutex. The connection tables have their
// own mutex, which always nests inside a room mutex: coordinator
// operations hold the room's lock across mutation plus broadcast, so
// per-room event ordering follows room-lock acquisition order.
type Fanout struct {
	store RoomStore
	cfg   *Config

	mu    sync.Mutex
	conns map[string]map[*Client]bool
}

func NewFanout(cfg *Config, store RoomStore) *Fanout {
	if store == nil {
		store = noopStore{}
	}
	return &Fanout{
		store: store,
		cfg:   cfg,
		conns: make(map[string]map[*Client]bool),
	}
}

// roomFullError is reported by ConnectLocked when all four colors are
// taken and the room does not allow spectators.
type roomFullError struct{}

func (roomFullError) Error() string { return "room is full" }

// ConnectLocked registers the connection and idempotently ensures the
// player has a seat: an existing seat is marked connected, a new
// player takes the first unused palette color. When the palette is
// exhausted the connection joins seatless (a spectator) if the room
// allows it. Assumes room.mu is held.
func (f *Fanout) ConnectLocked(room *Room, c *Client) error {
	idx := room.seatIndexLocked(c.playerID)
	switch {
	case idx >= 0:
		room.Seats[idx].Connected = true
	default:
		color := room.nextFreeColorLocked()
		if color == "" {
			if !room.Settings.SpectatorsAllowed {
				return roomFullError{}
			}
		} else {
			room.Seats = append(room.Seats, Seat{
				Name:      c.playerID,
				Color:     color,
				Connected: true,
			})
		}
	}
	room.lastActive = time.Now()

	f.mu.Lock()
	set, ok := f.conns[room.ID]
	if !ok {
		set = make(map[*Client]bool)
		f.conns[room.ID] = set
	}
	c.lastSeen = time.Now()
	set[c] = true
	f.mu.Unlock()

	f.store.SetPlayerConnected(room.ID, c.playerID, true)

	return nil
}

// Disconnect removes the connection handle only; whether the seat goes
// too is the session coordinator's decision.
func (f *Fanout) Disconnect(c *Client) {
	f.mu.Lock()
	f.pruneLocked(c.roomID, c)
	f.mu.Unlock()

	f.store.SetPlayerConnected(c.roomID, c.playerID, false)
}

// pruneLocked drops the connection from the room's set and closes its
// send channel exactly once (membership in the set is the guard).
// Assumes f.mu is held.
func (f *Fanout) pruneLocked(roomID string, c *Client) {
	set, ok := f.conns[roomID]
	if !ok {
		return
	}
	if set[c] {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(f.conns, roomID)
	}
}

// Broadcast sends msg to every live connection in the room except
// exclude. A connection too slow to accept the message is pruned; its
// seat is left to the liveness/leave protocol.
func (f *Fanout) Broadcast(roomID string, msg any, exclude *Client) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.conns[roomID] {
		if c == exclude {
			continue
		}
		select {
		case c.send <- msg:
		default:
			f.pruneLocked(roomID, c)
		}
	}
}

// SendToPlayer is a best-effort unicast to one player's tracked
// connections in the room.
func (f *Fanout) SendToPlayer(roomID, playerID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.conns[roomID] {
		if c.playerID != playerID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			f.pruneLocked(roomID, c)
		}
	}
}

// Send queues msg on a single connection, pruning it when its buffer
// is full. A connection already pruned (its channel is closed) is
// skipped.
func (f *Fanout) Send(c *Client, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.conns[c.roomID][c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		f.pruneLocked(c.roomID, c)
	}
}

// Touch records inbound traffic for the liveness sweep.
func (f *Fanout) Touch(c *Client) {
	f.mu.Lock()
	c.lastSeen = time.Now()
	f.mu.Unlock()
}

// SweepLiveness drops every connection in the room that has been
// silent longer than the probe window. Closing the send channel tears
// the transport down, which drives that connection's reader through
// the ordinary disconnect path.
func (f *Fanout) SweepLiveness(roomID string) int {
	cutoff := time.Now().Add(-f.cfg.probeTimeout)

	f.mu.Lock()
	swept := 0
	for c := range f.conns[roomID] {
		if c.lastSeen.Before(cutoff) {
			f.pruneLocked(roomID, c)
			swept++
		}
	}
	f.mu.Unlock()

	if swept > 0 {
		logf(f.cfg, "GAMES: Liveness sweep dropped %d connection(s) in room %s", swept, roomID)
	}
	return swept
}

// HasConnection reports whether the player still has a live connection
// in the room.
func (f *Fanout) HasConnection(roomID, playerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.conns[roomID] {
		if c.playerID == playerID {
			return true
		}
	}
	return false
}

// RoomIDs returns the ids of every room with at least one tracked
// connection, for the periodic liveness sweep.
func (f *Fanout) RoomIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.conns))
	for roomID := range f.conns {
		out = append(out, roomID)
	}
	return out
}

// writePump drains the client's send channel onto the wire and pings
// the peer often enough to keep the read deadline alive. The ping
// interval is nine tenths of the probe window, the usual gorilla
// arrangement.
func (c *Client) writePump(cfg *Config) {
	ticker := time.NewTicker(cfg.probeTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
