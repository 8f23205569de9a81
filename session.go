// Four-player chess session coordinator
//
// Each client holds a websocket to /game/:gameid/ws and is identified by a
// plain player_id query parameter. The coordinator drives a connection's
// whole lifecycle: the join handshake (seat assignment and room snapshot),
// routing of inbound move/chat/ping/leave messages, liveness probing, and
// the host-migration protocol when the room's host departs.
//
// All mutation of one room happens under that room's mutex, and every
// broadcast a mutation triggers is issued inside the same critical section,
// so room members observe events in a single consistent order.

package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Inbound message envelope. Type is one of "move", "chat", "ping",
// "leave_game"; the remaining fields depend on the type.
type InboundMessage struct {
	Type  string `json:"type"`
	From  string `json:"from,omitempty"`  // move
	To    string `json:"to,omitempty"`    // move
	Piece string `json:"piece,omitempty"` // move
	Text  string `json:"text,omitempty"`  // chat
}

// Outbound messages.

type ConnectionEstablishedMessage struct {
	Type     string `json:"type"` // "connection_established"
	PlayerID string `json:"player_id"`
	GameID   string `json:"game_id"`
}

type GameStateMessage struct {
	Type   string       `json:"type"` // "game_state"
	Data   RoomSnapshot `json:"data"`
	IsHost bool         `json:"is_host"`
}

type PlayerJoinedMessage struct {
	Type     string `json:"type"` // "player_joined"
	PlayerID string `json:"player_id"`
	IsHost   bool   `json:"is_host"`
}

type PlayerLeftMessage struct {
	Type     string `json:"type"` // "player_left"
	PlayerID string `json:"player_id"`
}

type HostMigrationMessage struct {
	Type             string `json:"type"` // "host_migration"
	NewHost          string `json:"new_host"`
	OldHost          string `json:"old_host"`
	RemainingPlayers int    `json:"remaining_players,omitempty"`
}

type MoveMadeMessage struct {
	Type          string         `json:"type"` // "move_made"
	Player        string         `json:"player"`
	From          string         `json:"from"`
	To            string         `json:"to"`
	Piece         string         `json:"piece"`
	Success       bool           `json:"success"`
	Captured      string         `json:"captured,omitempty"`
	Points        int            `json:"points"`
	CurrentPlayer string         `json:"current_player"`
	Scores        map[string]int `json:"scores"`
}

type ChatMessage struct {
	Type    string `json:"type"` // "chat_message"
	Player  string `json:"player"`
	Message string `json:"message"`
}

type PongMessage struct {
	Type string `json:"type"` // "pong"
}

// Coordinator orchestrates the registry, the fan-out, and the turn
// engines behind the websocket endpoint.
type Coordinator struct {
	cfg     *Config
	reg     *Registry
	fanout  *Fanout
	store   RoomStore
	history HistorySink
}

func NewCoordinator(cfg *Config, reg *Registry, fanout *Fanout, store RoomStore, history HistorySink) *Coordinator {
	if store == nil {
		store = noopStore{}
	}
	if history == nil {
		history = noopHistory{}
	}
	return &Coordinator{
		cfg:     cfg,
		reg:     reg,
		fanout:  fanout,
		store:   store,
		history: history,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS is the websocket handshake handler for /game/:gameid/ws.
// A missing player_id is a protocol error; an unknown room id is not,
// the room is created on first connection.
func (co *Coordinator) ServeWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := r.URL.Query().Get("player_id")
		if playerID == "" {
			http.Error(w, "missing player_id", http.StatusBadRequest)
			return
		}

		room := co.reg.Get(gameID)
		if room == nil {
			room = co.reg.Ensure(gameID)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(co.cfg, "GAMES: Upgrade error for %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			roomID:   room.ID,
			playerID: playerID,
		}

		if !co.join(room, client) {
			_ = conn.Close()
			return
		}

		go client.writePump(co.cfg)
		co.readLoop(room, client)
	}
}

// join runs the Connecting -> Joined transition: seat ensured, room
// snapshot and host flag sent to the new connection, player_joined
// broadcast to everyone else.
func (co *Coordinator) join(room *Room, c *Client) bool {
	room.mu.Lock()

	if err := co.fanout.ConnectLocked(room, c); err != nil {
		room.mu.Unlock()
		logf(co.cfg, "GAMES: Rejected %q joining room %s: %v", c.playerID, room.code(), err)
		return false
	}

	// A room whose host is not seated (implicitly created rooms, and
	// quick rooms owned by "System") adopts the first seated joiner.
	if room.seatIndexLocked(room.Host) == -1 && room.seatIndexLocked(c.playerID) != -1 {
		room.Host = c.playerID
	}
	isHost := room.Host == c.playerID

	co.fanout.Send(c, ConnectionEstablishedMessage{
		Type:     "connection_established",
		PlayerID: c.playerID,
		GameID:   room.ID,
	})
	co.fanout.Send(c, GameStateMessage{
		Type:   "game_state",
		Data:   room.snapshotLocked(),
		IsHost: isHost,
	})
	co.fanout.Broadcast(room.ID, PlayerJoinedMessage{
		Type:     "player_joined",
		PlayerID: c.playerID,
		IsHost:   isHost,
	}, c)

	room.mu.Unlock()

	logf(co.cfg, "GAMES: Player %q joined room %s", c.playerID, room.code())
	co.store.SaveRoom(room)

	return true
}

// readLoop consumes inbound frames until the transport dies or the
// player sends leave_game, then runs the departure protocol. The read
// deadline doubles as the idle probe: writePump pings within the
// window and any frame, pong included, extends it.
func (co *Coordinator) readLoop(room *Room, c *Client) {
	voluntary := false

	_ = c.conn.SetReadDeadline(time.Now().Add(co.cfg.probeTimeout))
	c.conn.SetReadLimit(1024)
	c.conn.SetPongHandler(func(string) error {
		co.fanout.Touch(c)
		return c.conn.SetReadDeadline(time.Now().Add(co.cfg.probeTimeout))
	})

read:
	for {
		var msg InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}

		co.fanout.Touch(c)
		_ = c.conn.SetReadDeadline(time.Now().Add(co.cfg.probeTimeout))

		switch msg.Type {
		case "move":
			co.handleMove(room, c, msg)
		case "chat":
			co.handleChat(room, c, msg)
		case "ping":
			co.fanout.Send(c, PongMessage{Type: "pong"})
		case "leave_game":
			voluntary = true
			break read
		default:
			// Malformed or unknown: drop, no state change.
			logf(co.cfg, "GAMES: Dropped message type %q from %q", msg.Type, c.playerID)
		}
	}

	_ = c.conn.Close()
	co.leave(room, c, voluntary)
}

// handleMove delegates to the turn engine under the room lock and
// broadcasts the result whether or not the move was legal.
func (co *Coordinator) handleMove(room *Room, c *Client, msg InboundMessage) {
	from, okFrom := parseSquare(msg.From)
	to, okTo := parseSquare(msg.To)
	if !okFrom || !okTo {
		// Protocol error: drop without touching the board.
		logf(co.cfg, "GAMES: Bad move coordinates %q -> %q from %q", msg.From, msg.To, c.playerID)
		return
	}

	room.mu.Lock()

	result := MoveResult{
		Success:       false,
		CurrentPlayer: room.Engine.CurrentColor(),
		Scores:        room.Engine.Scores(),
	}

	// Only the seat holding the color on turn may move it.
	idx := room.seatIndexLocked(c.playerID)
	if idx != -1 && room.Seats[idx].Color == room.Engine.CurrentColor() {
		result = room.Engine.ApplyMove(from, to)
	}

	piece := msg.Piece
	if result.Success {
		if p := room.Engine.PieceAt(to); p != nil {
			piece = p.Type
		}
		room.Status = StatusActive
		room.lastActive = time.Now()
		room.Moves = append(room.Moves, MoveRecord{
			Number:       len(room.Moves) + 1,
			Color:        room.Engine.PieceAt(to).Color,
			From:         from.String(),
			To:           to.String(),
			Piece:        piece,
			Captured:     result.Captured,
			PointsEarned: result.PointsEarned,
			Timestamp:    time.Now(),
		})
	}

	co.fanout.Broadcast(room.ID, MoveMadeMessage{
		Type:          "move_made",
		Player:        c.playerID,
		From:          msg.From,
		To:            msg.To,
		Piece:         piece,
		Success:       result.Success,
		Captured:      result.Captured,
		Points:        result.PointsEarned,
		CurrentPlayer: result.CurrentPlayer,
		Scores:        result.Scores,
	}, nil)

	if result.Success {
		co.fanout.Broadcast(room.ID, GameStateMessage{
			Type: "game_state",
			Data: room.snapshotLocked(),
		}, nil)
	}

	room.mu.Unlock()

	if result.Success {
		co.store.SaveRoom(room)
	}
}

func (co *Coordinator) handleChat(room *Room, c *Client, msg InboundMessage) {
	if msg.Text == "" {
		return
	}

	room.mu.Lock()
	room.lastActive = time.Now()
	co.fanout.Broadcast(room.ID, ChatMessage{
		Type:    "chat_message",
		Player:  c.playerID,
		Message: msg.Text,
	}, nil)
	room.mu.Unlock()
}

// leave runs the departure protocol: fan-out disconnect, then either
// host migration or a plain seat removal. The voluntary flag is
// informational only.
func (co *Coordinator) leave(room *Room, c *Client, voluntary bool) {
	co.fanout.Disconnect(c)

	if voluntary {
		logf(co.cfg, "GAMES: Player %q left room %s", c.playerID, room.code())
	} else {
		logf(co.cfg, "GAMES: Player %q disconnected from room %s", c.playerID, room.code())
	}

	if co.reg.Get(room.ID) == nil {
		return
	}

	room.mu.Lock()

	// Another connection for the same player (a second tab) keeps the
	// seat alive.
	if co.fanout.HasConnection(room.ID, c.playerID) {
		room.mu.Unlock()
		return
	}

	idx := room.seatIndexLocked(c.playerID)
	if idx == -1 {
		// Spectator, no seat to clean up.
		room.mu.Unlock()
		return
	}

	if room.Host != c.playerID {
		room.Seats = append(room.Seats[:idx], room.Seats[idx+1:]...)
		empty := len(room.Seats) == 0
		co.fanout.Broadcast(room.ID, PlayerLeftMessage{
			Type:     "player_left",
			PlayerID: c.playerID,
		}, nil)
		room.lastActive = time.Now()
		room.mu.Unlock()

		if empty {
			co.finishRoom(room)
			return
		}
		co.store.SaveRoom(room)
		return
	}

	co.migrateHost(room, c.playerID)
}

// migrateHost reassigns leadership after the host's departure. Called
// with room.mu held; releases it.
func (co *Coordinator) migrateHost(room *Room, oldHost string) {
	remaining := make([]Seat, 0, len(room.Seats))
	for _, seat := range room.Seats {
		if seat.Name != oldHost {
			remaining = append(remaining, seat)
		}
	}

	if len(remaining) == 0 {
		room.mu.Unlock()
		co.finishRoom(room)
		return
	}

	room.Seats = remaining
	room.Host = remaining[0].Name
	room.lastActive = time.Now()

	migration := HostMigrationMessage{
		Type:    "host_migration",
		NewHost: room.Host,
		OldHost: oldHost,
	}
	if len(remaining) > 1 {
		migration.RemainingPlayers = len(remaining)
	}
	co.fanout.Broadcast(room.ID, migration, nil)
	room.mu.Unlock()

	logf(co.cfg, "GAMES: Host of room %s migrated from %q to %q", room.code(), oldHost, room.Host)
	co.store.SaveRoom(room)
}

// finishRoom deletes an emptied room and, when it saw any moves, hands
// a finished-room snapshot to the match-history sink.
func (co *Coordinator) finishRoom(room *Room) {
	room.mu.Lock()
	played := len(room.Moves) > 0
	if played {
		room.Status = StatusFinished
		for i := range room.Seats {
			room.Seats[i].FinalScore = room.Engine.scores[room.Seats[i].Color]
		}
	}
	snap := room.snapshotLocked()
	moves := make([]MoveRecord, len(room.Moves))
	copy(moves, room.Moves)
	room.mu.Unlock()

	co.reg.Remove(room.ID)

	if played {
		co.history.ArchiveMatch(snap, moves)
	}
}

// sweepLoop periodically probes every room's connections so silently
// dead transports are cleaned up even when their read deadline never
// fires.
func (co *Coordinator) sweepLoop() {
	ticker := time.NewTicker(co.cfg.probeTimeout)
	for range ticker.C {
		for _, roomID := range co.fanout.RoomIDs() {
			co.fanout.SweepLiveness(roomID)
		}
	}
}
