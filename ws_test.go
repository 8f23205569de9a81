package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()

	cfg := testConfig()
	reg := NewRegistry(cfg, nil)
	fanout := NewFanout(cfg, nil)
	co := NewCoordinator(cfg, reg, fanout, nil, nil)

	mux := httprouter.New()
	mux.GET("/game/:gameid/ws", co.ServeWS())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, reg
}

func dialGame(t *testing.T, srv *httptest.Server, gameID, playerID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/" + gameID + "/ws?player_id=" + playerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectType(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()

	msg := readEnvelope(t, conn)
	require.Equal(t, msgType, msg["type"], "unexpected message %v", msg)
	return msg
}

func TestHandshakeRequiresPlayerID(t *testing.T) {
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/some-room/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGameOverWebsocket(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dialGame(t, srv, "itest-room", "alice")

	est := expectType(t, alice, "connection_established")
	assert.Equal(t, "alice", est["player_id"])

	state := expectType(t, alice, "game_state")
	assert.Equal(t, true, state["is_host"])

	bob := dialGame(t, srv, "itest-room", "bob")
	expectType(t, bob, "connection_established")
	bobState := expectType(t, bob, "game_state")
	assert.Equal(t, false, bobState["is_host"])

	joined := expectType(t, alice, "player_joined")
	assert.Equal(t, "bob", joined["player_id"])

	// Red (alice) opens with a quiet pawn push.
	require.NoError(t, alice.WriteJSON(map[string]any{
		"type": "move", "from": "a2", "to": "a3", "piece": "pawn",
	}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		made := expectType(t, conn, "move_made")
		assert.Equal(t, true, made["success"])
		assert.Equal(t, "alice", made["player"])
		assert.Equal(t, "blue", made["current_player"])

		expectType(t, conn, "game_state")
	}

	// Application-level heartbeat.
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "ping"}))
	expectType(t, bob, "pong")

	// Chat reaches the whole room.
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "chat", "text": "nice opening"}))
	chat := expectType(t, alice, "chat_message")
	assert.Equal(t, "bob", chat["player"])
	assert.Equal(t, "nice opening", chat["message"])
	expectType(t, bob, "chat_message")

	// Bob bows out; alice hears player_left and the seat disappears.
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "leave_game"}))
	left := expectType(t, alice, "player_left")
	assert.Equal(t, "bob", left["player_id"])

	require.Eventually(t, func() bool {
		room := reg.Get("itest-room")
		if room == nil {
			return false
		}
		return len(room.Snapshot().Players) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Alice drops her transport; the emptied room is cleaned up.
	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		return reg.Get("itest-room") == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHostMigrationOverWebsocket(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dialGame(t, srv, "failover-room", "alice")
	expectType(t, alice, "connection_established")
	expectType(t, alice, "game_state")

	bob := dialGame(t, srv, "failover-room", "bob")
	expectType(t, bob, "connection_established")
	expectType(t, bob, "game_state")
	expectType(t, alice, "player_joined")

	// The host's transport dies without a leave_game.
	require.NoError(t, alice.Close())

	migration := expectType(t, bob, "host_migration")
	assert.Equal(t, "alice", migration["old_host"])
	assert.Equal(t, "bob", migration["new_host"])

	require.Eventually(t, func() bool {
		room := reg.Get("failover-room")
		return room != nil && room.Snapshot().Host == "bob"
	}, 2*time.Second, 10*time.Millisecond)
}
