/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// RoomStore is the external persistence hook. Calls are best effort:
// implementations never block room operations on the store succeeding,
// and failures are logged rather than returned.
type RoomStore interface {
	SaveRoom(room *Room)
	RemoveRoom(roomID string)
	SetPlayerConnected(roomID, playerID string, connected bool)
}

// noopStore is used when no store address is configured.
type noopStore struct{}

func (noopStore) SaveRoom(*Room)                          {}
func (noopStore) RemoveRoom(string)                       {}
func (noopStore) SetPlayerConnected(string, string, bool) {}

const storeTimeout = 2 * time.Second

// redisStore mirrors room state into Redis hashes, keyed
// game:{id}:state and game:{id}:players. Writes run in their own
// goroutine with a short deadline so a slow or absent Redis never
// stalls a room.
type redisStore struct {
	client *redis.Client
	cfg    *Config
}

func newRedisStore(cfg *Config) *redisStore {
	return &redisStore{
		client: redis.NewClient(&redis.Options{Addr: cfg.storeAddr}),
		cfg:    cfg,
	}
}

func (s *redisStore) SaveRoom(room *Room) {
	snap := room.Snapshot()

	room.mu.Lock()
	board := room.Engine.BoardState()
	room.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		fields := map[string]interface{}{
			"name":           snap.Name,
			"variant":        snap.Variant,
			"status":         snap.Status,
			"host":           snap.Host,
			"current_player": snap.CurrentPlayer,
		}
		for _, key := range []struct {
			name string
			val  interface{}
		}{
			{"players", snap.Players},
			{"settings", snap.Settings},
			{"scores", snap.Scores},
			{"board", board},
		} {
			data, err := json.Marshal(key.val)
			if err != nil {
				continue
			}
			fields[key.name] = string(data)
		}

		if err := s.client.HSet(ctx, "game:"+snap.ID+":state", fields).Err(); err != nil {
			logf(s.cfg, "STORE: Save of room %s failed: %v", snap.ID, err)
		}
	}()
}

func (s *redisStore) RemoveRoom(roomID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if err := s.client.Del(ctx, "game:"+roomID+":state", "game:"+roomID+":players").Err(); err != nil {
			logf(s.cfg, "STORE: Delete of room %s failed: %v", roomID, err)
		}
	}()
}

func (s *redisStore) SetPlayerConnected(roomID, playerID string, connected bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		state := "disconnected"
		if connected {
			state = "connected"
		}

		if err := s.client.HSet(ctx, "game:"+roomID+":players", playerID, state).Err(); err != nil {
			logf(s.cfg, "STORE: Player flag for %s/%s failed: %v", roomID, playerID, err)
		}
	}()
}
