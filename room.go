/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"
)

// The four seat colors, in turn order. Seat assignment always picks the
// first color not already taken, so the set of colors in use is a
// duplicate-free subset of this palette.
var colorPalette = []string{"red", "blue", "yellow", "green"}

// Supported game variants.
const (
	VariantChaturaji = "chaturaji"
	VariantEnochian  = "enochian"
)

// Room lifecycle states.
const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Seat is one player's membership record within a room.
type Seat struct {
	Name       string `json:"name"`
	Color      string `json:"color"`
	Connected  bool   `json:"connected"`
	FinalScore int    `json:"final_score,omitempty"`
}

// Settings holds the free-form room options chosen at creation time.
type Settings struct {
	TimeLimit         int    `json:"time_limit"`
	Privacy           string `json:"privacy"` // "public" or "private"
	SpectatorsAllowed bool   `json:"spectators_allowed"`
	MoveHints         bool   `json:"move_hints"`
	SoundEffects      bool   `json:"sound_effects"`
	AutoSave          bool   `json:"auto_save"`
}

func defaultSettings() Settings {
	return Settings{
		TimeLimit:         30,
		Privacy:           "public",
		SpectatorsAllowed: true,
		MoveHints:         true,
		SoundEffects:      true,
		AutoSave:          false,
	}
}

// MoveRecord is one entry in a room's move history, kept for the
// match-history collaborator.
type MoveRecord struct {
	Number       int       `json:"number"`
	Color        string    `json:"color"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Piece        string    `json:"piece"`
	Captured     string    `json:"captured,omitempty"`
	PointsEarned int       `json:"points_earned"`
	Timestamp    time.Time `json:"timestamp"`
}

// Room is one game session. All fields except ID are mutable and must
// only be touched while holding mu; two operations on different rooms
// never block each other.
type Room struct {
	mu sync.Mutex

	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Variant    string       `json:"variant"`
	Status     string       `json:"status"`
	Host       string       `json:"host"`
	Seats      []Seat       `json:"players"`
	Settings   Settings     `json:"settings"`
	Engine     *Engine      `json:"-"`
	Moves      []MoveRecord `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	lastActive time.Time
}

// RoomSnapshot is the wire-safe view of a room, sent in game_state
// payloads and returned by the REST API.
type RoomSnapshot struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Variant       string         `json:"variant"`
	Status        string         `json:"status"`
	Host          string         `json:"host"`
	Players       []Seat         `json:"players"`
	Settings      Settings       `json:"settings"`
	CurrentPlayer int            `json:"current_player"`
	CurrentColor  string         `json:"current_color"`
	Scores        map[string]int `json:"scores"`
	CreatedAt     time.Time      `json:"created_at"`
}

// snapshotLocked assumes r.mu is already held.
func (r *Room) snapshotLocked() RoomSnapshot {
	seats := make([]Seat, len(r.Seats))
	copy(seats, r.Seats)

	return RoomSnapshot{
		ID:            r.ID,
		Name:          r.Name,
		Variant:       r.Variant,
		Status:        r.Status,
		Host:          r.Host,
		Players:       seats,
		Settings:      r.Settings,
		CurrentPlayer: r.Engine.CurrentPlayer(),
		CurrentColor:  r.Engine.CurrentColor(),
		Scores:        r.Engine.Scores(),
		CreatedAt:     r.CreatedAt,
	}
}

func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

// seatIndexLocked returns the index of the named seat, or -1.
func (r *Room) seatIndexLocked(playerID string) int {
	for i := range r.Seats {
		if r.Seats[i].Name == playerID {
			return i
		}
	}
	return -1
}

// connectedSeatsLocked counts seats currently marked connected.
func (r *Room) connectedSeatsLocked() int {
	n := 0
	for i := range r.Seats {
		if r.Seats[i].Connected {
			n++
		}
	}
	return n
}

// nextFreeColorLocked returns the first palette color not already
// assigned to a seat, or "" when the room is full.
func (r *Room) nextFreeColorLocked() string {
	taken := make(map[string]bool, len(r.Seats))
	for i := range r.Seats {
		taken[r.Seats[i].Color] = true
	}
	for _, color := range colorPalette {
		if !taken[color] {
			return color
		}
	}
	return ""
}

// roomCodeLen is the shareable short-code length: the first characters
// of the room id. Codes are compared case-insensitively.
const roomCodeLen = 6

func (r *Room) code() string {
	if len(r.ID) < roomCodeLen {
		return r.ID
	}
	return r.ID[:roomCodeLen]
}
