/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoomUpdate is a partial-update request for Registry.Update. Nil
// fields are left unchanged.
type RoomUpdate struct {
	Name     *string
	Status   *string
	Host     *string
	Settings *Settings
}

// Registry owns the mapping from room id to room state. The registry
// map is guarded by its own mutex; each room's contents are guarded by
// the room's mutex, so operations on different rooms never block each
// other.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	store RoomStore
	cfg   *Config
}

func NewRegistry(cfg *Config, store RoomStore) *Registry {
	if store == nil {
		store = noopStore{}
	}
	reg := &Registry{
		rooms: make(map[string]*Room),
		store: store,
		cfg:   cfg,
	}
	if cfg.sessionTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

// Create stores a new room under a freshly generated id and stamps its
// creation time.
func (reg *Registry) Create(name, variant, host string, settings Settings) *Room {
	now := time.Now()

	room := &Room{
		ID:         uuid.NewString(),
		Name:       name,
		Variant:    variant,
		Status:     StatusWaiting,
		Host:       host,
		Seats:      []Seat{},
		Settings:   settings,
		Engine:     NewEngine(variant),
		CreatedAt:  now,
		lastActive: now,
	}

	reg.mu.Lock()
	reg.rooms[room.ID] = room
	reg.mu.Unlock()

	logf(reg.cfg, "ROOMS: Created room %s (%q, %s)", room.code(), name, variant)
	reg.store.SaveRoom(room)

	return room
}

// Ensure returns the room with the given id, creating a waiting
// chaturaji room under that id on first contact. The first seated
// joiner becomes host.
func (reg *Registry) Ensure(roomID string) *Room {
	reg.mu.Lock()
	if room, ok := reg.rooms[roomID]; ok {
		reg.mu.Unlock()
		return room
	}

	now := time.Now()
	room := &Room{
		ID:         roomID,
		Name:       "Game " + strings.ToUpper(roomID[:min(len(roomID), roomCodeLen)]),
		Variant:    VariantChaturaji,
		Status:     StatusWaiting,
		Seats:      []Seat{},
		Settings:   defaultSettings(),
		Engine:     NewEngine(VariantChaturaji),
		CreatedAt:  now,
		lastActive: now,
	}
	reg.rooms[roomID] = room
	reg.mu.Unlock()

	logf(reg.cfg, "ROOMS: Created room %s on first connection", room.code())
	reg.store.SaveRoom(room)

	return room
}

// Get returns the room with the given id, or nil.
func (reg *Registry) Get(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.rooms[roomID]
}

// GetByCode returns the room whose id starts with the given short
// code, compared case-insensitively, or nil.
func (reg *Registry) GetByCode(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, room := range reg.rooms {
		if strings.EqualFold(room.code(), code) {
			return room
		}
	}
	return nil
}

// Update merges the non-nil fields of upd into the room. Unknown room
// ids are a no-op.
func (reg *Registry) Update(roomID string, upd RoomUpdate) {
	room := reg.Get(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	if upd.Name != nil {
		room.Name = *upd.Name
	}
	if upd.Status != nil {
		room.Status = *upd.Status
	}
	if upd.Host != nil {
		room.Host = *upd.Host
	}
	if upd.Settings != nil {
		room.Settings = *upd.Settings
	}
	room.lastActive = time.Now()
	room.mu.Unlock()

	reg.store.SaveRoom(room)
}

// Remove deletes the room outright.
func (reg *Registry) Remove(roomID string) {
	reg.mu.Lock()
	_, ok := reg.rooms[roomID]
	delete(reg.rooms, roomID)
	reg.mu.Unlock()

	if ok {
		logf(reg.cfg, "ROOMS: Removed room %s", roomID)
		reg.store.RemoveRoom(roomID)
	}
}

// RemovePlayer drops the named seat from the room. If that empties the
// seat list the room is deleted and nil is returned; otherwise the
// updated room is returned.
func (reg *Registry) RemovePlayer(roomID, playerID string) *Room {
	room := reg.Get(roomID)
	if room == nil {
		return nil
	}

	room.mu.Lock()
	dst := room.Seats[:0]
	for _, seat := range room.Seats {
		if seat.Name == playerID {
			continue
		}
		dst = append(dst, seat)
	}
	room.Seats = dst
	room.lastActive = time.Now()
	empty := len(room.Seats) == 0
	room.mu.Unlock()

	logf(reg.cfg, "ROOMS: Removed player %q from room %s", playerID, room.code())

	if empty {
		reg.Remove(roomID)
		return nil
	}

	reg.store.SaveRoom(room)
	return room
}

// ListActive runs empty-room cleanup, then returns all remaining rooms.
func (reg *Registry) ListActive() []*Room {
	reg.CleanupEmpty()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room)
	}
	return out
}

// CleanupEmpty deletes every room with zero connected seats. Running
// it twice in a row is the same as running it once.
func (reg *Registry) CleanupEmpty() {
	reg.mu.Lock()
	var stale []*Room
	for _, room := range reg.rooms {
		room.mu.Lock()
		if room.connectedSeatsLocked() == 0 {
			stale = append(stale, room)
		}
		room.mu.Unlock()
	}
	for _, room := range stale {
		delete(reg.rooms, room.ID)
	}
	reg.mu.Unlock()

	for _, room := range stale {
		logf(reg.cfg, "ROOMS: Cleaned up empty room %s", room.code())
		reg.store.RemoveRoom(room.ID)
	}
}

// FindOrCreateQuickRoom returns a public room with an open seat, or
// creates a fresh public chaturaji room with an empty seat list.
func (reg *Registry) FindOrCreateQuickRoom() *Room {
	reg.CleanupEmpty()

	reg.mu.Lock()
	for _, room := range reg.rooms {
		room.mu.Lock()
		open := room.Settings.Privacy == "public" && room.connectedSeatsLocked() < len(colorPalette)
		room.mu.Unlock()
		if open {
			reg.mu.Unlock()
			return room
		}
	}
	reg.mu.Unlock()

	return reg.Create("Quick Match - Chaturaji", VariantChaturaji, "System", defaultSettings())
}

// reaperLoop periodically removes rooms that have been idle longer
// than the configured session timeout.
func (reg *Registry) reaperLoop() {
	ticker := time.NewTicker(reg.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.cfg.sessionTimeout)

		reg.mu.Lock()
		var stale []*Room
		for _, room := range reg.rooms {
			room.mu.Lock()
			idle := room.lastActive.Before(cutoff)
			room.mu.Unlock()
			if idle {
				stale = append(stale, room)
			}
		}
		for _, room := range stale {
			delete(reg.rooms, room.ID)
		}
		reg.mu.Unlock()

		for _, room := range stale {
			logf(reg.cfg, "ROOMS: Reaped idle room %s", room.code())
			reg.store.RemoveRoom(room.ID)
		}
	}
}
