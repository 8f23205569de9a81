package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		probeTimeout: 30 * time.Second,
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)

	room := reg.Create("Friday Night", VariantChaturaji, "alice", defaultSettings())
	require.NotEmpty(t, room.ID)
	assert.Equal(t, StatusWaiting, room.Status)
	assert.False(t, room.CreatedAt.IsZero())
	assert.Empty(t, room.Seats)

	assert.Same(t, room, reg.Get(room.ID))
	assert.Nil(t, reg.Get("no-such-room"))
}

func TestRegistryGetByCode(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	room := reg.Create("Friday Night", VariantChaturaji, "alice", defaultSettings())

	assert.Same(t, room, reg.GetByCode(room.code()))
	assert.Same(t, room, reg.GetByCode(strings.ToUpper(room.code())), "codes match case-insensitively")
	assert.Nil(t, reg.GetByCode("zzzzzz"))
}

func TestRegistryUpdateMergesFields(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	room := reg.Create("Friday Night", VariantChaturaji, "alice", defaultSettings())

	status := StatusActive
	host := "bob"
	reg.Update(room.ID, RoomUpdate{Status: &status, Host: &host})

	snap := room.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, "bob", snap.Host)
	assert.Equal(t, "Friday Night", snap.Name, "unset fields are left alone")

	// Unknown room ids are a no-op, not an error.
	reg.Update("no-such-room", RoomUpdate{Status: &status})
}

func TestRemovePlayerDeletesEmptiedRoom(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	room := reg.Create("Solo", VariantChaturaji, "alice", defaultSettings())

	room.mu.Lock()
	room.Seats = append(room.Seats, Seat{Name: "alice", Color: "red", Connected: true})
	room.mu.Unlock()

	got := reg.RemovePlayer(room.ID, "alice")
	assert.Nil(t, got, "dropping the last seat deletes the room")
	assert.Nil(t, reg.Get(room.ID))
}

func TestRemovePlayerKeepsPopulatedRoom(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)
	room := reg.Create("Duo", VariantChaturaji, "alice", defaultSettings())

	room.mu.Lock()
	room.Seats = append(room.Seats,
		Seat{Name: "alice", Color: "red", Connected: true},
		Seat{Name: "bob", Color: "blue", Connected: true},
	)
	room.mu.Unlock()

	got := reg.RemovePlayer(room.ID, "alice")
	require.NotNil(t, got)

	snap := got.Snapshot()
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "bob", snap.Players[0].Name)
}

func TestCleanupEmptyIsIdempotent(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)

	occupied := reg.Create("Occupied", VariantChaturaji, "alice", defaultSettings())
	occupied.mu.Lock()
	occupied.Seats = append(occupied.Seats, Seat{Name: "alice", Color: "red", Connected: true})
	occupied.mu.Unlock()

	abandoned := reg.Create("Abandoned", VariantChaturaji, "bob", defaultSettings())
	abandoned.mu.Lock()
	abandoned.Seats = append(abandoned.Seats, Seat{Name: "bob", Color: "red", Connected: false})
	abandoned.mu.Unlock()

	reg.Create("Empty", VariantChaturaji, "System", defaultSettings())

	reg.CleanupEmpty()
	first := reg.ListActive()
	require.Len(t, first, 1)
	assert.Equal(t, occupied.ID, first[0].ID)

	reg.CleanupEmpty()
	second := reg.ListActive()
	require.Len(t, second, 1)
	assert.Equal(t, occupied.ID, second[0].ID)
}

func TestFindOrCreateQuickRoomPrefersOpenPublicRoom(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)

	private := defaultSettings()
	private.Privacy = "private"
	closed := reg.Create("Private", VariantChaturaji, "alice", private)
	closed.mu.Lock()
	closed.Seats = append(closed.Seats, Seat{Name: "alice", Color: "red", Connected: true})
	closed.mu.Unlock()

	open := reg.Create("Open", VariantChaturaji, "bob", defaultSettings())
	open.mu.Lock()
	open.Seats = append(open.Seats, Seat{Name: "bob", Color: "red", Connected: true})
	open.mu.Unlock()

	assert.Same(t, open, reg.FindOrCreateQuickRoom())
}

func TestFindOrCreateQuickRoomCreatesWhenNoneOpen(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)

	full := reg.Create("Full", VariantChaturaji, "alice", defaultSettings())
	full.mu.Lock()
	for i, name := range []string{"alice", "bob", "carol", "dave"} {
		full.Seats = append(full.Seats, Seat{Name: name, Color: colorPalette[i], Connected: true})
	}
	full.mu.Unlock()

	room := reg.FindOrCreateQuickRoom()
	require.NotNil(t, room)
	assert.NotEqual(t, full.ID, room.ID)

	snap := room.Snapshot()
	assert.Equal(t, "public", snap.Settings.Privacy)
	assert.Empty(t, snap.Players, "quick rooms start with an empty seat list")
	assert.Equal(t, VariantChaturaji, snap.Variant)
}

func TestEnsureCreatesOnFirstContact(t *testing.T) {
	reg := NewRegistry(testConfig(), nil)

	room := reg.Ensure("2a9f31e8-0000-0000-0000-000000000000")
	require.NotNil(t, room)
	assert.Equal(t, VariantChaturaji, room.Variant)
	assert.Empty(t, room.Host, "implicitly created rooms adopt their first joiner")

	assert.Same(t, room, reg.Ensure(room.ID), "ensure is idempotent")
}
