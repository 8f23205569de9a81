/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"
)

// FinishedMatch is the archival snapshot of a completed game: final
// scores and the full move list.
type FinishedMatch struct {
	Room       RoomSnapshot `json:"room"`
	Moves      []MoveRecord `json:"moves"`
	FinishedAt time.Time    `json:"finished_at"`
}

// HistorySink consumes finished-room snapshots. Like the room store it
// is best effort: the core never depends on archival succeeding.
type HistorySink interface {
	ArchiveMatch(room RoomSnapshot, moves []MoveRecord)
}

type noopHistory struct{}

func (noopHistory) ArchiveMatch(RoomSnapshot, []MoveRecord) {}

// memoryHistory keeps finished matches in memory, capped so a
// long-lived process does not grow without bound. The relational
// archive proper lives behind this boundary.
type memoryHistory struct {
	mu      sync.Mutex
	matches []FinishedMatch
	cap     int
	cfg     *Config
}

func newMemoryHistory(cfg *Config) *memoryHistory {
	return &memoryHistory{
		cap: 256,
		cfg: cfg,
	}
}

func (h *memoryHistory) ArchiveMatch(room RoomSnapshot, moves []MoveRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.matches = append(h.matches, FinishedMatch{
		Room:       room,
		Moves:      moves,
		FinishedAt: time.Now(),
	})
	if len(h.matches) > h.cap {
		h.matches = h.matches[len(h.matches)-h.cap:]
	}

	logf(h.cfg, "GAMES: Archived finished match %s (%d moves)", room.ID, len(moves))
}

// Matches returns a copy of the archived matches, newest last.
func (h *memoryHistory) Matches() []FinishedMatch {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]FinishedMatch, len(h.matches))
	copy(out, h.matches)
	return out
}
