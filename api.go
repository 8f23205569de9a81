/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// The room API is the boundary consumed by the presentation layer:
// JSON in, JSON out, mapping 1:1 onto registry operations.

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
}

type createGameRequest struct {
	RoomName          string `json:"room_name"`
	Variant           string `json:"variant"`
	HostName          string `json:"host_name"`
	TimeLimit         int    `json:"time_limit"`
	Privacy           string `json:"privacy"`
	SpectatorsAllowed bool   `json:"spectators_allowed"`
	MoveHints         bool   `json:"move_hints"`
	SoundEffects      bool   `json:"sound_effects"`
	AutoSave          bool   `json:"auto_save"`
}

type joinGameRequest struct {
	RoomCode   string `json:"room_code"`
	PlayerName string `json:"player_name"`
}

type gameCreatedResponse struct {
	ID       string `json:"id"`
	RoomCode string `json:"room_code"`
	Color    string `json:"color,omitempty"`
}

// serveActiveGames lists all rooms after running empty-room cleanup.
func serveActiveGames(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		rooms := reg.ListActive()
		out := make([]RoomSnapshot, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, room.Snapshot())
		}

		writeJSON(cfg, w, http.StatusOK, out)

		logf(cfg, "SERVE: Active game list (%d rooms) to %s in %s",
			len(out),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveCreateGame creates a room and seats the host on the first
// palette color.
func serveCreateGame(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "malformed request body"})
			return
		}
		if req.RoomName == "" || req.HostName == "" {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "room_name and host_name are required"})
			return
		}

		variant := req.Variant
		if variant != VariantEnochian {
			variant = VariantChaturaji
		}

		settings := defaultSettings()
		settings.SpectatorsAllowed = req.SpectatorsAllowed
		settings.MoveHints = req.MoveHints
		settings.SoundEffects = req.SoundEffects
		settings.AutoSave = req.AutoSave
		if req.TimeLimit > 0 {
			settings.TimeLimit = req.TimeLimit
		}
		if req.Privacy == "private" {
			settings.Privacy = "private"
		}

		room := reg.Create(req.RoomName, variant, req.HostName, settings)

		room.mu.Lock()
		color := room.nextFreeColorLocked()
		room.Seats = append(room.Seats, Seat{
			Name:      req.HostName,
			Color:     color,
			Connected: true,
		})
		room.mu.Unlock()

		writeJSON(cfg, w, http.StatusCreated, gameCreatedResponse{
			ID:       room.ID,
			RoomCode: room.code(),
			Color:    color,
		})
	}
}

// serveJoinGame seats a player in an existing room, found by its
// 6-character room code.
func serveJoinGame(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req joinGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "malformed request body"})
			return
		}
		if req.RoomCode == "" || req.PlayerName == "" {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "room_code and player_name are required"})
			return
		}

		room := reg.GetByCode(req.RoomCode)
		if room == nil {
			writeJSON(cfg, w, http.StatusNotFound, apiError{Error: "game not found"})
			return
		}

		room.mu.Lock()
		if room.seatIndexLocked(req.PlayerName) == -1 {
			color := room.nextFreeColorLocked()
			if color == "" {
				room.mu.Unlock()
				writeJSON(cfg, w, http.StatusConflict, apiError{Error: "game is full"})
				return
			}
			room.Seats = append(room.Seats, Seat{
				Name:      req.PlayerName,
				Color:     color,
				Connected: true,
			})
		}
		roomID := room.ID
		code := room.code()
		idx := room.seatIndexLocked(req.PlayerName)
		color := room.Seats[idx].Color
		room.mu.Unlock()

		logf(cfg, "GAMES: Player %q joined room %s as %s via API", req.PlayerName, code, color)

		writeJSON(cfg, w, http.StatusOK, gameCreatedResponse{
			ID:       roomID,
			RoomCode: code,
			Color:    color,
		})
	}
}

// serveQuickMatch finds a public room with an open seat or creates a
// fresh one.
func serveQuickMatch(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		room := reg.FindOrCreateQuickRoom()
		writeJSON(cfg, w, http.StatusOK, room.Snapshot())
	}
}

// serveGameDetail returns one room's snapshot.
func serveGameDetail(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := reg.Get(ps.ByName("gameid"))
		if room == nil {
			writeJSON(cfg, w, http.StatusNotFound, apiError{Error: "game not found"})
			return
		}
		writeJSON(cfg, w, http.StatusOK, room.Snapshot())
	}
}

// serveHistory returns archived finished matches, for the match
// history collaborator.
func serveHistory(cfg *Config, history *memoryHistory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, history.Matches())
	}
}

func registerGameAPI(cfg *Config, mux *httprouter.Router, reg *Registry, history *memoryHistory) {
	mux.GET(cfg.prefix+"/api/games/active", serveActiveGames(cfg, reg))
	mux.POST(cfg.prefix+"/api/games", serveCreateGame(cfg, reg))
	mux.POST(cfg.prefix+"/api/games/join", serveJoinGame(cfg, reg))
	mux.POST(cfg.prefix+"/api/games/quick-match", serveQuickMatch(cfg, reg))
	// Registered under /api/game/ because httprouter cannot mix the
	// static "active" segment with a parameter at the same position.
	mux.GET(cfg.prefix+"/api/game/:gameid", serveGameDetail(cfg, reg))
	mux.GET(cfg.prefix+"/api/history", serveHistory(cfg, history))
}
