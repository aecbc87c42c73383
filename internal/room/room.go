package room

import (
	"sync"
	"time"

	"github.com/doggy8088/Minesweeper3D/internal/game"
)

// Player is one seated connection.
type Player struct {
	ConnID string
	Name   string
}

// MatchStats counts naturally finished games in a room. Disconnect
// forfeits do not touch it.
type MatchStats struct {
	GamesPlayed int `json:"gamesPlayed"`
	HostWins    int `json:"hostWins"`
	GuestWins   int `json:"guestWins"`
}

// Room is one match: two seats, an engine while a game runs, and the
// spectator set. The embedded mutex serialises every state transition
// and broadcast for the room. Callers must hold it for any field access
// or helper call; when combined with the registry lock, the registry
// lock is taken first.
type Room struct {
	sync.Mutex

	Code     string
	Host     *Player
	Guest    *Player
	State    game.Status
	Game     *game.Engine
	Settings game.Settings
	Stats    MatchStats

	// NextStartingPlayer opens the next game; the loser of the last
	// natural terminal. Untouched by disconnect forfeits.
	NextStartingPlayer game.Role

	Spectators map[string]bool

	CreatedAt     time.Time
	GameStartedAt time.Time

	// Closed marks a room already removed from the registry so late
	// operations holding a stale pointer do nothing.
	Closed bool
}

// RoleOf resolves which seat a connection occupies.
func (r *Room) RoleOf(connID string) (game.Role, bool) {
	if r.Host != nil && r.Host.ConnID == connID {
		return game.RoleHost, true
	}
	if r.Guest != nil && r.Guest.ConnID == connID {
		return game.RoleGuest, true
	}
	return "", false
}

// Seat returns the player occupying the given seat, or nil.
func (r *Room) Seat(role game.Role) *Player {
	if role == game.RoleHost {
		return r.Host
	}
	return r.Guest
}

// SeatName returns the display name for a seat, empty when vacant.
func (r *Room) SeatName(role game.Role) string {
	if p := r.Seat(role); p != nil {
		return p.Name
	}
	return ""
}

// PlayerConnIDs lists the connected seats, host first.
func (r *Room) PlayerConnIDs() []string {
	ids := make([]string, 0, 2)
	if r.Host != nil {
		ids = append(ids, r.Host.ConnID)
	}
	if r.Guest != nil {
		ids = append(ids, r.Guest.ConnID)
	}
	return ids
}

// SpectatorConnIDs lists current spectators in no particular order.
func (r *Room) SpectatorConnIDs() []string {
	ids := make([]string, 0, len(r.Spectators))
	for id := range r.Spectators {
		ids = append(ids, id)
	}
	return ids
}

// RecordResult folds a natural terminal into the match stats and sets
// the loser up to start the next game.
func (r *Room) RecordResult(winner game.Role) {
	r.Stats.GamesPlayed++
	if winner == game.RoleHost {
		r.Stats.HostWins++
	} else {
		r.Stats.GuestWins++
	}
	r.NextStartingPlayer = winner.Opponent()
}
