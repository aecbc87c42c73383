package room

import (
	"sort"

	"github.com/doggy8088/Minesweeper3D/internal/game"
)

// RoomStats is the admin-facing projection of one room.
type RoomStats struct {
	Code           string        `json:"code"`
	State          game.Status   `json:"state"`
	HostName       string        `json:"hostName"`
	GuestName      string        `json:"guestName,omitempty"`
	Settings       game.Settings `json:"settings"`
	CreatedAt      int64         `json:"createdAt"`
	GameStartedAt  int64         `json:"gameStartedAt,omitempty"`
	PlayDuration   int64         `json:"playDuration,omitempty"` // seconds
	SpectatorCount int           `json:"spectatorCount"`
	CurrentPlayer  game.Role     `json:"currentPlayer,omitempty"`
	TimeRemaining  *int          `json:"timeRemaining,omitempty"`
	Scores         *game.Scores  `json:"scores,omitempty"`
	MatchStats     MatchStats    `json:"matchStats"`
}

// StatsSummary is the full room table pushed to admin subscribers.
type StatsSummary struct {
	TotalRooms    int         `json:"totalRooms"`
	PlayingCount  int         `json:"playingCount"`
	WaitingCount  int         `json:"waitingCount"`
	FinishedCount int         `json:"finishedCount"`
	Rooms         []RoomStats `json:"rooms"`
}

// Stats projects every live room, oldest first.
func (reg *Registry) Stats() StatsSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	summary := StatsSummary{Rooms: make([]RoomStats, 0, len(reg.rooms))}
	now := reg.now()

	for _, r := range reg.rooms {
		r.Lock()

		rs := RoomStats{
			Code:           r.Code,
			State:          r.State,
			HostName:       r.SeatName(game.RoleHost),
			GuestName:      r.SeatName(game.RoleGuest),
			Settings:       r.Settings,
			CreatedAt:      r.CreatedAt.UnixMilli(),
			SpectatorCount: len(r.Spectators),
			MatchStats:     r.Stats,
		}
		if !r.GameStartedAt.IsZero() {
			rs.GameStartedAt = r.GameStartedAt.UnixMilli()
			if r.State == game.StatusPlaying {
				rs.PlayDuration = int64(now.Sub(r.GameStartedAt).Seconds())
			}
		}
		if r.Game != nil {
			rs.CurrentPlayer = r.Game.CurrentPlayer()
			scores := r.Game.Scores()
			rs.Scores = &scores
			if remaining, running := r.Game.TimeRemaining(); running {
				rs.TimeRemaining = &remaining
			}
		}

		r.Unlock()

		switch rs.State {
		case game.StatusPlaying:
			summary.PlayingCount++
		case game.StatusWaiting:
			summary.WaitingCount++
		case game.StatusFinished:
			summary.FinishedCount++
		}
		summary.Rooms = append(summary.Rooms, rs)
	}

	summary.TotalRooms = len(summary.Rooms)
	sort.Slice(summary.Rooms, func(i, j int) bool {
		if summary.Rooms[i].CreatedAt != summary.Rooms[j].CreatedAt {
			return summary.Rooms[i].CreatedAt < summary.Rooms[j].CreatedAt
		}
		return summary.Rooms[i].Code < summary.Rooms[j].Code
	})
	return summary
}
