package journal

import (
	"github.com/doggy8088/Minesweeper3D/internal/game"
)

// Document is the append-structured record of one room: its chat, every
// game played in it, and lifecycle events. One JSON file per room lives
// under {dataDir}/rooms/{CODE}.json until the room closes.
type Document struct {
	RoomCode  string        `json:"roomCode"`
	CreatedAt int64         `json:"createdAt"`
	HostName  string        `json:"hostName"`
	GuestName string        `json:"guestName,omitempty"`
	Settings  game.Settings `json:"settings"`
	Messages  []ChatMessage `json:"messages"`
	Games     []GameRecord  `json:"games"`
	Events    []Event       `json:"events"`
	ClosedAt  int64         `json:"closedAt,omitempty"`
}

// ChatMessage is one danmaku entry as delivered to clients.
type ChatMessage struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	IsPlayer  bool   `json:"isPlayer"`
}

// GameRecord captures a single game from start to terminal.
type GameRecord struct {
	StartedAt      int64         `json:"startedAt"`
	EndedAt        int64         `json:"endedAt,omitempty"`
	StartingPlayer game.Role     `json:"startingPlayer"`
	Settings       game.Settings `json:"settings"`
	Moves          []Move        `json:"moves"`
	Result         *Result       `json:"result,omitempty"`
}

// Move kinds recorded inside a game.
const (
	MoveReveal  = "reveal"
	MovePass    = "pass"
	MoveTimeout = "timeout"
)

// Move is one recorded action, in broadcast order.
type Move struct {
	Type       string    `json:"type"`
	Player     game.Role `json:"player"`
	X          *int      `json:"x,omitempty"`
	Z          *int      `json:"z,omitempty"`
	Revealed   int       `json:"revealed,omitempty"`
	HitMine    bool      `json:"hitMine,omitempty"`
	AutoPassed bool      `json:"autoPassed,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

// Result is the terminal record of a game.
type Result struct {
	Winner game.Role   `json:"winner"`
	Loser  game.Role   `json:"loser"`
	Reason string      `json:"reason"`
	Scores game.Scores `json:"scores"`
}

// Event is a room lifecycle entry (created, joins, closes).
type Event struct {
	Type      string `json:"type"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Clone deep-copies the document so snapshot readers never share slices
// with the actor's working copy.
func (d *Document) Clone() Document {
	out := *d
	out.Messages = append([]ChatMessage(nil), d.Messages...)
	out.Events = append([]Event(nil), d.Events...)
	out.Games = make([]GameRecord, len(d.Games))
	for i, g := range d.Games {
		cp := g
		cp.Moves = append([]Move(nil), g.Moves...)
		if g.Result != nil {
			res := *g.Result
			cp.Result = &res
		}
		out.Games[i] = cp
	}
	return out
}
