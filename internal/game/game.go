package game

// Role identifies one of the two seats in a room. The host created the
// room and starts the first game; the starter of later games is the
// previous loser.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Status of a single game.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Terminal reasons carried by game_over events.
const (
	ReasonHitMine              = "hit_mine"
	ReasonAllSafeRevealed      = "all_safe_revealed"
	ReasonOpponentDisconnected = "opponent_disconnected"
	ReasonTimeoutNoAction      = "timeout_no_action"
)

// ReasonTimeoutAutoPass annotates the turn_changed event that follows an
// idle timeout; it is not a terminal reason.
const ReasonTimeoutAutoPass = "timeout_auto_pass"

// ScorePerTile is awarded per safe tile revealed after the opening click.
const ScorePerTile = 10

// Settings are the per-game tuning knobs, snapshotted at room creation.
type Settings struct {
	GridSize         int `json:"gridSize"`
	MinesCount       int `json:"minesCount"`
	TurnTimeLimit    int `json:"turnTimeLimit"`
	MinRevealsToPass int `json:"minRevealsToPass"`
}

// Normalize clamps client-supplied overrides to playable bounds. The
// mines ceiling keeps a full 3x3 first-click safe zone placeable; the
// pass threshold can never exceed the number of safe tiles.
func (s Settings) Normalize() Settings {
	s.GridSize = clamp(s.GridSize, 5, 30)

	maxMines := s.GridSize*s.GridSize - 9
	s.MinesCount = clamp(s.MinesCount, 1, maxMines)

	s.TurnTimeLimit = clamp(s.TurnTimeLimit, 5, 600)

	maxReveals := s.GridSize*s.GridSize - s.MinesCount
	s.MinRevealsToPass = clamp(s.MinRevealsToPass, 1, maxReveals)

	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scores holds both seats' points.
type Scores struct {
	Host  int `json:"host"`
	Guest int `json:"guest"`
}

// Of returns the score for the given seat.
func (s Scores) Of(r Role) int {
	if r == RoleHost {
		return s.Host
	}
	return s.Guest
}

func (s *Scores) add(r Role, points int) {
	if r == RoleHost {
		s.Host += points
	} else {
		s.Guest += points
	}
}
