package ws

import (
	"github.com/doggy8088/Minesweeper3D/internal/game"
	"github.com/doggy8088/Minesweeper3D/internal/journal"
	"github.com/doggy8088/Minesweeper3D/internal/room"
)

// client → server

type CreateRoomPayload struct {
	PlayerName string            `json:"playerName"`
	Settings   *SettingsOverride `json:"settings,omitempty"`
}

// SettingsOverride carries per-room tuning from the room creator. Zero
// fields fall back to the server defaults before clamping.
type SettingsOverride struct {
	GridSize         int `json:"gridSize,omitempty"`
	MinesCount       int `json:"minesCount,omitempty"`
	TurnTimeLimit    int `json:"turnTimeLimit,omitempty"`
	MinRevealsToPass int `json:"minRevealsToPass,omitempty"`
}

type JoinRoomPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type RevealTilePayload struct {
	X int `json:"x"`
	Z int `json:"z"`
}

type SpectatePayload struct {
	RoomCode string `json:"roomCode"`
}

type DanmakuPayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
	Nickname string `json:"nickname"`
	IsPlayer bool   `json:"isPlayer,omitempty"`
}

type UpdateNamePayload struct {
	NewName string `json:"newName"`
}

// server → client

type RoomCreatedPayload struct {
	RoomCode string        `json:"roomCode"`
	Role     game.Role     `json:"role"`
	Settings game.Settings `json:"settings"`
}

type RoomJoinedPayload struct {
	RoomCode string        `json:"roomCode"`
	Role     game.Role     `json:"role"`
	HostName string        `json:"hostName"`
	Settings game.Settings `json:"settings"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type RedirectToSpectatePayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

type PlayerJoinedPayload struct {
	Opponent string `json:"opponent"`
}

type PlayerLeftPayload struct {
	Role game.Role `json:"role"`
}

// GameStartPayload opens a game for every audience. Grid is the masked
// view for players and the god view for spectators.
type GameStartPayload struct {
	Grid          any             `json:"grid"`
	GridSize      int             `json:"gridSize"`
	MinesCount    int             `json:"minesCount"`
	CurrentPlayer game.Role       `json:"currentPlayer"`
	TurnTimeLimit int             `json:"turnTimeLimit"`
	TimeRemaining *int            `json:"timeRemaining"`
	IsFirstMove   bool            `json:"isFirstMove"`
	Host          string          `json:"host"`
	Guest         string          `json:"guest"`
	MatchStats    room.MatchStats `json:"matchStats"`
}

type TileRevealedPayload struct {
	X               int                 `json:"x"`
	Z               int                 `json:"z"`
	Player          game.Role           `json:"player"`
	HitMine         bool                `json:"hitMine"`
	RevealedTiles   []game.RevealedTile `json:"revealedTiles"`
	CanPass         bool                `json:"canPass"`
	RevealsThisTurn int                 `json:"revealsThisTurn"`
	Scores          game.Scores         `json:"scores"`
	TimeRemaining   int                 `json:"timeRemaining"`
	TimerStarted    bool                `json:"timerStarted,omitempty"`
}

type TurnChangedPayload struct {
	CurrentPlayer  game.Role    `json:"currentPlayer"`
	PreviousPlayer game.Role    `json:"previousPlayer"`
	Scores         *game.Scores `json:"scores,omitempty"`
	TimeRemaining  int          `json:"timeRemaining"`
	Reason         string       `json:"reason,omitempty"`
}

type TimerUpdatePayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

type TimeoutActionPayload struct {
	Player        game.Role   `json:"player"`
	AutoPassed    bool        `json:"autoPassed"`
	NextPlayer    game.Role   `json:"nextPlayer"`
	TimeRemaining int         `json:"timeRemaining"`
	Scores        game.Scores `json:"scores"`
}

type GameOverPayload struct {
	Winner     game.Role       `json:"winner"`
	Loser      game.Role       `json:"loser"`
	Reason     string          `json:"reason"`
	Scores     game.Scores     `json:"scores"`
	AllMines   []game.Position `json:"allMines"`
	MatchStats room.MatchStats `json:"matchStats"`
}

type RestartRequestedPayload struct {
	From game.Role `json:"from"`
}

type SpectatorCountPayload struct {
	Count int `json:"count"`
}

type DanmakuEventPayload struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	IsPlayer  bool   `json:"isPlayer"`
}

type PlayerNameUpdatedPayload struct {
	Role    game.Role `json:"role"`
	NewName string    `json:"newName"`
}

// GameSnapshot is the god-view state handed to a late-joining spectator.
type GameSnapshot struct {
	Grid            [][]game.Tile `json:"grid"`
	GridSize        int           `json:"gridSize"`
	MinesCount      int           `json:"minesCount"`
	CurrentPlayer   game.Role     `json:"currentPlayer"`
	TurnTimeLimit   int           `json:"turnTimeLimit"`
	TimeRemaining   *int          `json:"timeRemaining"`
	RevealsThisTurn int           `json:"revealsThisTurn"`
	Scores          game.Scores   `json:"scores"`
}

type SpectateJoinedPayload struct {
	RoomCode       string                `json:"roomCode"`
	HostName       string                `json:"hostName"`
	GuestName      string                `json:"guestName"`
	SpectatorCount int                   `json:"spectatorCount"`
	GameState      game.Status           `json:"gameState"`
	Game           *GameSnapshot         `json:"game"`
	MatchStats     room.MatchStats       `json:"matchStats"`
	MessageHistory []journal.ChatMessage `json:"messageHistory"`
}

type RoomClosedPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
