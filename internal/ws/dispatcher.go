package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/doggy8088/Minesweeper3D/internal/game"
	"github.com/doggy8088/Minesweeper3D/internal/journal"
	"github.com/doggy8088/Minesweeper3D/internal/logger"
	"github.com/doggy8088/Minesweeper3D/internal/metrics"
	"github.com/doggy8088/Minesweeper3D/internal/room"
)

const (
	maxNameLength    = 10
	maxMessageLength = 50
	chatCooldown     = 2 * time.Second
)

// Dispatcher routes inbound client intents into the registry and the
// per-room engines, and fans authoritative results out to the three
// audiences of a room: its players, its public spectators, and any
// admin spectators. Every room-scoped fan-out plus its journal enqueue
// happens under that room's lock, which is what makes the spectator
// streams prefix-consistent with the player stream.
type Dispatcher struct {
	defaults game.Settings
	registry *room.Registry
	store    *journal.Store
	admin    *AdminHub

	mu      sync.Mutex
	players map[string]*Client
	chat    map[string]*rate.Limiter

	now func() time.Time
}

func NewDispatcher(defaults game.Settings, registry *room.Registry, store *journal.Store, admin *AdminHub) *Dispatcher {
	return &Dispatcher{
		defaults: defaults,
		registry: registry,
		store:    store,
		admin:    admin,
		players:  make(map[string]*Client),
		chat:     make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Register attaches a player-channel connection.
func (d *Dispatcher) Register(c *Client) {
	d.mu.Lock()
	d.players[c.ID] = c
	d.mu.Unlock()
	metrics.ActiveConnections.WithLabelValues(ChannelPlayer).Inc()
}

// RegisterAdmin attaches an admin-channel connection.
func (d *Dispatcher) RegisterAdmin(c *Client) {
	metrics.ActiveConnections.WithLabelValues(ChannelAdmin).Inc()
}

func (d *Dispatcher) clientByID(id string) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.players[id]
}

func (d *Dispatcher) sendToConn(id, msgType string, payload any) {
	if c := d.clientByID(id); c != nil {
		c.sendEvent(msgType, payload)
	}
}

// broadcastLocked fans one event out to every audience of the room with
// the same payload. The caller holds the room lock.
func (d *Dispatcher) broadcastLocked(r *room.Room, msgType string, payload any) {
	data := encode(msgType, payload)
	d.fanOutLocked(r, data, data)
}

// broadcastSplitLocked fans one event out with separate player and
// spectator payloads, used where the spectator view carries mine data
// the players must not see. The caller holds the room lock.
func (d *Dispatcher) broadcastSplitLocked(r *room.Room, msgType string, playerPayload, spectatorPayload any) {
	d.fanOutLocked(r, encode(msgType, playerPayload), encode(msgType, spectatorPayload))
}

func (d *Dispatcher) fanOutLocked(r *room.Room, playerData, spectatorData []byte) {
	for _, id := range r.PlayerConnIDs() {
		if c := d.clientByID(id); c != nil {
			c.send(playerData)
		}
	}
	for id := range r.Spectators {
		if c := d.clientByID(id); c != nil {
			c.send(spectatorData)
		}
	}
	for _, c := range d.admin.SpectatorsOf(r.Code) {
		c.send(spectatorData)
	}
}

// notifyAdmins pushes a fresh rooms summary to stats subscribers. Must
// be called with no room lock held: the projection takes every room
// lock in turn.
func (d *Dispatcher) notifyAdmins() {
	d.admin.PushStats(d.registry.Stats())
}

// HandlePlayer dispatches one inbound frame from the player channel.
func (d *Dispatcher) HandlePlayer(c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendEvent(MsgError, ErrorPayload{Error: "malformed message"})
		return
	}
	metrics.IntentsDispatched.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case MsgCreateRoom:
		d.handleCreateRoom(c, msg.Payload)
	case MsgJoinRoom:
		d.handleJoinRoom(c, msg.Payload)
	case MsgRevealTile:
		d.handleRevealTile(c, msg.Payload)
	case MsgPassTurn:
		d.handlePassTurn(c)
	case MsgRequestRestart:
		d.handleRequestRestart(c)
	case MsgAcceptRestart:
		d.handleAcceptRestart(c)
	case MsgPublicSpectate:
		d.handlePublicSpectate(c, msg.Payload)
	case MsgLeaveSpectate:
		d.handleLeaveSpectate(c)
	case MsgSendDanmaku:
		d.handleSendDanmaku(c, msg.Payload)
	case MsgUpdatePlayerName:
		d.handleUpdatePlayerName(c, msg.Payload)
	default:
		c.sendEvent(MsgError, ErrorPayload{Error: "unknown event type"})
	}
}

func (d *Dispatcher) resolveSettings(o *SettingsOverride) game.Settings {
	s := d.defaults
	if o != nil {
		if o.GridSize > 0 {
			s.GridSize = o.GridSize
		}
		if o.MinesCount > 0 {
			s.MinesCount = o.MinesCount
		}
		if o.TurnTimeLimit > 0 {
			s.TurnTimeLimit = o.TurnTimeLimit
		}
		if o.MinRevealsToPass > 0 {
			s.MinRevealsToPass = o.MinRevealsToPass
		}
	}
	return s.Normalize()
}

func (d *Dispatcher) handleCreateRoom(c *Client, raw json.RawMessage) {
	var p CreateRoomPayload
	_ = json.Unmarshal(raw, &p)

	name := normalizeName(p.PlayerName)
	if name == "" {
		c.sendEvent(MsgError, ErrorPayload{Error: "player name is required"})
		return
	}

	settings := d.resolveSettings(p.Settings)
	r, err := d.registry.CreateRoom(c.ID, name, settings)
	if err != nil {
		c.sendEvent(MsgError, ErrorPayload{Error: err.Error()})
		return
	}

	c.sendEvent(MsgRoomCreated, RoomCreatedPayload{
		RoomCode: r.Code,
		Role:     game.RoleHost,
		Settings: settings,
	})
	d.store.Create(r.Code, name, settings)
	metrics.ActiveRooms.Inc()
	d.notifyAdmins()
}

func (d *Dispatcher) handleJoinRoom(c *Client, raw json.RawMessage) {
	var p JoinRoomPayload
	_ = json.Unmarshal(raw, &p)

	name := normalizeName(p.PlayerName)
	if name == "" {
		c.sendEvent(MsgJoinError, ErrorPayload{Error: "player name is required"})
		return
	}
	code := room.NormalizeCode(p.RoomCode)
	if code == "" {
		c.sendEvent(MsgJoinError, ErrorPayload{Error: "room code is required"})
		return
	}

	r, err := d.registry.JoinRoom(code, c.ID, name)
	switch {
	case errors.Is(err, room.ErrInProgress):
		c.sendEvent(MsgRedirectToSpectate, RedirectToSpectatePayload{
			RoomCode: code,
			Message:  "game already in progress, you can spectate instead",
		})
		return
	case errors.Is(err, room.ErrFinished):
		c.sendEvent(MsgRedirectToSpectate, RedirectToSpectatePayload{
			RoomCode: code,
			Message:  "game already finished, you can spectate instead",
		})
		return
	case err != nil:
		c.sendEvent(MsgJoinError, ErrorPayload{Error: err.Error()})
		return
	}

	d.store.SetGuest(r.Code, name)
	d.store.AppendEvent(r.Code, "player_joined", name)

	r.Lock()
	c.sendEvent(MsgRoomJoined, RoomJoinedPayload{
		RoomCode: r.Code,
		Role:     game.RoleGuest,
		HostName: r.SeatName(game.RoleHost),
		Settings: r.Settings,
	})
	if r.Host != nil {
		d.sendToConn(r.Host.ConnID, MsgPlayerJoined, PlayerJoinedPayload{Opponent: name})
	}
	d.startGameLocked(r)
	r.Unlock()

	d.notifyAdmins()
}

// startGameLocked spins up a fresh engine for the room and broadcasts
// game_start: masked grid to the seats, god view to spectators. The
// caller holds the room lock and owns the admin stats push afterwards.
func (d *Dispatcher) startGameLocked(r *room.Room) {
	var eng *game.Engine
	onTick := func(remaining int) {
		r.Lock()
		defer r.Unlock()
		if r.Closed || r.Game != eng {
			return
		}
		d.broadcastLocked(r, MsgTimerUpdate, TimerUpdatePayload{TimeRemaining: remaining})
	}
	onTimeout := func() {
		d.resolveTimeout(r, eng)
	}

	eng = game.NewEngine(r.Settings, r.NextStartingPlayer, onTick, onTimeout)
	eng.Start()
	r.Game = eng
	r.State = game.StatusPlaying
	r.GameStartedAt = d.now()

	base := GameStartPayload{
		GridSize:      r.Settings.GridSize,
		MinesCount:    r.Settings.MinesCount,
		CurrentPlayer: eng.CurrentPlayer(),
		TurnTimeLimit: r.Settings.TurnTimeLimit,
		TimeRemaining: nil,
		IsFirstMove:   true,
		Host:          r.SeatName(game.RoleHost),
		Guest:         r.SeatName(game.RoleGuest),
		MatchStats:    r.Stats,
	}
	playerPayload := base
	playerPayload.Grid = eng.ClientGrid()
	spectatorPayload := base
	spectatorPayload.Grid = eng.SpectatorGrid()
	d.broadcastSplitLocked(r, MsgGameStart, playerPayload, spectatorPayload)

	d.store.StartGame(r.Code, eng.CurrentPlayer(), r.Settings)
	metrics.GamesStarted.Inc()
	logger.Info("game started", "room", r.Code, "starting", eng.CurrentPlayer())
}

func (d *Dispatcher) handleRevealTile(c *Client, raw json.RawMessage) {
	r, role, ok := d.registry.GetByConn(c.ID)
	if !ok {
		c.sendEvent(MsgError, ErrorPayload{Error: "you are not in a room"})
		return
	}
	var p RevealTilePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendEvent(MsgError, ErrorPayload{Error: "malformed payload"})
		return
	}

	r.Lock()
	if r.Closed || r.Game == nil {
		r.Unlock()
		c.sendEvent(MsgError, ErrorPayload{Error: game.ErrNotPlaying.Error()})
		return
	}
	res, err := r.Game.RevealTile(p.X, p.Z, role)
	if err != nil {
		r.Unlock()
		c.sendEvent(MsgError, ErrorPayload{Error: err.Error()})
		return
	}

	d.store.AppendMove(r.Code, journal.Move{
		Type:     journal.MoveReveal,
		Player:   role,
		X:        &p.X,
		Z:        &p.Z,
		Revealed: len(res.RevealedTiles),
		HitMine:  res.HitMine,
	})
	d.broadcastLocked(r, MsgTileRevealed, TileRevealedPayload{
		X:               p.X,
		Z:               p.Z,
		Player:          role,
		HitMine:         res.HitMine,
		RevealedTiles:   res.RevealedTiles,
		CanPass:         res.CanPass,
		RevealsThisTurn: res.RevealsThisTurn,
		Scores:          res.Scores,
		TimeRemaining:   res.TimeRemaining,
		TimerStarted:    res.TimerStarted,
	})

	if res.GameOver {
		d.finishGameLocked(r, res.Winner, res.Loser, res.Reason, res.Scores, res.AllMines)
	}
	r.Unlock()

	if res.GameOver {
		d.notifyAdmins()
	}
}

func (d *Dispatcher) handlePassTurn(c *Client) {
	r, role, ok := d.registry.GetByConn(c.ID)
	if !ok {
		c.sendEvent(MsgError, ErrorPayload{Error: "you are not in a room"})
		return
	}

	r.Lock()
	defer r.Unlock()

	if r.Closed || r.Game == nil {
		c.sendEvent(MsgError, ErrorPayload{Error: game.ErrNotPlaying.Error()})
		return
	}
	res, err := r.Game.PassTurn(role)
	if err != nil {
		c.sendEvent(MsgError, ErrorPayload{Error: err.Error()})
		return
	}

	d.store.AppendMove(r.Code, journal.Move{Type: journal.MovePass, Player: role})
	scores := res.Scores
	d.broadcastLocked(r, MsgTurnChanged, TurnChangedPayload{
		CurrentPlayer:  res.NextPlayer,
		PreviousPlayer: res.PreviousPlayer,
		Scores:         &scores,
		TimeRemaining:  res.TimeRemaining,
	})
}

// resolveTimeout runs on the countdown goroutine when a turn clock hits
// zero. The engine decides between forfeit and auto-pass; stale expiries
// (game over, engine replaced, clock already reset) do nothing.
func (d *Dispatcher) resolveTimeout(r *room.Room, eng *game.Engine) {
	r.Lock()
	if r.Closed || r.Game != eng {
		r.Unlock()
		return
	}
	res := eng.HandleTimeout()
	if res == nil {
		r.Unlock()
		return
	}

	d.store.AppendMove(r.Code, journal.Move{
		Type:       journal.MoveTimeout,
		Player:     res.Player,
		AutoPassed: res.AutoPassed,
	})

	if res.GameOver {
		d.finishGameLocked(r, res.Winner, res.Loser, res.Reason, res.Scores, res.AllMines)
		r.Unlock()
		d.notifyAdmins()
		return
	}

	d.broadcastLocked(r, MsgTimeoutAction, TimeoutActionPayload{
		Player:        res.Player,
		AutoPassed:    true,
		NextPlayer:    res.NextPlayer,
		TimeRemaining: res.TimeRemaining,
		Scores:        res.Scores,
	})
	scores := res.Scores
	d.broadcastLocked(r, MsgTurnChanged, TurnChangedPayload{
		CurrentPlayer:  res.NextPlayer,
		PreviousPlayer: res.Player,
		Scores:         &scores,
		TimeRemaining:  res.TimeRemaining,
		Reason:         game.ReasonTimeoutAutoPass,
	})
	r.Unlock()
}

// finishGameLocked resolves a natural terminal: stats, starting player
// carry-over, journal result, and the game_over broadcast. Disconnect
// forfeits go through forfeitLocked instead and leave the stats alone.
func (d *Dispatcher) finishGameLocked(r *room.Room, winner, loser game.Role, reason string, scores game.Scores, allMines []game.Position) {
	r.State = game.StatusFinished
	r.Game = nil
	r.RecordResult(winner)

	d.store.EndGame(r.Code, journal.Result{Winner: winner, Loser: loser, Reason: reason, Scores: scores})
	d.broadcastLocked(r, MsgGameOver, GameOverPayload{
		Winner:     winner,
		Loser:      loser,
		Reason:     reason,
		Scores:     scores,
		AllMines:   allMines,
		MatchStats: r.Stats,
	})
	metrics.GamesFinished.WithLabelValues(reason).Inc()
	logger.Info("game finished", "room", r.Code, "winner", winner, "reason", reason)
}

func (d *Dispatcher) handleRequestRestart(c *Client) {
	r, role, ok := d.registry.GetByConn(c.ID)
	if !ok {
		c.sendEvent(MsgError, ErrorPayload{Error: "you are not in a room"})
		return
	}

	r.Lock()
	defer r.Unlock()

	opponent := r.Seat(role.Opponent())
	if opponent == nil {
		c.sendEvent(MsgError, ErrorPayload{Error: "no opponent in the room"})
		return
	}
	d.sendToConn(opponent.ConnID, MsgRestartRequested, RestartRequestedPayload{From: role})
}

func (d *Dispatcher) handleAcceptRestart(c *Client) {
	r, _, ok := d.registry.GetByConn(c.ID)
	if !ok {
		c.sendEvent(MsgError, ErrorPayload{Error: "you are not in a room"})
		return
	}

	r.Lock()
	if r.Closed || r.State != game.StatusFinished || r.Host == nil || r.Guest == nil {
		r.Unlock()
		c.sendEvent(MsgError, ErrorPayload{Error: "room is not ready for a restart"})
		return
	}
	d.startGameLocked(r)
	r.Unlock()

	d.notifyAdmins()
}

func (d *Dispatcher) handlePublicSpectate(c *Client, raw json.RawMessage) {
	var p SpectatePayload
	_ = json.Unmarshal(raw, &p)

	code := room.NormalizeCode(p.RoomCode)
	if code == "" {
		c.sendEvent(MsgSpectateError, ErrorPayload{Error: "room code is required"})
		return
	}

	// Spectating is exclusive: moving to another room drops the old
	// membership, count rebroadcast included, before the new one is
	// indexed.
	if prev, watching := d.registry.SpectatedRoom(c.ID); watching && prev.Code != code {
		d.leaveSpectatedRoom(c)
	}

	r, err := d.registry.IndexSpectator(code, c.ID)
	if err != nil {
		c.sendEvent(MsgSpectateError, ErrorPayload{Error: err.Error()})
		return
	}

	r.Lock()
	if r.Closed {
		r.Unlock()
		d.registry.DropSpectator(c.ID)
		c.sendEvent(MsgSpectateError, ErrorPayload{Error: room.ErrNotFound.Error()})
		return
	}
	r.Spectators[c.ID] = true
	c.sendEvent(MsgSpectateJoined, d.spectateSnapshotLocked(r))
	d.broadcastLocked(r, MsgSpectatorCount, SpectatorCountPayload{Count: len(r.Spectators)})
	r.Unlock()

	d.notifyAdmins()
}

// spectateSnapshotLocked builds the late-join state for a new watcher:
// the god-view grid and the room's chat history. Reading the journal
// here, under the room lock, is what makes the history a strict prefix
// of the live stream the spectator is about to receive.
func (d *Dispatcher) spectateSnapshotLocked(r *room.Room) SpectateJoinedPayload {
	payload := SpectateJoinedPayload{
		RoomCode:       r.Code,
		HostName:       r.SeatName(game.RoleHost),
		GuestName:      r.SeatName(game.RoleGuest),
		SpectatorCount: len(r.Spectators),
		GameState:      r.State,
		MatchStats:     r.Stats,
		MessageHistory: d.store.Snapshot(r.Code).Messages,
	}
	if r.Game != nil {
		settings := r.Game.Settings()
		snap := &GameSnapshot{
			Grid:            r.Game.SpectatorGrid(),
			GridSize:        settings.GridSize,
			MinesCount:      settings.MinesCount,
			CurrentPlayer:   r.Game.CurrentPlayer(),
			TurnTimeLimit:   settings.TurnTimeLimit,
			RevealsThisTurn: r.Game.RevealsThisTurn(),
			Scores:          r.Game.Scores(),
		}
		if remaining, running := r.Game.TimeRemaining(); running {
			snap.TimeRemaining = &remaining
		}
		payload.Game = snap
	}
	return payload
}

func (d *Dispatcher) handleLeaveSpectate(c *Client) {
	if !d.leaveSpectatedRoom(c) {
		return
	}
	d.notifyAdmins()
}

// leaveSpectatedRoom drops the connection's spectator membership, if
// any, and rebroadcasts the room's count. Reports whether a live room
// was left.
func (d *Dispatcher) leaveSpectatedRoom(c *Client) bool {
	r, ok := d.registry.DropSpectator(c.ID)
	if !ok || r == nil {
		return false
	}

	r.Lock()
	if !r.Closed {
		delete(r.Spectators, c.ID)
		d.broadcastLocked(r, MsgSpectatorCount, SpectatorCountPayload{Count: len(r.Spectators)})
	}
	r.Unlock()
	return true
}

// chatLimiter returns the per-connection danmaku limiter, creating it
// on first use. One message every two seconds, no burst.
func (d *Dispatcher) chatLimiter(connID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	lim, ok := d.chat[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(chatCooldown), 1)
		d.chat[connID] = lim
	}
	return lim
}

func (d *Dispatcher) handleSendDanmaku(c *Client, raw json.RawMessage) {
	var p DanmakuPayload
	_ = json.Unmarshal(raw, &p)

	message := truncateRunes(strings.TrimSpace(p.Message), maxMessageLength)
	if message == "" {
		c.sendEvent(MsgError, ErrorPayload{Error: "message is required"})
		return
	}
	nickname := normalizeName(p.Nickname)
	if nickname == "" {
		c.sendEvent(MsgError, ErrorPayload{Error: "nickname is required"})
		return
	}

	r, seated, ok := d.chatRoom(c.ID)
	if !ok {
		c.sendEvent(MsgError, ErrorPayload{Error: "join or spectate a room first"})
		return
	}
	if code := room.NormalizeCode(p.RoomCode); code != "" && code != r.Code {
		c.sendEvent(MsgError, ErrorPayload{Error: "room code does not match your room"})
		return
	}

	// Over-rate messages are dropped without a reply; clients are
	// expected to self-throttle.
	if !d.chatLimiter(c.ID).AllowN(d.now(), 1) {
		metrics.ChatDropped.Inc()
		return
	}

	msg := journal.ChatMessage{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		Message:   message,
		Timestamp: d.now().UnixMilli(),
		IsPlayer:  seated || p.IsPlayer,
	}

	r.Lock()
	if r.Closed {
		r.Unlock()
		return
	}
	d.broadcastLocked(r, MsgDanmaku, DanmakuEventPayload{
		ID:        msg.ID,
		Nickname:  msg.Nickname,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
		IsPlayer:  msg.IsPlayer,
	})
	d.store.AppendChat(r.Code, msg)
	r.Unlock()
}

// chatRoom resolves which room a chat message belongs to: the sender's
// own seat first, then their spectator membership.
func (d *Dispatcher) chatRoom(connID string) (*room.Room, bool, bool) {
	if r, _, ok := d.registry.GetByConn(connID); ok {
		return r, true, true
	}
	if r, ok := d.registry.SpectatedRoom(connID); ok {
		return r, false, true
	}
	return nil, false, false
}

func (d *Dispatcher) handleUpdatePlayerName(c *Client, raw json.RawMessage) {
	var p UpdateNamePayload
	_ = json.Unmarshal(raw, &p)

	name := normalizeName(p.NewName)
	if name == "" {
		c.sendEvent(MsgError, ErrorPayload{Error: "name is required"})
		return
	}

	r, role, ok := d.registry.GetByConn(c.ID)
	if !ok {
		c.sendEvent(MsgError, ErrorPayload{Error: "you are not in a room"})
		return
	}

	r.Lock()
	if seat := r.Seat(role); seat != nil {
		seat.Name = name
		d.broadcastLocked(r, MsgPlayerNameUpdated, PlayerNameUpdatedPayload{Role: role, NewName: name})
	}
	r.Unlock()

	d.notifyAdmins()
}

// DisconnectPlayer tears down whatever the connection held: spectator
// membership, a guest seat (forfeiting any running game), or the whole
// room when the host drops.
func (d *Dispatcher) DisconnectPlayer(c *Client) {
	d.mu.Lock()
	delete(d.players, c.ID)
	delete(d.chat, c.ID)
	d.mu.Unlock()
	metrics.ActiveConnections.WithLabelValues(ChannelPlayer).Dec()

	if d.leaveSpectatedRoom(c) {
		d.notifyAdmins()
		return
	}

	res, ok := d.registry.LeaveRoom(c.ID)
	if !ok {
		return
	}

	if res.WasHost {
		d.hostLeft(res.Room)
	} else {
		d.guestLeft(res.Room, res.WasPlaying)
	}
	d.notifyAdmins()
}

// hostLeft finishes off a room the registry already removed: the guest
// wins any running game by forfeit, spectators get room_closed, and the
// journal is archived. Match stats stay untouched.
func (d *Dispatcher) hostLeft(r *room.Room) {
	r.Lock()
	if r.Game != nil {
		if f := r.Game.Forfeit(game.RoleHost); f != nil {
			result := journal.Result{
				Winner: f.Winner,
				Loser:  f.Loser,
				Reason: game.ReasonOpponentDisconnected,
				Scores: f.Scores,
			}
			d.store.EndGame(r.Code, result)
			if r.Guest != nil {
				d.sendToConn(r.Guest.ConnID, MsgGameOver, GameOverPayload{
					Winner:     f.Winner,
					Loser:      f.Loser,
					Reason:     game.ReasonOpponentDisconnected,
					Scores:     f.Scores,
					AllMines:   f.AllMines,
					MatchStats: r.Stats,
				})
			}
			metrics.GamesFinished.WithLabelValues(game.ReasonOpponentDisconnected).Inc()
		}
		r.Game = nil
	}

	closed := encode(MsgRoomClosed, RoomClosedPayload{
		Reason:  "host_left",
		Message: "the host left the room",
	})
	for id := range r.Spectators {
		if sc := d.clientByID(id); sc != nil {
			sc.send(closed)
		}
	}
	for _, ac := range d.admin.CloseRoom(r.Code) {
		ac.send(closed)
	}
	r.Unlock()

	d.store.Archive(r.Code, "host_left")
	metrics.ActiveRooms.Dec()
	logger.Info("room closed", "room", r.Code, "reason", "host_left")
}

// guestLeft frees the guest seat. A running game becomes a forfeit win
// for the host; the room itself survives.
func (d *Dispatcher) guestLeft(r *room.Room, wasPlaying bool) {
	r.Lock()
	defer r.Unlock()

	if wasPlaying && r.Game != nil {
		f := r.Game.Forfeit(game.RoleGuest)
		r.Game = nil
		if f != nil {
			d.store.EndGame(r.Code, journal.Result{
				Winner: f.Winner,
				Loser:  f.Loser,
				Reason: game.ReasonOpponentDisconnected,
				Scores: f.Scores,
			})
			d.broadcastLocked(r, MsgGameOver, GameOverPayload{
				Winner:     f.Winner,
				Loser:      f.Loser,
				Reason:     game.ReasonOpponentDisconnected,
				Scores:     f.Scores,
				AllMines:   f.AllMines,
				MatchStats: r.Stats,
			})
			metrics.GamesFinished.WithLabelValues(game.ReasonOpponentDisconnected).Inc()
		}
		return
	}

	d.broadcastLocked(r, MsgPlayerLeft, PlayerLeftPayload{Role: game.RoleGuest})
}

// HandleAdmin dispatches one inbound frame from the admin channel.
func (d *Dispatcher) HandleAdmin(c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendEvent(MsgAdminError, ErrorPayload{Error: "malformed message"})
		return
	}

	switch msg.Type {
	case MsgSubscribeRooms:
		d.admin.Subscribe(c)
		c.sendEvent(MsgAdminRoomsUpdate, d.registry.Stats())
	case MsgAdminSpectate:
		d.handleAdminSpectate(c, msg.Payload)
	case MsgAdminLeaveSpectate:
		d.admin.LeaveSpectate(c.ID)
	default:
		c.sendEvent(MsgAdminError, ErrorPayload{Error: "unknown event type"})
	}
}

func (d *Dispatcher) handleAdminSpectate(c *Client, raw json.RawMessage) {
	var p SpectatePayload
	_ = json.Unmarshal(raw, &p)

	r, ok := d.registry.GetByCode(p.RoomCode)
	if !ok {
		c.sendEvent(MsgAdminError, ErrorPayload{Error: room.ErrNotFound.Error()})
		return
	}

	d.admin.Spectate(c, r.Code)
	r.Lock()
	c.sendEvent(MsgSpectateJoined, d.spectateSnapshotLocked(r))
	r.Unlock()
}

// DisconnectAdmin clears the admin connection's memberships.
func (d *Dispatcher) DisconnectAdmin(c *Client) {
	d.admin.Remove(c.ID)
	metrics.ActiveConnections.WithLabelValues(ChannelAdmin).Dec()
}

// StartCleanup sweeps idle rooms until the context ends.
func (d *Dispatcher) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := d.registry.CleanupIdle(ttl)
				for _, r := range removed {
					d.teardownRoom(r, "idle_timeout", "room closed after being idle too long")
				}
				if len(removed) > 0 {
					d.notifyAdmins()
				}
			}
		}
	}()
}

// teardownRoom notifies everyone attached to an evicted room and
// archives its journal. The room is already out of the registry.
func (d *Dispatcher) teardownRoom(r *room.Room, reason, message string) {
	r.Lock()
	if r.Game != nil {
		r.Game.Stop()
		r.Game = nil
	}
	closed := encode(MsgRoomClosed, RoomClosedPayload{Reason: reason, Message: message})
	for _, id := range r.PlayerConnIDs() {
		if c := d.clientByID(id); c != nil {
			c.send(closed)
		}
	}
	for id := range r.Spectators {
		if c := d.clientByID(id); c != nil {
			c.send(closed)
		}
	}
	for _, ac := range d.admin.CloseRoom(r.Code) {
		ac.send(closed)
	}
	r.Unlock()

	d.store.Archive(r.Code, reason)
	metrics.ActiveRooms.Dec()
	logger.Info("room closed", "room", r.Code, "reason", reason)
}

// normalizeName trims a player name or nickname and caps it at ten code
// points.
func normalizeName(s string) string {
	return truncateRunes(strings.TrimSpace(s), maxNameLength)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
