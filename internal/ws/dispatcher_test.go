package ws

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doggy8088/Minesweeper3D/internal/game"
	"github.com/doggy8088/Minesweeper3D/internal/journal"
	"github.com/doggy8088/Minesweeper3D/internal/room"
)

type testEnv struct {
	d       *Dispatcher
	dataDir string
	seq     int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	store, err := journal.NewStore(dataDir)
	require.NoError(t, err)

	defaults := game.Settings{GridSize: 10, MinesCount: 18, TurnTimeLimit: 30, MinRevealsToPass: 1}
	d := NewDispatcher(defaults, room.NewRegistry(6), store, NewAdminHub())
	return &testEnv{d: d, dataDir: dataDir}
}

// newTestClient builds an in-memory connection: no socket, no pumps,
// events are read straight off the send queue.
func (env *testEnv) newClient(id string) *Client {
	c := &Client{ID: id, Channel: ChannelPlayer, Send: make(chan []byte, 256)}
	env.d.Register(c)
	return c
}

func (env *testEnv) emit(t *testing.T, c *Client, msgType string, payload any) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	require.NoError(t, err)
	env.d.HandlePlayer(c, data)
}

func nextMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var m Message
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return Message{}
	}
}

// expectEvent asserts the next queued event has the given type and
// decodes its payload into out when non-nil.
func expectEvent(t *testing.T, c *Client, wantType string, out any) {
	t.Helper()
	m := nextMessage(t, c)
	require.Equal(t, wantType, m.Type, "unexpected event (payload: %s)", m.Payload)
	if out != nil {
		require.NoError(t, json.Unmarshal(m.Payload, out))
	}
}

// waitForEvent skips over other events (timer ticks mostly) until the
// wanted type arrives or the deadline passes.
func waitForEvent(t *testing.T, c *Client, wantType string, out any, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case data := <-c.Send:
			var m Message
			require.NoError(t, json.Unmarshal(data, &m))
			if m.Type != wantType {
				continue
			}
			if out != nil {
				require.NoError(t, json.Unmarshal(m.Payload, out))
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %s", wantType)
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

// smallSettings is a 5x5 board; with 15 mines exactly one safe tile
// sits outside the first-click zone, with 16 the opening flood clears
// the whole board.
func smallSettings(mines int) *SettingsOverride {
	return &SettingsOverride{GridSize: 5, MinesCount: mines, TurnTimeLimit: 30, MinRevealsToPass: 1}
}

// startMatch runs create+join and drains the setup events, returning
// the seated clients and the room code.
func (env *testEnv) startMatch(t *testing.T, settings *SettingsOverride) (host, guest *Client, code string) {
	t.Helper()
	env.seq++
	host = env.newClient(fmt.Sprintf("host-%d", env.seq))
	guest = env.newClient(fmt.Sprintf("guest-%d", env.seq))

	env.emit(t, host, MsgCreateRoom, CreateRoomPayload{PlayerName: "Alice", Settings: settings})
	var created RoomCreatedPayload
	expectEvent(t, host, MsgRoomCreated, &created)

	env.emit(t, guest, MsgJoinRoom, JoinRoomPayload{RoomCode: created.RoomCode, PlayerName: "Bob"})
	drain(host)
	drain(guest)
	return host, guest, created.RoomCode
}

// godView joins a fresh spectator and returns the full-grid snapshot.
func (env *testEnv) godView(t *testing.T, spec *Client, code string) SpectateJoinedPayload {
	t.Helper()
	env.emit(t, spec, MsgPublicSpectate, SpectatePayload{RoomCode: code})
	var joined SpectateJoinedPayload
	expectEvent(t, spec, MsgSpectateJoined, &joined)
	return joined
}

func findTile(snap SpectateJoinedPayload, mine bool) (int, int) {
	for x := range snap.Game.Grid {
		for z := range snap.Game.Grid[x] {
			tile := snap.Game.Grid[x][z]
			if tile.IsMine == mine && !tile.IsRevealed {
				return x, z
			}
		}
	}
	return -1, -1
}

func TestCreateRoom_RepliesWithCodeAndClampedSettings(t *testing.T) {
	env := newTestEnv(t)
	host := env.newClient("c1")

	env.emit(t, host, MsgCreateRoom, CreateRoomPayload{
		PlayerName: "  Alice has a very long name  ",
		Settings:   &SettingsOverride{GridSize: 5, MinesCount: 99},
	})

	var created RoomCreatedPayload
	expectEvent(t, host, MsgRoomCreated, &created)
	assert.Len(t, created.RoomCode, 6)
	assert.Equal(t, game.RoleHost, created.Role)
	assert.Equal(t, 5, created.Settings.GridSize)
	assert.Equal(t, 16, created.Settings.MinesCount, "mines must leave room for the safe zone")

	r, ok := env.d.registry.GetByCode(created.RoomCode)
	require.True(t, ok)
	assert.Equal(t, "Alice has ", r.Host.Name, "name is truncated to ten code points")
}

func TestCreateRoom_RejectsEmptyName(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient("c1")

	env.emit(t, c, MsgCreateRoom, CreateRoomPayload{PlayerName: "   "})

	var errPayload ErrorPayload
	expectEvent(t, c, MsgError, &errPayload)
	assert.Contains(t, errPayload.Error, "name")
}

func TestJoinRoom_StartsGameWithMaskedGridForPlayers(t *testing.T) {
	env := newTestEnv(t)
	host := env.newClient("h")
	guest := env.newClient("g")

	env.emit(t, host, MsgCreateRoom, CreateRoomPayload{PlayerName: "Alice"})
	var created RoomCreatedPayload
	expectEvent(t, host, MsgRoomCreated, &created)

	env.emit(t, guest, MsgJoinRoom, JoinRoomPayload{RoomCode: created.RoomCode, PlayerName: "Bob"})

	var joined RoomJoinedPayload
	expectEvent(t, guest, MsgRoomJoined, &joined)
	assert.Equal(t, game.RoleGuest, joined.Role)
	assert.Equal(t, "Alice", joined.HostName)

	var opponent PlayerJoinedPayload
	expectEvent(t, host, MsgPlayerJoined, &opponent)
	assert.Equal(t, "Bob", opponent.Opponent)

	// Both seats get game_start with a masked grid: no tile may carry
	// mine information before it is revealed.
	for _, c := range []*Client{host, guest} {
		var start map[string]any
		expectEvent(t, c, MsgGameStart, &start)
		assert.Equal(t, "host", start["currentPlayer"])
		assert.Equal(t, true, start["isFirstMove"])
		assert.Nil(t, start["timeRemaining"])

		grid := start["grid"].([]any)
		require.Len(t, grid, 10)
		cell := grid[0].([]any)[0].(map[string]any)
		_, hasMineKey := cell["isMine"]
		assert.False(t, hasMineKey, "player grid must not expose isMine")
		_, hasNeighborKey := cell["neighborMines"]
		assert.False(t, hasNeighborKey, "player grid must not expose neighborMines")
	}
}

func TestJoinRoom_UnknownCodeAndMidGameRedirect(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient("x")

	env.emit(t, c, MsgJoinRoom, JoinRoomPayload{RoomCode: "ZZZZZZ", PlayerName: "Eve"})
	var joinErr ErrorPayload
	expectEvent(t, c, MsgJoinError, &joinErr)

	_, _, code := env.startMatch(t, nil)
	env.emit(t, c, MsgJoinRoom, JoinRoomPayload{RoomCode: code, PlayerName: "Eve"})
	var redirect RedirectToSpectatePayload
	expectEvent(t, c, MsgRedirectToSpectate, &redirect)
	assert.Equal(t, code, redirect.RoomCode)
}

// First click on a default board expands the zero region, scores
// nothing, and starts the countdown.
func TestFirstRevealExpandsScoresZeroAndStartsTimer(t *testing.T) {
	env := newTestEnv(t)
	host, guest, _ := env.startMatch(t, nil)

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 5, Z: 5})

	var revealed TileRevealedPayload
	expectEvent(t, host, MsgTileRevealed, &revealed)
	assert.Equal(t, game.RoleHost, revealed.Player)
	assert.False(t, revealed.HitMine)
	assert.GreaterOrEqual(t, len(revealed.RevealedTiles), 9,
		"a safe 3x3 zone guarantees the click floods its neighborhood")
	assert.Zero(t, revealed.Scores.Host, "opening click is exempt from scoring")
	assert.True(t, revealed.CanPass)
	assert.True(t, revealed.TimerStarted)
	assert.Equal(t, 30, revealed.TimeRemaining)

	// The guest sees the exact same event.
	var guestView TileRevealedPayload
	expectEvent(t, guest, MsgTileRevealed, &guestView)
	assert.Equal(t, len(revealed.RevealedTiles), len(guestView.RevealedTiles))
}

func TestPassSwapsTurnAndResetsClock(t *testing.T) {
	env := newTestEnv(t)
	host, guest, _ := env.startMatch(t, nil)

	// Passing before any reveal is rejected without a broadcast.
	env.emit(t, host, MsgPassTurn, nil)
	var passErr ErrorPayload
	expectEvent(t, host, MsgError, &passErr)
	assert.Empty(t, guest.Send, "rejected pass must not reach the opponent")

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 5, Z: 5})
	drain(host)
	drain(guest)

	env.emit(t, host, MsgPassTurn, nil)
	var turn TurnChangedPayload
	expectEvent(t, host, MsgTurnChanged, &turn)
	assert.Equal(t, game.RoleGuest, turn.CurrentPlayer)
	assert.Equal(t, game.RoleHost, turn.PreviousPlayer)
	assert.Equal(t, 30, turn.TimeRemaining)
}

func TestRevealByNonCurrentPlayerIsRejectedSilently(t *testing.T) {
	env := newTestEnv(t)
	host, guest, _ := env.startMatch(t, nil)

	env.emit(t, guest, MsgRevealTile, RevealTilePayload{X: 3, Z: 3})

	var errPayload ErrorPayload
	expectEvent(t, guest, MsgError, &errPayload)
	assert.Equal(t, game.ErrNotYourTurn.Error(), errPayload.Error)
	assert.Empty(t, host.Send, "rejected reveal must not be broadcast")
}

func TestMineHitEndsGameAndSetsUpNextMatch(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, smallSettings(15))
	spec := env.newClient("spec")

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	drain(host)
	drain(guest)

	snap := env.godView(t, spec, code)
	mineX, mineZ := findTile(snap, true)
	require.NotEqual(t, -1, mineX)
	drain(host)
	drain(guest)

	env.emit(t, host, MsgPassTurn, nil)
	drain(host)
	drain(guest)
	drain(spec)

	env.emit(t, guest, MsgRevealTile, RevealTilePayload{X: mineX, Z: mineZ})

	for _, c := range []*Client{host, guest, spec} {
		var hit TileRevealedPayload
		expectEvent(t, c, MsgTileRevealed, &hit)
		assert.True(t, hit.HitMine)

		var over GameOverPayload
		expectEvent(t, c, MsgGameOver, &over)
		assert.Equal(t, game.RoleHost, over.Winner)
		assert.Equal(t, game.RoleGuest, over.Loser)
		assert.Equal(t, game.ReasonHitMine, over.Reason)
		assert.Len(t, over.AllMines, 15)
		assert.Equal(t, 1, over.MatchStats.HostWins)
		assert.Equal(t, 1, over.MatchStats.GamesPlayed)
	}

	r, ok := env.d.registry.GetByCode(code)
	require.True(t, ok)
	assert.Equal(t, game.RoleGuest, r.NextStartingPlayer, "the loser opens the next game")
	assert.Nil(t, r.Game, "engine is destroyed on game end")
}

// With every legal position mined, the opening flood reveals all nine
// safe tiles at once and wins the game for the clicker.
func TestOpeningFloodCanClearTheBoard(t *testing.T) {
	env := newTestEnv(t)
	host, guest, _ := env.startMatch(t, smallSettings(16))

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})

	var revealed TileRevealedPayload
	expectEvent(t, host, MsgTileRevealed, &revealed)
	assert.Len(t, revealed.RevealedTiles, 9)

	var over GameOverPayload
	expectEvent(t, host, MsgGameOver, &over)
	assert.Equal(t, game.ReasonAllSafeRevealed, over.Reason)
	assert.Equal(t, game.RoleHost, over.Winner)
	assert.Zero(t, over.Scores.Host, "the opening click scores nothing even when it wins")

	waitForEvent(t, guest, MsgGameOver, &over, time.Second)
	assert.Equal(t, 1, over.MatchStats.HostWins)
}

// A one-second turn clock: the seat that revealed gets auto-passed, the
// seat that then does nothing forfeits.
func TestTimeoutAutoPassThenForfeit(t *testing.T) {
	env := newTestEnv(t)
	host := env.newClient("h")
	guest := env.newClient("g")

	settings := game.Settings{GridSize: 5, MinesCount: 15, TurnTimeLimit: 1, MinRevealsToPass: 1}
	r, err := env.d.registry.CreateRoom(host.ID, "Alice", settings)
	require.NoError(t, err)
	_, err = env.d.registry.JoinRoom(r.Code, guest.ID, "Bob")
	require.NoError(t, err)
	r.Lock()
	env.d.startGameLocked(r)
	r.Unlock()
	drain(host)
	drain(guest)

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})

	var action TimeoutActionPayload
	waitForEvent(t, host, MsgTimeoutAction, &action, 3*time.Second)
	assert.True(t, action.AutoPassed)
	assert.Equal(t, game.RoleHost, action.Player)
	assert.Equal(t, game.RoleGuest, action.NextPlayer)

	var turn TurnChangedPayload
	waitForEvent(t, host, MsgTurnChanged, &turn, time.Second)
	assert.Equal(t, game.ReasonTimeoutAutoPass, turn.Reason)
	assert.Equal(t, game.RoleGuest, turn.CurrentPlayer)

	// The guest never acts; its expired turn ends the game.
	var over GameOverPayload
	waitForEvent(t, guest, MsgGameOver, &over, 3*time.Second)
	assert.Equal(t, game.ReasonTimeoutNoAction, over.Reason)
	assert.Equal(t, game.RoleHost, over.Winner)
	assert.Equal(t, game.RoleGuest, over.Loser)
	assert.Equal(t, 1, over.MatchStats.HostWins, "timeout forfeits count as natural results")
}

func TestGuestDisconnectForfeitsWithoutStats(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, smallSettings(15))
	spec := env.newClient("spec")
	env.godView(t, spec, code)
	drain(host)
	drain(guest)

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	drain(host)
	drain(guest)
	drain(spec)

	env.d.DisconnectPlayer(guest)

	for _, c := range []*Client{host, spec} {
		var over GameOverPayload
		expectEvent(t, c, MsgGameOver, &over)
		assert.Equal(t, game.RoleHost, over.Winner)
		assert.Equal(t, game.ReasonOpponentDisconnected, over.Reason)
		assert.Zero(t, over.MatchStats.GamesPlayed, "forfeits do not touch match stats")
	}

	r, ok := env.d.registry.GetByCode(code)
	require.True(t, ok)
	assert.Equal(t, game.StatusFinished, r.State)
	assert.Nil(t, r.Guest)
	assert.Equal(t, game.RoleHost, r.NextStartingPlayer, "forfeit leaves the next starter unchanged")
}

func TestHostDisconnectClosesRoom(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, smallSettings(15))
	spec := env.newClient("spec")
	env.godView(t, spec, code)
	drain(host)
	drain(guest)

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	drain(host)
	drain(guest)
	drain(spec)

	env.d.DisconnectPlayer(host)

	var over GameOverPayload
	expectEvent(t, guest, MsgGameOver, &over)
	assert.Equal(t, game.RoleGuest, over.Winner)
	assert.Equal(t, game.ReasonOpponentDisconnected, over.Reason)

	var closed RoomClosedPayload
	expectEvent(t, spec, MsgRoomClosed, &closed)
	assert.Equal(t, "host_left", closed.Reason)

	_, ok := env.d.registry.GetByCode(code)
	assert.False(t, ok, "host departure deletes the room")
}

func TestChatCooldownDropsRapidMessages(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, nil)
	spec := env.newClient("spec")
	env.godView(t, spec, code)
	drain(host)
	drain(guest)
	drain(spec)

	clock := time.Now()
	env.d.now = func() time.Time { return clock }

	say := func(text string) {
		env.emit(t, host, MsgSendDanmaku, DanmakuPayload{RoomCode: code, Message: text, Nickname: "Alice"})
	}

	say("first")
	clock = clock.Add(500 * time.Millisecond)
	say("second") // inside the 2s cooldown, silently dropped
	clock = clock.Add(1600 * time.Millisecond)
	say("third")

	for _, c := range []*Client{host, guest, spec} {
		var first DanmakuEventPayload
		expectEvent(t, c, MsgDanmaku, &first)
		assert.Equal(t, "first", first.Message)
		assert.True(t, first.IsPlayer)
		assert.NotEmpty(t, first.ID)

		var third DanmakuEventPayload
		expectEvent(t, c, MsgDanmaku, &third)
		assert.Equal(t, "third", third.Message)
	}
}

func TestDanmakuRejectsMismatchedRoomCode(t *testing.T) {
	env := newTestEnv(t)
	host, guest, _ := env.startMatch(t, nil)

	env.emit(t, host, MsgSendDanmaku, DanmakuPayload{RoomCode: "WRONG2", Message: "hi", Nickname: "Alice"})

	var errPayload ErrorPayload
	expectEvent(t, host, MsgError, &errPayload)
	assert.Equal(t, "room code does not match your room", errPayload.Error)
	assert.Empty(t, guest.Send, "nothing is broadcast on a mismatch")
}

func TestSpectatorLateJoinSeesHistoryAndStaysInSync(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, smallSettings(15))

	env.emit(t, host, MsgSendDanmaku, DanmakuPayload{RoomCode: code, Message: "glhf", Nickname: "Alice"})
	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	drain(host)
	drain(guest)

	spec := env.newClient("late")
	snap := env.godView(t, spec, code)

	assert.Equal(t, "Alice", snap.HostName)
	assert.Equal(t, "Bob", snap.GuestName)
	assert.Equal(t, game.StatusPlaying, snap.GameState)
	require.NotNil(t, snap.Game)
	assert.Len(t, snap.Game.Grid, 5)

	revealedCount := 0
	mineCount := 0
	for x := range snap.Game.Grid {
		for z := range snap.Game.Grid[x] {
			if snap.Game.Grid[x][z].IsRevealed {
				revealedCount++
			}
			if snap.Game.Grid[x][z].IsMine {
				mineCount++
			}
		}
	}
	assert.Equal(t, 9, revealedCount, "snapshot reflects the opening flood")
	assert.Equal(t, 15, mineCount, "spectators get the god view")

	require.Len(t, snap.MessageHistory, 1)
	assert.Equal(t, "glhf", snap.MessageHistory[0].Message)

	// Own join is echoed as a count update, then live events follow in
	// broadcast order.
	var count SpectatorCountPayload
	expectEvent(t, spec, MsgSpectatorCount, &count)
	assert.Equal(t, 1, count.Count)

	env.emit(t, host, MsgPassTurn, nil)
	var turn TurnChangedPayload
	expectEvent(t, spec, MsgTurnChanged, &turn)
	assert.Equal(t, game.RoleGuest, turn.CurrentPlayer)
}

// Spectating is exclusive: watching a second room must remove the
// connection from the first room's set, announce the drop there, and
// stop that room's stream.
func TestSpectatorSwitchingRoomsMovesMembership(t *testing.T) {
	env := newTestEnv(t)
	hostA, guestA, codeA := env.startMatch(t, smallSettings(15))
	hostB, guestB, codeB := env.startMatch(t, smallSettings(15))
	spec := env.newClient("spec")

	env.godView(t, spec, codeA)
	drain(hostA)
	drain(guestA)
	drain(spec)

	env.godView(t, spec, codeB)

	rA, ok := env.d.registry.GetByCode(codeA)
	require.True(t, ok)
	assert.Empty(t, rA.Spectators, "old room keeps no stale membership")

	var count SpectatorCountPayload
	expectEvent(t, hostA, MsgSpectatorCount, &count)
	assert.Zero(t, count.Count, "old room announces the departure")

	rB, ok := env.d.registry.GetByCode(codeB)
	require.True(t, ok)
	assert.True(t, rB.Spectators[spec.ID])
	watched, ok := env.d.registry.SpectatedRoom(spec.ID)
	require.True(t, ok)
	assert.Equal(t, codeB, watched.Code)

	drain(hostA)
	drain(guestA)
	drain(hostB)
	drain(guestB)
	drain(spec)

	// Only the new room's stream reaches the mover.
	env.emit(t, hostA, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	drain(hostA)
	drain(guestA)
	assert.Empty(t, spec.Send, "old room's events must not reach the mover")

	env.emit(t, hostB, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	var revealed TileRevealedPayload
	expectEvent(t, spec, MsgTileRevealed, &revealed)
	assert.Len(t, revealed.RevealedTiles, 9)
}

func TestLeaveSpectateUpdatesCount(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, nil)
	specA := env.newClient("a")
	specB := env.newClient("b")

	env.godView(t, specA, code)
	env.godView(t, specB, code)
	drain(host)
	drain(guest)
	drain(specA)
	drain(specB)

	env.emit(t, specA, MsgLeaveSpectate, nil)

	var count SpectatorCountPayload
	expectEvent(t, host, MsgSpectatorCount, &count)
	assert.Equal(t, 1, count.Count)
	expectEvent(t, specB, MsgSpectatorCount, &count)
	assert.Equal(t, 1, count.Count)
}

func TestUpdatePlayerNameBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	host, guest, _ := env.startMatch(t, nil)

	env.emit(t, host, MsgUpdatePlayerName, UpdateNamePayload{NewName: "  Alicia  "})

	for _, c := range []*Client{host, guest} {
		var updated PlayerNameUpdatedPayload
		expectEvent(t, c, MsgPlayerNameUpdated, &updated)
		assert.Equal(t, game.RoleHost, updated.Role)
		assert.Equal(t, "Alicia", updated.NewName)
	}
}

func TestRestartStartsNewGameWithLoserFirst(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, smallSettings(16))

	// Host clears the board instantly; guest lost and starts next.
	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	drain(host)
	drain(guest)

	env.emit(t, guest, MsgRequestRestart, nil)
	var req RestartRequestedPayload
	expectEvent(t, host, MsgRestartRequested, &req)
	assert.Equal(t, game.RoleGuest, req.From)

	env.emit(t, host, MsgAcceptRestart, nil)

	for _, c := range []*Client{host, guest} {
		var start map[string]any
		expectEvent(t, c, MsgGameStart, &start)
		assert.Equal(t, "guest", start["currentPlayer"], "the previous loser opens the rematch")
	}

	r, ok := env.d.registry.GetByCode(code)
	require.True(t, ok)
	assert.Equal(t, game.StatusPlaying, r.State)
	require.NotNil(t, r.Game)
}

func TestJournalRecordsMovesInBroadcastOrder(t *testing.T) {
	env := newTestEnv(t)
	host, guest, code := env.startMatch(t, smallSettings(15))
	spec := env.newClient("spec")

	env.emit(t, host, MsgRevealTile, RevealTilePayload{X: 2, Z: 2})
	snap := env.godView(t, spec, code)
	safeX, safeZ := findTile(snap, false)
	require.NotEqual(t, -1, safeX)

	env.emit(t, host, MsgPassTurn, nil)
	env.emit(t, guest, MsgRevealTile, RevealTilePayload{X: safeX, Z: safeZ})

	doc := env.d.store.Snapshot(code)
	require.Len(t, doc.Games, 1)
	moves := doc.Games[0].Moves
	require.Len(t, moves, 3)
	assert.Equal(t, journal.MoveReveal, moves[0].Type)
	assert.Equal(t, game.RoleHost, moves[0].Player)
	assert.Equal(t, 9, moves[0].Revealed)
	assert.Equal(t, journal.MovePass, moves[1].Type)
	assert.Equal(t, journal.MoveReveal, moves[2].Type)
	assert.Equal(t, game.RoleGuest, moves[2].Player)
}

func TestIdleRoomTeardownNotifiesAndArchives(t *testing.T) {
	env := newTestEnv(t)
	host := env.newClient("h")
	env.emit(t, host, MsgCreateRoom, CreateRoomPayload{PlayerName: "Alice"})
	var created RoomCreatedPayload
	expectEvent(t, host, MsgRoomCreated, &created)

	removed := env.d.registry.CleanupIdle(0)
	require.Len(t, removed, 1)
	env.d.teardownRoom(removed[0], "idle_timeout", "room closed after being idle too long")

	var closed RoomClosedPayload
	expectEvent(t, host, MsgRoomClosed, &closed)
	assert.Equal(t, "idle_timeout", closed.Reason)

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(env.dataDir, "archive"))
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond, "journal moves to the archive on teardown")
}

func TestUnknownEventTypeAnswersError(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient("c")

	env.emit(t, c, "fly_to_the_moon", nil)

	var errPayload ErrorPayload
	expectEvent(t, c, MsgError, &errPayload)
	assert.Equal(t, "unknown event type", errPayload.Error)
}
