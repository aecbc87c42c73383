package game

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Rejection errors for reveal and pass. The dispatcher reports these to
// the emitting connection only; engine state is unchanged.
var (
	ErrNotPlaying      = errors.New("game is not in progress")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrOutOfBounds     = errors.New("coordinates out of bounds")
	ErrAlreadyRevealed = errors.New("tile already revealed")
	ErrCannotPass      = errors.New("cannot pass before revealing enough tiles")
)

// Engine runs a single game between two seats. State transitions are
// serialised by the owning room; the internal mutex guards against the
// countdown goroutine racing snapshot reads.
type Engine struct {
	mu sync.RWMutex

	settings Settings
	grid     [][]Tile
	rng      *rand.Rand

	status          Status
	currentPlayer   Role
	startingPlayer  Role
	lastPassedBy    Role // empty until someone passes
	winner          Role
	revealsThisTurn int
	totalRevealed   int
	scores          Scores
	isFirstMove     bool
	minesPlaced     bool

	timeRemaining int
	timerStop     chan struct{}

	onTick    func(remaining int)
	onTimeout func()
}

// NewEngine prepares a game that begins when Start is called. The tick
// and timeout hooks fire from the countdown goroutine with no engine
// lock held, so they are free to call back into the engine.
func NewEngine(settings Settings, startingPlayer Role, onTick func(int), onTimeout func()) *Engine {
	return &Engine{
		settings:       settings,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		status:         StatusWaiting,
		startingPlayer: startingPlayer,
		currentPlayer:  startingPlayer,
		isFirstMove:    true,
		onTick:         onTick,
		onTimeout:      onTimeout,
	}
}

// Start builds the empty grid and opens play. Mine placement is deferred
// to the first reveal so the opening click is always safe. No countdown
// runs until that first reveal.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.grid = newGrid(e.settings.GridSize)
	e.status = StatusPlaying
	e.currentPlayer = e.startingPlayer
}

// RevealResult reports the outcome of a single accepted reveal.
type RevealResult struct {
	Player          Role
	HitMine         bool
	RevealedTiles   []RevealedTile
	RevealsThisTurn int
	CanPass         bool
	Scores          Scores
	TimeRemaining   int
	TimerStarted    bool

	GameOver bool
	Reason   string
	Winner   Role
	Loser    Role
	AllMines []Position
}

// PassResult reports a completed turn transfer.
type PassResult struct {
	PreviousPlayer Role
	NextPlayer     Role
	Scores         Scores
	TimeRemaining  int
}

// TimeoutResult reports what the engine did when the countdown expired.
type TimeoutResult struct {
	Player        Role // seat whose turn expired
	AutoPassed    bool
	NextPlayer    Role
	Scores        Scores
	TimeRemaining int

	GameOver bool
	Reason   string
	Winner   Role
	Loser    Role
	AllMines []Position
}

// ForfeitResult reports the terminal state after a player abandons.
type ForfeitResult struct {
	Winner   Role
	Loser    Role
	Scores   Scores
	AllMines []Position
}

// RevealTile uncovers (x, z) for the given seat, flooding through
// zero-neighbor regions. The first accepted reveal of the game places
// the mines, scores nothing, and starts the countdown.
func (e *Engine) RevealTile(x, z int, player Role) (*RevealResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if player != e.currentPlayer {
		return nil, ErrNotYourTurn
	}
	n := e.settings.GridSize
	if !inBounds(n, x, z) {
		return nil, ErrOutOfBounds
	}
	if e.grid[x][z].IsRevealed {
		return nil, ErrAlreadyRevealed
	}

	if !e.minesPlaced {
		e.settings.MinesCount = placeMines(e.grid, e.rng, e.settings.MinesCount, x, z)
		computeNeighborCounts(e.grid)
		e.minesPlaced = true
	}

	firstMove := e.isFirstMove
	revealed := floodReveal(e.grid, x, z)

	e.revealsThisTurn += len(revealed)
	e.totalRevealed += len(revealed)
	if !firstMove {
		e.scores.add(player, len(revealed)*ScorePerTile)
	}

	res := &RevealResult{
		Player:          player,
		RevealedTiles:   revealed,
		RevealsThisTurn: e.revealsThisTurn,
		CanPass:         e.revealsThisTurn >= e.settings.MinRevealsToPass,
		Scores:          e.scores,
	}

	if firstMove {
		e.isFirstMove = false
		e.resetTimerLocked()
		res.TimerStarted = true
	}
	res.TimeRemaining = e.timeRemaining

	if e.grid[x][z].IsMine {
		e.finishLocked(player.Opponent())
		res.HitMine = true
		res.GameOver = true
		res.Reason = ReasonHitMine
		res.Winner = e.winner
		res.Loser = player
		res.AllMines = e.allMinesLocked()
		return res, nil
	}

	if e.totalRevealed >= n*n-e.settings.MinesCount {
		winner := e.lastPassedBy
		if winner == "" {
			winner = player
		}
		e.finishLocked(winner)
		res.GameOver = true
		res.Reason = ReasonAllSafeRevealed
		res.Winner = winner
		res.Loser = winner.Opponent()
		res.AllMines = e.allMinesLocked()
		return res, nil
	}

	return res, nil
}

// PassTurn hands the turn to the opponent and resets the countdown.
func (e *Engine) PassTurn(player Role) (*PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if player != e.currentPlayer {
		return nil, ErrNotYourTurn
	}
	if e.revealsThisTurn < e.settings.MinRevealsToPass {
		return nil, ErrCannotPass
	}

	e.lastPassedBy = player
	e.currentPlayer = player.Opponent()
	e.revealsThisTurn = 0
	e.resetTimerLocked()

	return &PassResult{
		PreviousPlayer: player,
		NextPlayer:     e.currentPlayer,
		Scores:         e.scores,
		TimeRemaining:  e.timeRemaining,
	}, nil
}

// HandleTimeout resolves an expired countdown. A seat that revealed
// nothing all turn forfeits; otherwise the turn auto-passes. Returns nil
// when the expiry is stale: the game already ended, or a pass reset the
// clock before this ran.
func (e *Engine) HandleTimeout() *TimeoutResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying || e.timeRemaining > 0 {
		return nil
	}

	expired := e.currentPlayer

	if e.revealsThisTurn == 0 {
		e.finishLocked(expired.Opponent())
		return &TimeoutResult{
			Player:   expired,
			GameOver: true,
			Reason:   ReasonTimeoutNoAction,
			Winner:   e.winner,
			Loser:    expired,
			Scores:   e.scores,
			AllMines: e.allMinesLocked(),
		}
	}

	e.lastPassedBy = expired
	e.currentPlayer = expired.Opponent()
	e.revealsThisTurn = 0
	e.resetTimerLocked()

	return &TimeoutResult{
		Player:        expired,
		AutoPassed:    true,
		NextPlayer:    e.currentPlayer,
		Scores:        e.scores,
		TimeRemaining: e.timeRemaining,
	}
}

// Forfeit ends the game against the given seat, used when a player
// disconnects mid-game. Returns nil if the game was already over.
func (e *Engine) Forfeit(loser Role) *ForfeitResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusFinished {
		return nil
	}
	e.finishLocked(loser.Opponent())
	return &ForfeitResult{
		Winner:   e.winner,
		Loser:    loser,
		Scores:   e.scores,
		AllMines: e.allMinesLocked(),
	}
}

// Stop halts the countdown without declaring a result, used on room
// teardown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = StatusFinished
	e.stopTimerLocked()
}

func (e *Engine) finishLocked(winner Role) {
	e.status = StatusFinished
	e.winner = winner
	e.stopTimerLocked()
}

// resetTimerLocked restarts the countdown at the full turn limit. Any
// previous countdown goroutine is told to stop first.
func (e *Engine) resetTimerLocked() {
	e.stopTimerLocked()
	e.timeRemaining = e.settings.TurnTimeLimit

	stop := make(chan struct{})
	e.timerStop = stop
	go e.countdown(stop)
}

func (e *Engine) stopTimerLocked() {
	if e.timerStop != nil {
		close(e.timerStop)
		e.timerStop = nil
	}
}

// countdown decrements the turn clock once per second. Hooks run with no
// engine lock held. The stop channel is re-checked under the lock so a
// reset that raced a tick wins and the stale tick does nothing.
func (e *Engine) countdown(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			select {
			case <-stop:
				e.mu.Unlock()
				return
			default:
			}
			if e.status != StatusPlaying {
				e.mu.Unlock()
				return
			}
			e.timeRemaining--
			remaining := e.timeRemaining
			e.mu.Unlock()

			if e.onTick != nil {
				e.onTick(remaining)
			}
			if remaining > 0 {
				continue
			}
			if e.onTimeout != nil {
				e.onTimeout()
			}
			return
		}
	}
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Engine) CurrentPlayer() Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentPlayer
}

func (e *Engine) Winner() Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.winner
}

func (e *Engine) Scores() Scores {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scores
}

func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

func (e *Engine) RevealsThisTurn() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revealsThisTurn
}

func (e *Engine) TotalRevealed() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalRevealed
}

// TimeRemaining reports the countdown, or false while no clock is
// running (before the first reveal, or after the game ended).
func (e *Engine) TimeRemaining() (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.isFirstMove || e.status != StatusPlaying {
		return 0, false
	}
	return e.timeRemaining, true
}

// ClientGrid is the masked view safe to send to the active players.
func (e *Engine) ClientGrid() [][]ClientTile {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([][]ClientTile, len(e.grid))
	for x := range e.grid {
		out[x] = make([]ClientTile, len(e.grid[x]))
		for z := range e.grid[x] {
			t := e.grid[x][z]
			ct := ClientTile{X: t.X, Z: t.Z, IsRevealed: t.IsRevealed}
			if t.IsRevealed {
				isMine := t.IsMine
				neighbors := t.NeighborMines
				ct.IsMine = &isMine
				ct.NeighborMines = &neighbors
			}
			out[x][z] = ct
		}
	}
	return out
}

// SpectatorGrid is the god view with every mine visible.
func (e *Engine) SpectatorGrid() [][]Tile {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([][]Tile, len(e.grid))
	for x := range e.grid {
		out[x] = make([]Tile, len(e.grid[x]))
		copy(out[x], e.grid[x])
	}
	return out
}

// AllMines lists every mine position, empty until mines are placed.
func (e *Engine) AllMines() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.allMinesLocked()
}

func (e *Engine) allMinesLocked() []Position {
	mines := make([]Position, 0, e.settings.MinesCount)
	for x := range e.grid {
		for z := range e.grid[x] {
			if e.grid[x][z].IsMine {
				mines = append(mines, Position{X: x, Z: z})
			}
		}
	}
	return mines
}
