package room

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/doggy8088/Minesweeper3D/internal/game"
)

// codeAlphabet skips visually ambiguous characters (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Registry lookup and membership errors.
var (
	ErrNotFound      = errors.New("room not found")
	ErrFull          = errors.New("room is full")
	ErrInProgress    = errors.New("game already in progress")
	ErrFinished      = errors.New("game already finished")
	ErrAlreadyInRoom = errors.New("connection already attached to a room")
)

// NormalizeCode canonicalises user-supplied room codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Registry is the in-memory table of live rooms. It owns the code
// space and the connection indexes; per-room state is guarded by each
// room's own lock, always taken after the registry lock.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	byConn      map[string]string // player connID -> room code
	bySpectator map[string]string // spectator connID -> room code

	codeLen int
	rng     *rand.Rand
	now     func() time.Time
}

func NewRegistry(codeLen int) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		byConn:      make(map[string]string),
		bySpectator: make(map[string]string),
		codeLen:     codeLen,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// generateCode draws codes until one is free. Callers hold the write lock.
func (reg *Registry) generateCode() string {
	for {
		b := make([]byte, reg.codeLen)
		for i := range b {
			b[i] = codeAlphabet[reg.rng.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := reg.rooms[code]; !taken {
			return code
		}
	}
}

// CreateRoom opens a room hosted by the given connection.
func (reg *Registry) CreateRoom(connID, name string, settings game.Settings) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, in := reg.byConn[connID]; in {
		return nil, ErrAlreadyInRoom
	}
	if _, in := reg.bySpectator[connID]; in {
		return nil, ErrAlreadyInRoom
	}

	r := &Room{
		Code:               reg.generateCode(),
		Host:               &Player{ConnID: connID, Name: name},
		State:              game.StatusWaiting,
		Settings:           settings,
		NextStartingPlayer: game.RoleHost,
		Spectators:         make(map[string]bool),
		CreatedAt:          reg.now(),
	}
	reg.rooms[r.Code] = r
	reg.byConn[connID] = r.Code
	return r, nil
}

// JoinRoom seats the connection as guest. Rooms already playing or
// finished return distinct errors so callers can route the connection
// to spectate instead.
func (reg *Registry) JoinRoom(code, connID, name string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, in := reg.byConn[connID]; in {
		return nil, ErrAlreadyInRoom
	}
	if _, in := reg.bySpectator[connID]; in {
		return nil, ErrAlreadyInRoom
	}

	r, ok := reg.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrNotFound
	}

	r.Lock()
	defer r.Unlock()

	if r.Closed {
		return nil, ErrNotFound
	}
	switch r.State {
	case game.StatusPlaying:
		return nil, ErrInProgress
	case game.StatusFinished:
		return nil, ErrFinished
	}
	if r.Guest != nil {
		return nil, ErrFull
	}

	r.Guest = &Player{ConnID: connID, Name: name}
	reg.byConn[connID] = r.Code
	return r, nil
}

// LeaveResult describes what LeaveRoom did.
type LeaveResult struct {
	Room       *Room
	Role       game.Role
	WasHost    bool
	WasPlaying bool
}

// LeaveRoom detaches a seated connection. A host departure removes the
// room entirely; a guest departure frees the seat, finishing the game
// when one was running. The caller owns follow-up broadcasts and engine
// forfeits; the returned room still carries its member lists.
func (reg *Registry) LeaveRoom(connID string) (*LeaveResult, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code, ok := reg.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(reg.byConn, connID)

	r, ok := reg.rooms[code]
	if !ok {
		return nil, false
	}

	r.Lock()
	defer r.Unlock()

	role, _ := r.RoleOf(connID)
	res := &LeaveResult{
		Room:       r,
		Role:       role,
		WasHost:    role == game.RoleHost,
		WasPlaying: r.State == game.StatusPlaying,
	}

	if res.WasHost {
		r.Closed = true
		delete(reg.rooms, code)
		if r.Guest != nil {
			delete(reg.byConn, r.Guest.ConnID)
		}
		for id := range r.Spectators {
			delete(reg.bySpectator, id)
		}
		return res, true
	}

	r.Guest = nil
	switch r.State {
	case game.StatusPlaying:
		r.State = game.StatusFinished
	case game.StatusFinished:
		r.State = game.StatusWaiting
	}
	return res, true
}

// GetByCode looks a room up by its code.
func (reg *Registry) GetByCode(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[NormalizeCode(code)]
	return r, ok
}

// GetByConn resolves the room and seat of a player connection.
func (reg *Registry) GetByConn(connID string) (*Room, game.Role, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	code, ok := reg.byConn[connID]
	if !ok {
		return nil, "", false
	}
	r, ok := reg.rooms[code]
	if !ok {
		return nil, "", false
	}

	r.Lock()
	role, seated := r.RoleOf(connID)
	r.Unlock()
	if !seated {
		return nil, "", false
	}
	return r, role, true
}

// IndexSpectator reserves spectator membership for the connection. The
// caller completes the join under the room lock, adding the connection
// to the room's spectator set while building the snapshot it will send.
func (reg *Registry) IndexSpectator(code, connID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, in := reg.byConn[connID]; in {
		return nil, ErrAlreadyInRoom
	}

	r, ok := reg.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrNotFound
	}
	reg.bySpectator[connID] = r.Code
	return r, nil
}

// DropSpectator removes the connection's spectator membership and
// reports the room it was watching, which may already be gone.
func (reg *Registry) DropSpectator(connID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code, ok := reg.bySpectator[connID]
	if !ok {
		return nil, false
	}
	delete(reg.bySpectator, connID)

	r, ok := reg.rooms[code]
	return r, ok
}

// SpectatedRoom reports which room a spectator connection is watching.
func (reg *Registry) SpectatedRoom(connID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	code, ok := reg.bySpectator[connID]
	if !ok {
		return nil, false
	}
	r, ok := reg.rooms[code]
	return r, ok
}

// Codes snapshots the live room codes, used by the journal orphan sweep.
func (reg *Registry) Codes() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	codes := make([]string, 0, len(reg.rooms))
	for code := range reg.rooms {
		codes = append(codes, code)
	}
	return codes
}

// CleanupIdle removes rooms past the TTL that are not mid-game and
// returns them for teardown broadcasts and journal archival.
func (reg *Registry) CleanupIdle(ttl time.Duration) []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cutoff := reg.now().Add(-ttl)
	var removed []*Room

	for code, r := range reg.rooms {
		r.Lock()
		idle := r.State != game.StatusPlaying && r.CreatedAt.Before(cutoff)
		if idle {
			r.Closed = true
			delete(reg.rooms, code)
			for _, id := range r.PlayerConnIDs() {
				delete(reg.byConn, id)
			}
			for id := range r.Spectators {
				delete(reg.bySpectator, id)
			}
			removed = append(removed, r)
		}
		r.Unlock()
	}
	return removed
}
