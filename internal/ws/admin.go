package ws

import (
	"sync"

	"github.com/doggy8088/Minesweeper3D/internal/room"
)

// AdminHub tracks authenticated observer connections: which ones are
// subscribed to the room-stats feed and which room each one spectates.
// It is a leaf lock; the dispatcher may call into it while holding a
// room lock.
type AdminHub struct {
	mu          sync.Mutex
	subscribers map[string]*Client
	spectating  map[string]string             // connID -> room code
	byRoom      map[string]map[string]*Client // room code -> spectating conns
}

func NewAdminHub() *AdminHub {
	return &AdminHub{
		subscribers: make(map[string]*Client),
		spectating:  make(map[string]string),
		byRoom:      make(map[string]map[string]*Client),
	}
}

// Subscribe adds the connection to the stats feed.
func (h *AdminHub) Subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[c.ID] = c
}

// Spectate moves the connection onto the given room, replacing any
// previous membership.
func (h *AdminHub) Spectate(c *Client, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(c.ID)
	h.spectating[c.ID] = code
	if h.byRoom[code] == nil {
		h.byRoom[code] = make(map[string]*Client)
	}
	h.byRoom[code][c.ID] = c
}

// LeaveSpectate drops the connection's room membership and reports
// which room it was watching.
func (h *AdminHub) LeaveSpectate(connID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	code, ok := h.spectating[connID]
	if ok {
		h.leaveLocked(connID)
	}
	return code, ok
}

func (h *AdminHub) leaveLocked(connID string) {
	code, ok := h.spectating[connID]
	if !ok {
		return
	}
	delete(h.spectating, connID)
	if conns := h.byRoom[code]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.byRoom, code)
		}
	}
}

// Remove clears every membership for a disconnected admin.
func (h *AdminHub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, connID)
	h.leaveLocked(connID)
}

// SpectatorsOf snapshots the admin connections watching a room.
func (h *AdminHub) SpectatorsOf(code string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := make([]*Client, 0, len(h.byRoom[code]))
	for _, c := range h.byRoom[code] {
		conns = append(conns, c)
	}
	return conns
}

// CloseRoom evicts every admin spectator of a closing room and returns
// them so the caller can send the final notification.
func (h *AdminHub) CloseRoom(code string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := make([]*Client, 0, len(h.byRoom[code]))
	for id, c := range h.byRoom[code] {
		conns = append(conns, c)
		delete(h.spectating, id)
	}
	delete(h.byRoom, code)
	return conns
}

// PushStats delivers a rooms summary to every subscriber.
func (h *AdminHub) PushStats(summary room.StatsSummary) {
	data := encode(MsgAdminRoomsUpdate, summary)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.subscribers {
		c.send(data)
	}
}
