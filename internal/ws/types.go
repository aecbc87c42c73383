package ws

import (
	"encoding/json"

	"github.com/doggy8088/Minesweeper3D/internal/logger"
)

// Channel labels for the two websocket namespaces.
const (
	ChannelPlayer = "player"
	ChannelAdmin  = "admin"
)

// Client → server events on the player channel.
const (
	MsgCreateRoom       = "create_room"
	MsgJoinRoom         = "join_room"
	MsgRevealTile       = "reveal_tile"
	MsgPassTurn         = "pass_turn"
	MsgRequestRestart   = "request_restart"
	MsgAcceptRestart    = "accept_restart"
	MsgPublicSpectate   = "public_spectate"
	MsgLeaveSpectate    = "leave_spectate"
	MsgSendDanmaku      = "send_danmaku"
	MsgUpdatePlayerName = "update_player_name"
)

// Client → server events on the admin channel.
const (
	MsgSubscribeRooms     = "subscribe_rooms"
	MsgAdminSpectate      = "admin_spectate"
	MsgAdminLeaveSpectate = "admin_leave_spectate"
)

// Server → client events.
const (
	MsgRoomCreated        = "room_created"
	MsgRoomJoined         = "room_joined"
	MsgJoinError          = "join_error"
	MsgRedirectToSpectate = "redirect_to_spectate"
	MsgPlayerJoined       = "player_joined"
	MsgPlayerLeft         = "player_left"
	MsgGameStart          = "game_start"
	MsgTileRevealed       = "tile_revealed"
	MsgTurnChanged        = "turn_changed"
	MsgTimerUpdate        = "timer_update"
	MsgTimeoutAction      = "timeout_action"
	MsgGameOver           = "game_over"
	MsgRestartRequested   = "restart_requested"
	MsgSpectatorCount     = "spectator_count_update"
	MsgDanmaku            = "danmaku"
	MsgPlayerNameUpdated  = "player_name_updated"
	MsgError              = "error"
	MsgSpectateJoined     = "spectate_joined"
	MsgSpectateError      = "spectate_error"
	MsgRoomClosed         = "room_closed"
	MsgAdminRoomsUpdate   = "admin_rooms_update"
	MsgAdminError         = "admin_error"
)

// Message is the wire envelope in both directions: a type discriminator
// plus a type-specific payload object.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// encode marshals an outbound event. Marshal failures are programming
// errors (every payload type here is marshalable), logged and skipped.
func encode(msgType string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Error("event payload marshal failed", "type", msgType, "error", err)
			return nil
		}
		raw = data
	}
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		logger.Error("event marshal failed", "type", msgType, "error", err)
		return nil
	}
	return data
}
