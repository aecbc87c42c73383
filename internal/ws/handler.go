package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/doggy8088/Minesweeper3D/internal/logger"
	"github.com/doggy8088/Minesweeper3D/internal/service"
)

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
}

// HandlePlayer upgrades a player-channel connection and runs its pumps.
func HandlePlayer(d *Dispatcher, allowedOrigin string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigin)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := NewClient(uuid.NewString(), ChannelPlayer, conn)
		d.Register(client)
		go client.writePump()
		go client.readPump(d.HandlePlayer, d.DisconnectPlayer)
	}
}

// HandleAdmin upgrades an admin-channel connection. The bearer token is
// validated at handshake; a bad token gets a close frame with reason
// "auth failed" and nothing else.
func HandleAdmin(d *Dispatcher, auth *service.AdminAuth, allowedOrigin string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigin)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		token := c.Query("token")
		if err := auth.VerifyToken(token); err != nil {
			deadline := time.Now().Add(writeWait)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth failed"), deadline)
			_ = conn.Close()
			return
		}

		client := NewClient(uuid.NewString(), ChannelAdmin, conn)
		d.RegisterAdmin(client)
		go client.writePump()
		go client.readPump(d.HandleAdmin, d.DisconnectAdmin)
	}
}
