package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Config exposes the default game settings so clients can render the
// room-creation form before opening a websocket.
func (h *Handler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"defaultMinesCount": h.cfg.DefaultMinesCount,
		"gridSize":          h.cfg.GridSize,
		"turnTimeLimit":     h.cfg.TurnTimeLimit,
		"minRevealsToPass":  h.cfg.MinRevealsToPass,
	})
}
