package http

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doggy8088/Minesweeper3D/internal/config"
	"github.com/doggy8088/Minesweeper3D/internal/http/handlers"
	"github.com/doggy8088/Minesweeper3D/internal/http/middleware"
	"github.com/doggy8088/Minesweeper3D/internal/service"
	"github.com/doggy8088/Minesweeper3D/internal/ws"
)

// RegisterRoutes wires the HTTP surface: health and config endpoints,
// the admin login, both websocket channels, and the static clients.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, auth *service.AdminAuth, dispatcher *ws.Dispatcher) {
	h := handlers.NewHandler(cfg, auth)

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/config", h.Config)
	api.POST("/admin/login", middleware.RateLimit(5, time.Minute), h.AdminLogin)

	r.GET("/ws", ws.HandlePlayer(dispatcher, cfg.AllowedOrigin))
	r.GET("/ws/admin", ws.HandleAdmin(dispatcher, auth, cfg.AllowedOrigin))

	// Player, spectator, and admin clients are plain static bundles.
	r.StaticFS("/assets", gin.Dir(filepath.Join(cfg.PublicDir, "assets"), false))
	r.NoRoute(func(c *gin.Context) {
		c.File(filepath.Join(cfg.PublicDir, "index.html"))
	})
}
