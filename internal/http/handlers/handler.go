package handlers

import (
	"github.com/doggy8088/Minesweeper3D/internal/config"
	"github.com/doggy8088/Minesweeper3D/internal/service"
)

// Handler bundles the dependencies of the plain-HTTP surface: health,
// public game configuration, and the admin login that feeds the admin
// websocket channel.
type Handler struct {
	cfg  *config.Config
	auth *service.AdminAuth
}

func NewHandler(cfg *config.Config, auth *service.AdminAuth) *Handler {
	return &Handler{cfg: cfg, auth: auth}
}
