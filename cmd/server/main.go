package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doggy8088/Minesweeper3D/internal/config"
	"github.com/doggy8088/Minesweeper3D/internal/game"
	httpServer "github.com/doggy8088/Minesweeper3D/internal/http"
	"github.com/doggy8088/Minesweeper3D/internal/journal"
	"github.com/doggy8088/Minesweeper3D/internal/logger"
	"github.com/doggy8088/Minesweeper3D/internal/room"
	"github.com/doggy8088/Minesweeper3D/internal/service"
	"github.com/doggy8088/Minesweeper3D/internal/ws"
)

const idleSweepInterval = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	store, err := journal.NewStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("journal store init failed", "error", err)
	}

	registry := room.NewRegistry(cfg.RoomCodeLength)

	// Journals left behind by a previous run belong to rooms that no
	// longer exist; move them out of the active directory.
	store.ArchiveOrphans(registry.Codes())

	defaults := game.Settings{
		GridSize:         cfg.GridSize,
		MinesCount:       cfg.DefaultMinesCount,
		TurnTimeLimit:    cfg.TurnTimeLimit,
		MinRevealsToPass: cfg.MinRevealsToPass,
	}.Normalize()

	auth := service.NewAdminAuth(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret)
	adminHub := ws.NewAdminHub()
	dispatcher := ws.NewDispatcher(defaults, registry, store, adminHub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.StartCleanup(ctx, idleSweepInterval, cfg.RoomIdleTimeout)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if cfg.AllowedOrigin != "" {
		corsCfg.AllowOrigins = []string{cfg.AllowedOrigin}
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	httpServer.RegisterRoutes(r, cfg, auth, dispatcher)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	// Flush pending journal writes; still-open rooms are archived by
	// the orphan sweep on the next boot.
	store.Close()
	logger.Info("server exited")
}
