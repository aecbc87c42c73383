package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/doggy8088/Minesweeper3D/internal/logger"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	AppPort       string
	DataDir       string
	PublicDir     string
	AllowedOrigin string

	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string

	// Default game settings, overridable per room at creation.
	GridSize          int
	DefaultMinesCount int
	TurnTimeLimit     int // seconds
	MinRevealsToPass  int
	RoomCodeLength    int
	RoomIdleTimeout   time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment, honouring a local .env
// file when present. Missing optional keys fall back to defaults; the
// admin credential and signing secret get safe fallbacks with a warning.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:       envString("PORT", "3000"),
		DataDir:       envString("DATA_DIR", "data"),
		PublicDir:     envString("PUBLIC_DIR", "public"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		AdminUsername: envString("ADMIN_USERNAME", "admin"),

		GridSize:          envInt("GRID_SIZE", 10),
		DefaultMinesCount: envInt("DEFAULT_MINES_COUNT", 18),
		TurnTimeLimit:     envInt("TURN_TIME_LIMIT", 30),
		MinRevealsToPass:  envInt("MIN_REVEALS_TO_PASS", 1),
		RoomCodeLength:    envInt("ROOM_CODE_LENGTH", 6),
		RoomIdleTimeout:   time.Duration(envInt("ROOM_IDLE_TIMEOUT", 30*60*1000)) * time.Millisecond,

		LogLevel: envString("LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",
	}

	cfg.AdminPasswordHash = loadAdminCredential()
	cfg.JWTSecret = loadJWTSecret()

	return cfg
}

// loadAdminCredential prefers a pre-computed bcrypt hash; a plaintext
// ADMIN_PASSWORD is hashed once at startup. With neither set the admin
// login stays disabled.
func loadAdminCredential() string {
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		return hash
	}
	if pw := os.Getenv("ADMIN_PASSWORD"); pw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash ADMIN_PASSWORD", "error", err)
		}
		return string(hash)
	}
	logger.Warn("ADMIN_PASSWORD is not set, admin login disabled")
	return ""
}

// loadJWTSecret falls back to an ephemeral random secret so the server
// stays bootable, at the cost of admin sessions not surviving restarts.
func loadJWTSecret() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logger.Fatal("failed to generate JWT secret", "error", err)
	}
	logger.Warn("JWT_SECRET is not set, using an ephemeral secret")
	return hex.EncodeToString(buf)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
