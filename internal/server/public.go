package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rickgao/proximity-voice/internal/connection"
	"github.com/rickgao/proximity-voice/internal/model"
)

// PublicConfig configures the public router.
type PublicConfig struct {
	WSPath         string
	AllowedOrigins []string // "*" allows any origin
}

// updateCoordsRequest is the body of POST /api/update-coords.
type updateCoordsRequest struct {
	Nick string   `json:"nick"`
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Z    *float64 `json:"z"`
}

// NewPublicRouter builds the player-facing HTTP handler.
func NewPublicRouter(cfg PublicConfig, hub *connection.Hub, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws"
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })
	// The hub answers every non-upgrade request with 404.
	r.Any(cfg.WSPath, gin.WrapH(hub))

	r.POST("/api/update-coords", updateCoordsHandler(hub, logger))
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		r.Handle(method, "/api/update-coords", methodNotAllowed)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// updateCoordsHandler sets a player's position from an HTTP client.
// Unknown nicks are accepted and ignored.
func updateCoordsHandler(hub *connection.Hub, logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req updateCoordsRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req.Nick = strings.TrimSpace(req.Nick)
		if req.Nick == "" || req.X == nil || req.Z == nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters"})
			return
		}

		var found bool
		if req.Y != nil {
			found = hub.UpdatePosition(req.Nick, model.Position{X: *req.X, Y: *req.Y, Z: *req.Z})
		} else {
			found = hub.UpdatePlane(req.Nick, *req.X, *req.Z)
		}
		if !found {
			logger.Debug("coords for unknown player ignored", "player", req.Nick)
		}

		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func methodNotAllowed(ctx *gin.Context) {
	ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}

// requestLogger logs non-websocket requests at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		status := ctx.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		var err error
		if len(ctx.Errors) > 0 {
			err = errors.New(ctx.Errors.String())
		}
		logger.Log(ctx.Request.Context(), level, "http request",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", status,
			"error", err,
		)
	}
}
