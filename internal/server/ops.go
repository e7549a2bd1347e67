package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/proximity-voice/internal/connection"
	"github.com/rickgao/proximity-voice/internal/version"
)

// Pinger checks a dependency's reachability. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// playerView is the /debug/players representation of one player.
type playerView struct {
	Nick        string    `json:"nick"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Z           float64   `json:"z"`
	LastSeen    time.Time `json:"last_seen"`
	ConnectedAt time.Time `json:"connected_at"`
}

// OpsDeps are the optional collaborators of the ops listener.
type OpsDeps struct {
	DB          Pinger       // nil when the journal is disabled
	Metrics     http.Handler // nil disables the metrics endpoint
	MetricsPath string       // Default: /metrics
}

// NewOpsHandler creates the handler for the operations listener.
func NewOpsHandler(hub *connection.Hub, deps OpsDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	db := deps.DB
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Version    version.Info           `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]interface{}),
		}

		// Check database
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		stats := hub.Stats()
		health.Components["hub"] = map[string]interface{}{
			"sessions":          stats.ActiveSessions,
			"players":           stats.Players,
			"roster_broadcasts": stats.RosterBroadcasts,
			"rejected":          stats.Rejected,
		}
		health.Components["router"] = map[string]interface{}{
			"packets_received":  stats.Router.PacketsReceived,
			"packets_routed":    stats.Router.PacketsRouted,
			"frames_delivered":  stats.Router.FramesDelivered,
			"frames_dropped":    stats.Router.FramesDropped,
			"delivery_failures": stats.Router.DeliveryFailures,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			logger.Warn("health check failed", "components", health.Components)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/players", func(w http.ResponseWriter, r *http.Request) {
		snap := hub.Registry().Snapshot()

		players := make([]playerView, 0, snap.Len())
		for _, p := range snap.Players {
			players = append(players, playerView{
				Nick:        p.ID,
				X:           p.Position.X,
				Y:           p.Position.Y,
				Z:           p.Position.Z,
				LastSeen:    p.LastSeen,
				ConnectedAt: p.ConnectedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   len(players),
			"version": snap.Version,
			"players": players,
		})
	})

	if deps.Metrics != nil {
		mux.Handle(deps.MetricsPath, deps.Metrics)
	}

	return mux
}
