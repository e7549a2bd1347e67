// voiceprobe joins a relay as a fake player, walks in a circle sending
// synthetic audio, and prints every relayed frame next to the gain and pan
// computed locally from the same positions.
// Usage: go run ./cmd/voiceprobe --url ws://localhost:8080/ws --nick probe-1
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rickgao/proximity-voice/internal/attenuation"
	"github.com/rickgao/proximity-voice/internal/connection"
	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket endpoint")
	nick := flag.String("nick", "voiceprobe", "player nickname")
	centerX := flag.Float64("x", 0, "circle center x")
	centerZ := flag.Float64("z", 0, "circle center z")
	radius := flag.Float64("radius", 8, "circle radius (0 stands still)")
	period := flag.Duration("period", 20*time.Second, "time for one lap")
	chunkEvery := flag.Duration("chunk-interval", 100*time.Millisecond, "audio chunk interval (0 = listen only)")
	chunkSize := flag.Int("chunk-size", 320, "synthetic audio chunk size in bytes")
	maxDistance := flag.Float64("max-distance", attenuation.DefaultMaxDistance, "relay max distance, for local comparison")
	curve := flag.String("curve", attenuation.DefaultCurve.String(), "relay curve, for local comparison")
	volume := flag.Float64("volume", attenuation.DefaultMasterVolume, "relay master volume, for local comparison")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	curveVal, err := attenuation.ParseCurve(*curve)
	if err != nil {
		logger.Error("invalid curve", "error", err)
		os.Exit(1)
	}
	params := attenuation.Params{MaxDistance: *maxDistance, Curve: curveVal, MasterVolume: *volume}
	if err := params.Validate(); err != nil {
		logger.Error("invalid attenuation params", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = *url
	clientCfg.Nick = *nick
	client := connection.NewClient(clientCfg, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	w := &walker{center: model.Position{X: *centerX, Y: 64, Z: *centerZ}, radius: *radius, period: *period}
	w.set(w.at(0))

	var stats probeStats
	go printFrames(ctx, client, w, params, &stats, *verbose)
	go walk(ctx, client, w, logger)
	if *chunkEvery > 0 {
		go speak(ctx, client, *chunkEvery, *chunkSize, logger)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := stats.snapshot()
				logger.Info("stats",
					"rosters", s.rosters,
					"audio", s.audio,
					"mismatches", s.mismatches,
					"position", w.get(),
				)
			}
		}
	}()

	logger.Info("probe running - press Ctrl+C to stop", "nick", *nick, "url", *url)

	select {
	case <-ctx.Done():
	case err := <-client.Errors():
		logger.Error("connection lost", "error", err)
	}

	s := stats.snapshot()
	logger.Info("probe stopped", "rosters", s.rosters, "audio", s.audio, "mismatches", s.mismatches)
}

// walker tracks the probe's position on its circle.
type walker struct {
	center model.Position
	radius float64
	period time.Duration

	mu  sync.Mutex
	pos model.Position
}

func (w *walker) at(elapsed time.Duration) model.Position {
	if w.radius == 0 || w.period <= 0 {
		return w.center
	}
	theta := 2 * math.Pi * float64(elapsed) / float64(w.period)
	return model.Position{
		X: w.center.X + w.radius*math.Cos(theta),
		Y: w.center.Y,
		Z: w.center.Z + w.radius*math.Sin(theta),
	}
}

func (w *walker) set(p model.Position) {
	w.mu.Lock()
	w.pos = p
	w.mu.Unlock()
}

func (w *walker) get() model.Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

type probeCounts struct {
	rosters    int64
	audio      int64
	mismatches int64
}

type probeStats struct {
	mu sync.Mutex
	probeCounts
}

func (s *probeStats) snapshot() probeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeCounts
}

func walk(ctx context.Context, client connection.Client, w *walker, logger *slog.Logger) {
	start := time.Now()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		pos := w.at(time.Since(start))
		w.set(pos)
		if err := client.SendPosition(pos); err != nil {
			logger.Warn("failed to send position", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func speak(ctx context.Context, client connection.Client, every time.Duration, size int, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	chunk := make([]byte, size)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rand.Read(chunk)
			if err := client.SendAudio(chunk); err != nil {
				logger.Warn("failed to send audio", "error", err)
			}
		}
	}
}

func printFrames(ctx context.Context, client connection.Client, w *walker, params attenuation.Params, stats *probeStats, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-client.Frames():
			if !ok {
				return
			}

			switch {
			case out.Roster != nil:
				stats.mu.Lock()
				stats.rosters++
				stats.mu.Unlock()

				if verbose {
					data, _ := json.MarshalIndent(out.Roster, "", "  ")
					fmt.Printf("[ROSTER] %s\n", data)
				} else {
					fmt.Printf("[ROSTER] %d players\n", len(out.Roster.Players))
				}

			case out.Audio != nil:
				printAudio(out.Audio, w.get(), params, stats, verbose)
			}
		}
	}
}

func printAudio(a *protocol.AudioRelay, me model.Position, params attenuation.Params, stats *probeStats, verbose bool) {
	speaker := model.Position{X: a.X, Z: a.Z}
	local, err := attenuation.Compute(speaker, me, params)

	// Positions move between the relay's decision and ours, so allow some slack.
	mismatch := err != nil ||
		math.Abs(local.Volume-a.Gain) > 0.05 ||
		math.Abs(local.Pan-a.Pan) > 0.05

	stats.mu.Lock()
	stats.audio++
	if mismatch {
		stats.mismatches++
	}
	stats.mu.Unlock()

	if verbose {
		data, _ := json.MarshalIndent(a, "", "  ")
		fmt.Printf("[AUDIO] %s\n", data)
	}

	mark := ""
	if mismatch {
		mark = " MISMATCH"
	}
	fmt.Printf("[AUDIO] %-12s bytes=%-5d dist=%6.2f gain=%.3f/%.3f pan=%+.2f/%+.2f%s\n",
		a.PlayerNick, len(a.AudioData), a.Distance, a.Gain, local.Volume, a.Pan, local.Pan, mark)
}
