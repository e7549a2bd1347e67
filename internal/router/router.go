package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/proximity-voice/internal/attenuation"
	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/protocol"
	"github.com/rickgao/proximity-voice/internal/registry"
)

// Router fans audio packets out to players within hearing distance.
//
// Route is safe for concurrent use. Each session calls it from its own read
// loop, so packets from one sender reach the outboxes in send order.
type Router struct {
	cfg      RouterConfig
	dir      Directory
	observer Observer
	logger   *slog.Logger

	mu    sync.Mutex
	stats RouterStats
}

// NewRouter creates a new Proximity Router.
func NewRouter(cfg RouterConfig, dir Directory, observer Observer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}

	return &Router{
		cfg:      cfg,
		dir:      dir,
		observer: observer,
		logger:   logger,
	}
}

// DefaultParams returns the configured mixing parameters.
func (r *Router) DefaultParams() attenuation.Params {
	return r.cfg.Params
}

// Route delivers payload from senderID to every other player within
// p.MaxDistance. Each recipient gets its own frame carrying the speaker's
// position and the listener-relative gain and pan.
//
// A full recipient outbox drops that frame. Any other delivery error evicts
// the recipient. Neither aborts delivery to the rest.
func (r *Router) Route(senderID string, payload []byte, p attenuation.Params) (Result, error) {
	r.count(func(s *RouterStats) { s.PacketsReceived++ })

	if err := p.Validate(); err != nil {
		r.count(func(s *RouterStats) { s.InvalidParams++ })
		return Result{}, err
	}

	sender, err := r.dir.Get(senderID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			r.count(func(s *RouterStats) { s.UnknownSenders++ })
			r.observer.UnknownSender()
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownSender, senderID)
		}
		return Result{}, err
	}

	packet := model.AudioPacket{
		SenderID:       senderID,
		Payload:        payload,
		SenderPosition: sender.Position,
		ReceivedAt:     time.Now(),
	}
	result := Result{Packet: packet}

	for _, peer := range r.dir.Peers(senderID) {
		d := attenuation.Distance(packet.SenderPosition, peer.Position)
		if !attenuation.InRange(d, p.MaxDistance) {
			continue
		}

		att, err := attenuation.Compute(packet.SenderPosition, peer.Position, p)
		if err != nil {
			return result, err
		}

		data, err := protocol.EncodeAudioRelay(protocol.AudioRelay{
			PlayerNick: packet.SenderID,
			AudioData:  packet.Payload,
			X:          packet.SenderPosition.X,
			Z:          packet.SenderPosition.Z,
			Gain:       att.Volume,
			Pan:        att.Pan,
			Distance:   att.Distance,
		})
		if err != nil {
			return result, fmt.Errorf("encode audio relay: %w", err)
		}

		delivery := Delivery{PlayerID: peer.ID, Attenuation: att}
		delivery.Err = r.deliver(peer, protocol.Frame{
			Kind:     protocol.FrameAudio,
			SenderID: senderID,
			Data:     data,
		})

		switch {
		case delivery.Err == nil:
			result.Delivered++
		case errors.Is(delivery.Err, ErrOutboxFull):
			result.Dropped++
		default:
			result.Failed++
		}
		result.Recipients = append(result.Recipients, delivery)
	}

	r.count(func(s *RouterStats) {
		if len(result.Recipients) > 0 {
			s.PacketsRouted++
		}
		s.FramesDelivered += int64(result.Delivered)
		s.FramesDropped += int64(result.Dropped)
		s.DeliveryFailures += int64(result.Failed)
	})
	r.observer.PacketRouted(result.Delivered)

	return result, nil
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// deliver pushes one frame and applies the failure policy.
func (r *Router) deliver(peer registry.Peer, frame protocol.Frame) error {
	if peer.Recipient == nil {
		return ErrOutboxClosed
	}

	err := peer.Recipient.Deliver(frame)
	switch {
	case err == nil:
		return nil

	case errors.Is(err, ErrOutboxFull):
		r.observer.FrameDropped("outbox_full")
		r.logger.Debug("outbox full, dropping audio frame",
			"recipient", peer.ID,
			"sender", frame.SenderID,
		)
		return err

	default:
		r.observer.DeliveryFailed()
		r.logger.Warn("audio delivery failed, evicting recipient",
			"recipient", peer.ID,
			"sender", frame.SenderID,
			"error", err,
		)
		r.dir.Evict(peer.ID, fmt.Errorf("deliver audio: %w", err))
		return err
	}
}

func (r *Router) count(fn func(*RouterStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
