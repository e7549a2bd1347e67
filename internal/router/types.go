package router

import (
	"errors"

	"github.com/rickgao/proximity-voice/internal/attenuation"
	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/registry"
)

// Errors
var (
	ErrUnknownSender = errors.New("unknown sender")
	ErrOutboxFull    = errors.New("outbox full")
	ErrOutboxClosed  = errors.New("outbox closed")
)

// RouterConfig holds configuration for the Proximity Router.
type RouterConfig struct {
	// Params are used when a caller routes with DefaultParams.
	Params attenuation.Params
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Params: attenuation.DefaultParams(),
	}
}

// Directory is the view of the Player Registry the router needs.
type Directory interface {
	Get(id string) (model.PlayerState, error)
	Peers(exclude string) []registry.Peer
	Evict(id string, reason error) bool
}

// Observer receives routing events, typically to export metrics.
type Observer interface {
	PacketRouted(recipients int)
	FrameDropped(reason string)
	DeliveryFailed()
	UnknownSender()
}

// Delivery describes one recipient of a routed packet.
type Delivery struct {
	PlayerID    string
	Attenuation attenuation.Attenuation
	Err         error // nil, ErrOutboxFull or the delivery failure
}

// Result summarises one routing decision.
type Result struct {
	Packet     model.AudioPacket
	Recipients []Delivery // Every in-range peer, whatever the outcome
	Delivered  int
	Dropped    int // Outbox full
	Failed     int // Outbox closed or broken; recipient evicted
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	PacketsReceived  int64
	PacketsRouted    int64 // Packets with at least one recipient
	FramesDelivered  int64
	FramesDropped    int64
	DeliveryFailures int64
	UnknownSenders   int64
	InvalidParams    int64
}

type noopObserver struct{}

func (noopObserver) PacketRouted(int)    {}
func (noopObserver) FrameDropped(string) {}
func (noopObserver) DeliveryFailed()     {}
func (noopObserver) UnknownSender()      {}
