package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/protocol"
)

// ChangeBufferSize is the default capacity of the Change channel.
const ChangeBufferSize = 1000

// Errors
var (
	ErrNotFound    = errors.New("player not found")
	ErrDuplicateID = errors.New("player id already connected")
	ErrInvalidID   = errors.New("player id is empty")
)

// Recipient is the delivery endpoint of a connected player.
// The owning session implements it; the registry never touches transport state.
type Recipient interface {
	// Deliver queues an outbound frame without blocking.
	Deliver(frame protocol.Frame) error

	// Evict asks the owner to close the player's session.
	Evict(reason error)
}

// Handle identifies one registration. Release with a stale handle is a no-op.
type Handle struct {
	ID  string
	gen uint64
}

// ChangeKind is the type of a registry mutation.
type ChangeKind string

const (
	Joined ChangeKind = "joined"
	Left   ChangeKind = "left"
	Moved  ChangeKind = "moved"
)

// Change describes one roster mutation.
type Change struct {
	Kind     ChangeKind
	PlayerID string
	Version  uint64
	At       time.Time
}

// Peer pairs a player's state with its delivery endpoint.
type Peer struct {
	model.PlayerState
	Recipient Recipient
}

// Config holds Player Registry configuration.
type Config struct {
	SpawnHeight      float64 // Initial y for new players
	ChangeBufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpawnHeight:      64,
		ChangeBufferSize: ChangeBufferSize,
	}
}

type entry struct {
	state     model.PlayerState
	recipient Recipient
	gen       uint64
}

// Registry is the concurrent-safe store of connected players.
type Registry struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	players map[string]*entry
	version uint64 // Bumped on every mutation
	nextGen uint64

	// Output channel for roster broadcasting.
	changes chan Change
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.ChangeBufferSize < 1 {
		cfg.ChangeBufferSize = ChangeBufferSize
	}
	return &Registry{
		cfg:     cfg,
		now:     time.Now,
		players: make(map[string]*entry),
		changes: make(chan Change, cfg.ChangeBufferSize),
	}
}

// Connect registers a player at the spawn point.
func (r *Registry) Connect(id string, recipient Recipient) (Handle, error) {
	if id == "" {
		return Handle{}, ErrInvalidID
	}

	r.mu.Lock()
	if _, ok := r.players[id]; ok {
		r.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	now := r.now()
	r.nextGen++
	r.version++
	r.players[id] = &entry{
		state: model.PlayerState{
			ID:          id,
			Position:    model.Position{Y: r.cfg.SpawnHeight},
			LastSeen:    now,
			ConnectedAt: now,
		},
		recipient: recipient,
		gen:       r.nextGen,
	}
	change := Change{Kind: Joined, PlayerID: id, Version: r.version, At: now}
	handle := Handle{ID: id, gen: r.nextGen}
	r.mu.Unlock()

	r.notifyChange(change)
	return handle, nil
}

// UpdatePosition overwrites a player's position (last writer wins).
// Unknown ids are ignored; it reports whether the player was found.
func (r *Registry) UpdatePosition(id string, pos model.Position) bool {
	return r.move(id, func(cur model.Position) model.Position { return pos })
}

// UpdatePlane sets a player's x and z, keeping the current height.
func (r *Registry) UpdatePlane(id string, x, z float64) bool {
	return r.move(id, func(cur model.Position) model.Position {
		return model.Position{X: x, Y: cur.Y, Z: z}
	})
}

// move applies fn to a player's position under the write lock and emits a
// Moved change.
func (r *Registry) move(id string, fn func(model.Position) model.Position) bool {
	r.mu.Lock()
	e, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	now := r.now()
	e.state.Position = fn(e.state.Position)
	e.state.LastSeen = now
	r.version++
	change := Change{Kind: Moved, PlayerID: id, Version: r.version, At: now}
	r.mu.Unlock()

	r.notifyChange(change)
	return true
}

// Touch stamps a player's LastSeen without changing its position.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.players[id]
	if !ok {
		return false
	}
	e.state.LastSeen = r.now()
	return true
}

// Disconnect removes a player. Unknown ids are ignored.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	if _, ok := r.players[id]; !ok {
		r.mu.Unlock()
		return false
	}
	change := r.removeLocked(id)
	r.mu.Unlock()

	r.notifyChange(change)
	return true
}

// Release removes the registration identified by h, if it is still current.
func (r *Registry) Release(h Handle) bool {
	r.mu.Lock()
	e, ok := r.players[h.ID]
	if !ok || e.gen != h.gen {
		r.mu.Unlock()
		return false
	}
	change := r.removeLocked(h.ID)
	r.mu.Unlock()

	r.notifyChange(change)
	return true
}

// Get returns a copy of one player's state.
func (r *Registry) Get(id string) (model.PlayerState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.players[id]
	if !ok {
		return model.PlayerState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.state, nil
}

// Snapshot returns a consistent copy of every player, ordered by id.
func (r *Registry) Snapshot() model.Snapshot {
	r.mu.RLock()
	players := make([]model.PlayerState, 0, len(r.players))
	for _, e := range r.players {
		players = append(players, e.state)
	}
	version := r.version
	r.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	return model.Snapshot{
		Players: players,
		Version: version,
		TakenAt: r.now(),
	}
}

// Peers returns every player except exclude, with its delivery endpoint.
func (r *Registry) Peers(exclude string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.players))
	for id, e := range r.players {
		if id == exclude {
			continue
		}
		peers = append(peers, Peer{PlayerState: e.state, Recipient: e.recipient})
	}
	return peers
}

// Evict asks a player's session to close. The entry is removed when the
// session releases its handle.
func (r *Registry) Evict(id string, reason error) bool {
	r.mu.RLock()
	e, ok := r.players[id]
	var recipient Recipient
	if ok {
		recipient = e.recipient
	}
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if recipient == nil {
		return r.Disconnect(id)
	}
	recipient.Evict(reason)
	return true
}

// Len returns the number of connected players.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Changes returns the channel of roster changes.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

// removeLocked deletes an entry (caller must hold write lock).
func (r *Registry) removeLocked(id string) Change {
	delete(r.players, id)
	r.version++
	return Change{Kind: Left, PlayerID: id, Version: r.version, At: r.now()}
}

// notifyChange sends a change to the changes channel (non-blocking).
func (r *Registry) notifyChange(change Change) {
	select {
	case r.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-r.changes:
		default:
		}
		select {
		case r.changes <- change:
		default:
		}
	}
}
