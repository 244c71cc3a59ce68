package realtime

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultGracePeriod is how long a dropped connection may reconnect before
// the participant is treated as truly gone.
const DefaultGracePeriod = 3 * time.Second

// Registry binds participant ids to their live connection and manages the
// disconnect grace period. At most one binding and one pending timer exist
// per participant; the newest connection always wins.
type Registry struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	grace    time.Duration
	bindings map[string]*binding

	// onDeparture fires once per expired grace period, outside the lock.
	onDeparture func(participantID, sessionID string)
}

type binding struct {
	conn      Conn
	sessionID string
	timer     clockwork.Timer
}

// RegistryOption customises the Registry.
type RegistryOption func(*Registry)

// WithClock injects the clock used for grace timers, for tests.
func WithClock(clock clockwork.Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithGracePeriod overrides the disconnect grace duration.
func WithGracePeriod(grace time.Duration) RegistryOption {
	return func(r *Registry) {
		if grace > 0 {
			r.grace = grace
		}
	}
}

// NewRegistry constructs a Registry with a real clock and the default grace
// period.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clock:    clockwork.NewRealClock(),
		grace:    DefaultGracePeriod,
		bindings: make(map[string]*binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDeparture registers the handler invoked when a grace period expires.
func (r *Registry) OnDeparture(fn func(participantID, sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeparture = fn
}

// Bind records conn as the participant's active connection. A pending grace
// timer is cancelled and the bind reported as a reconnect; an existing live
// binding (multi-tab) is replaced by the newer connection and also reported
// as a reconnect so the room is not told about a second join.
func (r *Registry) Bind(participantID, sessionID string, conn Conn) (reconnect bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bindings[participantID]; ok {
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.conn = conn
		b.sessionID = sessionID
		return true
	}

	r.bindings[participantID] = &binding{conn: conn, sessionID: sessionID}
	return false
}

// Unbind starts the grace timer for a participant whose connection closed.
// A close from a connection that is no longer the active binding is ignored
// so an old tab cannot evict a newer one. Any previous timer is replaced,
// never duplicated.
func (r *Registry) Unbind(participantID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[participantID]
	if !ok || b.conn != conn {
		return
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = r.clock.AfterFunc(r.grace, func() {
		r.expire(participantID)
	})
}

func (r *Registry) expire(participantID string) {
	r.mu.Lock()
	b, ok := r.bindings[participantID]
	if !ok || b.timer == nil {
		// A rebind won the race with the timer firing.
		r.mu.Unlock()
		return
	}
	sessionID := b.sessionID
	delete(r.bindings, participantID)
	handler := r.onDeparture
	r.mu.Unlock()

	if handler != nil {
		handler(participantID, sessionID)
	}
}

// DropSession discards every binding for a closed session, cancelling any
// pending grace timers so no departure events fire for a room that no longer
// exists.
func (r *Registry) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for participantID, b := range r.bindings {
		if b.sessionID != sessionID {
			continue
		}
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(r.bindings, participantID)
	}
}

// Bound reports whether the participant currently has an active binding.
func (r *Registry) Bound(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bindings[participantID]
	return ok
}
