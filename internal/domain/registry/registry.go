/*
Package registry is the single source of truth for who is online and through
which connection.

Key concepts:
  - Sessions: every connection that passed the handshake. All sessions receive
    presence broadcasts.
  - Presence: at most one authoritative connection per user, plus a reverse
    index from connection to user kept in lockstep with it.
  - Broadcast ordering: a mutation, the snapshot it produces and the enqueue of
    that snapshot to every session happen under one lock, so every connection
    observes snapshots in mutation order. Enqueueing never blocks; a slow
    connection skips intermediate snapshots but always ends on the newest.
*/
package registry

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/model"
)

var (
	ErrInvalidConnection = errors.New("registry: connection has no id or user id")
	ErrConnectionClosed  = errors.New("registry: connection already torn down")
	ErrAlreadyAttached   = errors.New("registry: connection already registered")
)

// Registrar is the read/write gateway used by the service layer.
type Registrar interface {
	Register(conn Connector) (Change, error)
	Unregister(conn Connector) (Change, bool)
	Resolve(userID string) (Connector, bool)
	Snapshot() []string
	Stats() model.HubStats
	Shutdown()
}

// Change describes the outcome of a Register or Unregister call.
type Change struct {
	UserID string
	ConnID string
	// Authoritative reports whether this connection holds the user's presence
	// entry after the call (Register) or held it before (Unregister).
	Authoritative bool
	// Displaced is the connection that lost authority under LastWins.
	Displaced  Connector
	Snapshot   []string
	Recipients int
	// Shed counts sessions that refused the snapshot because their connector
	// was already closed.
	Shed int
}

type Registry struct {
	mu sync.RWMutex

	sessions map[string]Connector // connID -> every live session
	byUser   map[string]Connector // userID -> authoritative connection
	byConn   map[string]string    // connID -> userID, authoritative only
	order    []string             // online users in first-registration order

	policy    Policy
	logger    *slog.Logger
	startedAt time.Time

	broadcasts atomic.Uint64
	shed       atomic.Uint64
}

// New returns an empty registry. There is no package-level instance.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions:  make(map[string]Connector),
		byUser:    make(map[string]Connector),
		byConn:    make(map[string]string),
		policy:    FirstWins,
		logger:    slog.New(slog.DiscardHandler),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Policy() Policy { return r.policy }

// Register records conn as a live session and applies the presence policy for
// its user, then broadcasts the full snapshot to every session.
func (r *Registry) Register(conn Connector) (Change, error) {
	if conn == nil || conn.GetID() == "" || conn.GetUserID() == "" {
		return Change{}, ErrInvalidConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-conn.Done():
		return Change{}, ErrConnectionClosed
	default:
	}

	connID, userID := conn.GetID(), conn.GetUserID()
	if _, ok := r.sessions[connID]; ok {
		return Change{}, ErrAlreadyAttached
	}
	r.sessions[connID] = conn

	ch := Change{UserID: userID, ConnID: connID}

	current, online := r.byUser[userID]
	switch {
	case !online:
		r.byUser[userID] = conn
		r.byConn[connID] = userID
		r.order = append(r.order, userID)
		ch.Authoritative = true

	case r.policy == LastWins:
		// The displaced connection stays a session but leaves the reverse
		// index, so its teardown cannot remove the new mapping.
		delete(r.byConn, current.GetID())
		r.byUser[userID] = conn
		r.byConn[connID] = userID
		ch.Authoritative = true
		ch.Displaced = current

	default:
		// [KEEP_FIRST] the existing mapping is left untouched.
	}

	r.broadcastLocked(&ch)
	return ch, nil
}

// Unregister tears down conn. The presence entry is removed only when conn is
// the user's authoritative connection. The second and later calls for the same
// connection return false and broadcast nothing.
func (r *Registry) Unregister(conn Connector) (Change, bool) {
	if conn == nil {
		return Change{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.GetID()
	if _, ok := r.sessions[connID]; !ok {
		return Change{}, false
	}
	delete(r.sessions, connID)

	ch := Change{UserID: conn.GetUserID(), ConnID: connID}

	// [REVERSE_INDEX]
	if userID, ok := r.byConn[connID]; ok {
		delete(r.byConn, connID)
		delete(r.byUser, userID)
		r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == userID })
		ch.UserID = userID
		ch.Authoritative = true
	}

	r.broadcastLocked(&ch)
	return ch, true
}

// Resolve returns the authoritative connection for userID. Never blocks on
// anything but the registry lock.
func (r *Registry) Resolve(userID string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byUser[userID]
	return conn, ok
}

// Snapshot returns the online users in the order they came online.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Sessions returns every live session, authoritative or not.
func (r *Registry) Sessions() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connector, 0, len(r.sessions))
	for _, c := range r.sessions {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Stats() model.HubStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return model.HubStats{
		OnlineUsers:   len(r.byUser),
		Sessions:      len(r.sessions),
		Policy:        string(r.policy),
		Uptime:        time.Since(r.startedAt),
		Broadcasts:    r.broadcasts.Load(),
		DroppedEvents: r.shed.Load(),
	}
}

// Shutdown closes every session and empties the registry. No broadcast is sent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Connector)
	r.byUser = make(map[string]Connector)
	r.byConn = make(map[string]string)
	r.order = nil
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
	r.logger.Info("REGISTRY_SHUTDOWN", "sessions_closed", len(sessions))
}

func (r *Registry) snapshotLocked() []string {
	return slices.Clone(r.order)
}

// broadcastLocked must be called with mu held.
func (r *Registry) broadcastLocked(ch *Change) {
	ch.Snapshot = r.snapshotLocked()

	ev := event.NewPresenceEvent(slices.Clone(ch.Snapshot))
	for _, c := range r.sessions {
		if c.Send(ev) {
			ch.Recipients++
		} else {
			ch.Shed++
		}
	}

	r.broadcasts.Add(1)
	if ch.Shed > 0 {
		r.shed.Add(uint64(ch.Shed))
		r.logger.Warn("PRESENCE_BROADCAST_SHED", "shed", ch.Shed, "recipients", ch.Recipients)
	}
}
