// Package presence tracks which users hold live realtime connections.
package presence

import (
	"sync"

	"bloodlink-backend/internal/metrics"
)

const defaultShards = 32

// Conn is a live connection handle. ID must be unique per connection.
type Conn interface {
	ID() string
	UserID() int32
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
}

// ChangeFunc is called when a user goes from zero to one connection
// (online) or from one to zero (offline). Calls for users in the same shard
// are serialized and always report the user's current state, so a quick
// reconnect may be reported as nothing at all. fn must not register or
// unregister connections.
type ChangeFunc func(userID int32, online bool)

type shard struct {
	mu    sync.RWMutex
	users map[int32]map[string]Conn

	// emitMu orders change callbacks. announced holds users last reported
	// online.
	emitMu    sync.Mutex
	announced map[int32]bool
}

// Registry maps user ids to their connections. A user is present while at
// least one handle is registered.
type Registry struct {
	shards   []*shard
	onChange ChangeFunc

	mu     sync.Mutex
	online int
	conns  int
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = defaultShards
	}
	r := &Registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[int32]map[string]Conn), announced: make(map[int32]bool)}
	}
	return r
}

// OnChange installs the presence transition callback. Call before the
// registry is shared.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.onChange = fn
}

func (r *Registry) shardFor(userID int32) *shard {
	idx := uint32(userID) % uint32(len(r.shards))
	return r.shards[idx]
}

func (r *Registry) Register(c Conn) {
	userID := c.UserID()
	s := r.shardFor(userID)

	s.mu.Lock()
	handles, ok := s.users[userID]
	if !ok {
		handles = make(map[string]Conn)
		s.users[userID] = handles
	}
	_, dup := handles[c.ID()]
	handles[c.ID()] = c
	cameOnline := !ok
	s.mu.Unlock()

	if !dup {
		r.track(1, cameOnline)
	}
	if cameOnline {
		r.emit(s, userID)
	}
}

// Unregister removes only c. Other handles of the same user stay.
func (r *Registry) Unregister(c Conn) {
	userID := c.UserID()
	s := r.shardFor(userID)

	s.mu.Lock()
	handles, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, found := handles[c.ID()]; !found {
		s.mu.Unlock()
		return
	}
	delete(handles, c.ID())
	wentOffline := len(handles) == 0
	if wentOffline {
		delete(s.users, userID)
	}
	s.mu.Unlock()

	r.track(-1, wentOffline)
	if wentOffline {
		r.emit(s, userID)
	}
}

// emit reports the user's current presence if it differs from what was
// last reported. A transition that lost the race to a newer one is dropped.
func (r *Registry) emit(s *shard, userID int32) {
	if r.onChange == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.RLock()
	online := len(s.users[userID]) > 0
	s.mu.RUnlock()

	if online == s.announced[userID] {
		return
	}
	if online {
		s.announced[userID] = true
	} else {
		delete(s.announced, userID)
	}
	r.onChange(userID, online)
}

func (r *Registry) track(connDelta int, userChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns += connDelta
	if userChanged {
		if connDelta > 0 {
			r.online++
		} else {
			r.online--
		}
	}
	metrics.Connections.Set(float64(r.conns))
	metrics.OnlineUsers.Set(float64(r.online))
}

func (r *Registry) IsPresent(userID int32) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// ConnectionsFor returns a snapshot of the user's handles.
func (r *Registry) ConnectionsFor(userID int32) []Conn {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := s.users[userID]
	out := make([]Conn, 0, len(handles))
	for _, c := range handles {
		out = append(out, c)
	}
	return out
}

func (r *Registry) OnlineUsers() []int32 {
	var out []int32
	for _, s := range r.shards {
		s.mu.RLock()
		for id := range s.users {
			out = append(out, id)
		}
		s.mu.RUnlock()
	}
	return out
}

// Each calls fn for every registered handle. fn must not call back into
// the registry.
func (r *Registry) Each(fn func(Conn)) {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, handles := range s.users {
			for _, c := range handles {
				fn(c)
			}
		}
		s.mu.RUnlock()
	}
}

// Count returns the number of online users and live connections.
func (r *Registry) Count() (users, conns int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online, r.conns
}

// Close drops every handle without firing offline callbacks and returns
// what was registered so the caller can close the transports.
func (r *Registry) Close() []Conn {
	var out []Conn
	for _, s := range r.shards {
		s.mu.Lock()
		for _, handles := range s.users {
			for _, c := range handles {
				out = append(out, c)
			}
		}
		s.users = make(map[int32]map[string]Conn)
		s.mu.Unlock()

		s.emitMu.Lock()
		s.announced = make(map[int32]bool)
		s.emitMu.Unlock()
	}

	r.mu.Lock()
	r.online, r.conns = 0, 0
	r.mu.Unlock()
	metrics.Connections.Set(0)
	metrics.OnlineUsers.Set(0)
	return out
}
