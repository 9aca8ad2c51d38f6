// Package rooms tracks which live connections belong to which faculty room
// and private channel.
package rooms

import (
	"sync"
)

// Member is a live connection that can be placed in rooms.
type Member interface {
	ID() string
	Deliver(payload []byte) error
}

type room struct {
	mu      sync.RWMutex
	members map[string]Member
}

func (rm *room) snapshot(excludeID string) []Member {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]Member, 0, len(rm.members))
	for id, m := range rm.members {
		if id == excludeID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Registry is the process-scoped membership table. Membership changes are
// serialised on the registry lock; each room additionally carries its own
// lock so broadcasts only contend with changes to the same room.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{} // member id -> room keys
	faculty     map[string]string              // member id -> faculty name
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
		faculty:     make(map[string]string),
	}
}

// JoinFaculty places m in the named faculty room and returns the faculty it
// was in before, if any. A connection belongs to at most one faculty room;
// the previous one is left first.
func (r *Registry) JoinFaculty(m Member, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.faculty[m.ID()]
	if previous != "" && previous != name {
		r.leaveLocked(FacultyKey(previous), m.ID())
	}
	r.joinLocked(FacultyKey(name), m)
	r.faculty[m.ID()] = name
	return previous
}

// LeaveFaculty is a no-op when m is not in the room.
func (r *Registry) LeaveFaculty(m Member, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.faculty[m.ID()] != name {
		return
	}
	r.leaveLocked(FacultyKey(name), m.ID())
	delete(r.faculty, m.ID())
}

func (r *Registry) JoinPrivate(m Member, self, peer int64) string {
	key := ChannelKey(self, peer)
	r.mu.Lock()
	r.joinLocked(key, m)
	r.mu.Unlock()
	return key
}

func (r *Registry) LeavePrivate(m Member, self, peer int64) {
	r.mu.Lock()
	r.leaveLocked(ChannelKey(self, peer), m.ID())
	r.mu.Unlock()
}

// Remove drops m from every room. Called when a connection closes.
func (r *Registry) Remove(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.memberships[m.ID()] {
		r.leaveLocked(key, m.ID())
	}
	delete(r.memberships, m.ID())
	delete(r.faculty, m.ID())
}

// Broadcast delivers payload to every member of key except excludeID and
// returns how many deliveries were accepted. Members are snapshotted under
// the room lock and written to outside of it.
func (r *Registry) Broadcast(key string, payload []byte, excludeID string) int {
	r.mu.RLock()
	rm := r.rooms[key]
	r.mu.RUnlock()
	if rm == nil {
		return 0
	}

	delivered := 0
	for _, m := range rm.snapshot(excludeID) {
		if err := m.Deliver(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) Members(key string) []Member {
	r.mu.RLock()
	rm := r.rooms[key]
	r.mu.RUnlock()
	if rm == nil {
		return nil
	}
	return rm.snapshot("")
}

func (r *Registry) Count(key string) int {
	r.mu.RLock()
	rm := r.rooms[key]
	r.mu.RUnlock()
	if rm == nil {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// Faculty returns the faculty room memberID is currently in, or "".
func (r *Registry) Faculty(memberID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.faculty[memberID]
}

// ActiveRooms counts rooms with at least one member.
func (r *Registry) ActiveRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) joinLocked(key string, m Member) {
	rm := r.rooms[key]
	if rm == nil {
		rm = &room{members: make(map[string]Member)}
		r.rooms[key] = rm
	}
	rm.mu.Lock()
	rm.members[m.ID()] = m
	rm.mu.Unlock()

	keys := r.memberships[m.ID()]
	if keys == nil {
		keys = make(map[string]struct{})
		r.memberships[m.ID()] = keys
	}
	keys[key] = struct{}{}
}

func (r *Registry) leaveLocked(key, memberID string) {
	if rm := r.rooms[key]; rm != nil {
		rm.mu.Lock()
		delete(rm.members, memberID)
		empty := len(rm.members) == 0
		rm.mu.Unlock()
		if empty {
			delete(r.rooms, key)
		}
	}
	if keys, ok := r.memberships[memberID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.memberships, memberID)
		}
	}
}
