package realtime

import (
	"sync"

	"github.com/savanahq/savana/pkg/observability"
)

// Registry tracks live rooms and their membership. The registry-level lock
// guards only the room map; each room synchronizes its own membership, so
// traffic in one room never contends with another.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu      sync.RWMutex
	members map[string]Channel // channel id -> channel
	closed  bool               // set when the room is dropped from the map
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
	}
}

// Join adds the session's channel to its room, creating the room on first
// join. Idempotent if the channel is already a member.
func (r *Registry) Join(session *Session, ch Channel) {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[session.RoomID]
		if !ok {
			rm = &room{members: make(map[string]Channel)}
			r.rooms[session.RoomID] = rm
			observability.ActiveRooms.Inc()
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.closed {
			// Lost a race with the last member leaving; the room was
			// dropped from the map. Start over with a fresh room.
			rm.mu.Unlock()
			continue
		}
		rm.members[session.ChannelID] = ch
		rm.mu.Unlock()
		return
	}
}

// Leave removes the session's channel from its room. Idempotent; never
// errors. The room itself is dropped once its last member leaves.
func (r *Registry) Leave(session *Session) {
	r.mu.Lock()
	rm, ok := r.rooms[session.RoomID]
	if !ok {
		r.mu.Unlock()
		return
	}

	rm.mu.Lock()
	delete(rm.members, session.ChannelID)
	if len(rm.members) == 0 {
		rm.closed = true
		delete(r.rooms, session.RoomID)
		observability.ActiveRooms.Dec()
	}
	rm.mu.Unlock()
	r.mu.Unlock()
}

// MembersOf returns a snapshot of the room's channels. Mutations after the
// snapshot is taken are not reflected.
func (r *Registry) MembersOf(roomID string) []Channel {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	members := make([]Channel, 0, len(rm.members))
	for _, ch := range rm.members {
		members = append(members, ch)
	}
	return members
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
