/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"sync"
)

// Channel is one participant's outbound side. Send must not block; an
// error means the message was not queued.
type Channel interface {
	Send(msg Outbound) error
	Close() error
}

type room struct {
	mu      sync.Mutex
	members []Channel
}

// Registry maps room keys to the channels attached to them. The
// coordinator keys rooms by session id, because codes are reused once a
// game finishes. Rooms are created on first join and dropped once empty.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
	}
}

func (r *Registry) Join(key string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		rm = &room{}
		r.rooms[key] = rm
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, m := range rm.members {
		if m == ch {
			return
		}
	}
	rm.members = append(rm.members, ch)
}

// Leave removes ch from key and reports whether it was a member.
func (r *Registry) Leave(key string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	removed := false
	kept := rm.members[:0]
	for _, m := range rm.members {
		if m == ch {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	clear(rm.members[len(kept):])
	rm.members = kept

	if len(rm.members) == 0 {
		delete(r.rooms, key)
	}

	return removed
}

// Broadcast offers msg once to every member of key in registration
// order. Members that fail to accept it are dropped and closed; the rest
// still receive it. It returns the number of successful deliveries.
func (r *Registry) Broadcast(key string, msg Outbound) int {
	r.mu.Lock()
	rm, ok := r.rooms[key]
	r.mu.Unlock()

	if !ok {
		return 0
	}

	var failed []Channel
	delivered := 0

	rm.mu.Lock()
	kept := rm.members[:0]
	for _, m := range rm.members {
		if err := m.Send(msg); err != nil {
			failed = append(failed, m)
			continue
		}
		delivered++
		kept = append(kept, m)
	}
	clear(rm.members[len(kept):])
	rm.members = kept
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	for _, m := range failed {
		_ = m.Close()
	}

	if empty {
		r.prune(key, rm)
	}

	return delivered
}

func (r *Registry) prune(key string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[key] != rm {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if len(rm.members) == 0 {
		delete(r.rooms, key)
	}
}

// Members returns the number of channels attached to key.
func (r *Registry) Members(key string) int {
	r.mu.Lock()
	rm, ok := r.rooms[key]
	r.mu.Unlock()

	if !ok {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	return len(rm.members)
}

// Rooms returns the number of rooms with at least one channel.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// CloseAll closes and forgets every channel of key.
func (r *Registry) CloseAll(key string) {
	r.mu.Lock()
	rm, ok := r.rooms[key]
	delete(r.rooms, key)
	r.mu.Unlock()

	if !ok {
		return
	}

	rm.mu.Lock()
	members := rm.members
	rm.members = nil
	rm.mu.Unlock()

	for _, m := range members {
		_ = m.Close()
	}
}
