package main

import (
	"sync"
	"time"
)

// RoomEvent is delivered to watchers after every committed change.
type RoomEvent struct {
	Type string `json:"type"` // "room_state" or "room_closed"
	Room *Room  `json:"room,omitempty"`
}

const (
	eventRoomState  = "room_state"
	eventRoomClosed = "room_closed"
)

type roomEntry struct {
	room       *Room
	version    uint64
	lastActive time.Time
}

// RoomStore holds room documents keyed by room ID. All mutations go
// through Update, which applies the caller's transition function
// against a private copy and commits it with a compare-and-swap on the
// entry version, so one logical transition either lands whole or not
// at all. Watchers receive a snapshot after each commit.
type RoomStore struct {
	mu         sync.RWMutex
	rooms      map[string]*roomEntry
	watchers   map[string]map[chan RoomEvent]struct{}
	maxRetries int
}

func newRoomStore(maxRetries int) *RoomStore {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RoomStore{
		rooms:      make(map[string]*roomEntry),
		watchers:   make(map[string]map[chan RoomEvent]struct{}),
		maxRetries: maxRetries,
	}
}

// Get returns a snapshot of the room, or ErrRoomNotFound.
func (s *RoomStore) Get(id string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return entry.room.clone(), nil
}

// Insert stores a brand new room document. It reports false without
// writing anything when the ID is already taken, so two concurrent
// creates drawing the same ID can never replace each other.
func (s *RoomStore) Insert(room *Room) bool {
	s.mu.Lock()
	if _, exists := s.rooms[room.ID]; exists {
		s.mu.Unlock()
		return false
	}
	s.rooms[room.ID] = &roomEntry{
		room:       room.clone(),
		version:    1,
		lastActive: time.Now(),
	}
	s.mu.Unlock()

	s.notify(room.ID, RoomEvent{Type: eventRoomState, Room: room.clone()})
	return true
}

// Update applies fn to a copy of the room and commits it if the stored
// version is unchanged, retrying on contention. Errors returned by fn
// abort the transition without retrying; exhausted retries surface as
// ErrStoreConflict. The committed snapshot is returned.
func (s *RoomStore) Update(id string, fn func(*Room) error) (*Room, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		s.mu.RLock()
		entry, ok := s.rooms[id]
		if !ok {
			s.mu.RUnlock()
			return nil, ErrRoomNotFound
		}
		room := entry.room.clone()
		version := entry.version
		s.mu.RUnlock()

		if err := fn(room); err != nil {
			return nil, err
		}

		if s.commit(id, version, room) {
			s.notify(id, RoomEvent{Type: eventRoomState, Room: room.clone()})
			return room, nil
		}
	}

	return nil, ErrStoreConflict
}

func (s *RoomStore) commit(id string, version uint64, room *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[id]
	if !ok || entry.version != version {
		return false
	}

	entry.room = room.clone()
	entry.version++
	entry.lastActive = time.Now()
	return true
}

// Delete removes a room and tears down its watch feeds. Each watcher
// gets a best-effort closure event, then its channel is closed, so
// consumers notice the shutdown even when their buffer was full.
func (s *RoomStore) Delete(id string) {
	s.mu.Lock()
	_, ok := s.rooms[id]
	delete(s.rooms, id)
	watchers := s.watchers[id]
	delete(s.watchers, id)
	s.mu.Unlock()

	if !ok {
		return
	}

	for ch := range watchers {
		select {
		case ch <- RoomEvent{Type: eventRoomClosed}:
		default:
		}
		close(ch)
	}
}

// Watch registers a change feed for one room. The channel is buffered;
// slow consumers drop events rather than block commits.
func (s *RoomStore) Watch(id string) (chan RoomEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return nil, ErrRoomNotFound
	}

	ch := make(chan RoomEvent, 8)
	if s.watchers[id] == nil {
		s.watchers[id] = make(map[chan RoomEvent]struct{})
	}
	s.watchers[id][ch] = struct{}{}
	return ch, nil
}

// Unwatch removes a previously registered change feed.
func (s *RoomStore) Unwatch(id string, ch chan RoomEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.watchers[id]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(s.watchers, id)
		}
	}
}

func (s *RoomStore) notify(id string, ev RoomEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.watchers[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// reaperLoop periodically deletes rooms that have been idle longer
// than idleTimeout.
func (s *RoomStore) reaperLoop(cfg *Config, idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-idleTimeout)

		s.mu.RLock()
		stale := make([]string, 0)
		for id, entry := range s.rooms {
			if entry.lastActive.Before(cutoff) {
				stale = append(stale, id)
			}
		}
		s.mu.RUnlock()

		for _, id := range stale {
			s.Delete(id)
			logf(cfg, "ROOMS: Reaped idle room %s", id)
		}
	}
}
