package main

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan RoomEvent
}

// roomHub fans store change notifications out to every websocket
// client watching one room. It owns no game state; the store document
// is the single source of truth and the hub only relays snapshots.
type roomHub struct {
	roomID string
	store  *RoomStore

	clients  map[*wsClient]bool
	register chan *wsClient
	unreg    chan *wsClient
	events   chan RoomEvent
	done     chan struct{}
}

func newRoomHub(roomID string, store *RoomStore, events chan RoomEvent) *roomHub {
	return &roomHub{
		roomID:   roomID,
		store:    store,
		clients:  make(map[*wsClient]bool),
		register: make(chan *wsClient),
		unreg:    make(chan *wsClient),
		events:   events,
		done:     make(chan struct{}),
	}
}

func (h *roomHub) run(cfg *Config, onStop func()) {
	defer close(h.done)
	defer onStop()

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

			// Send the current snapshot immediately so new clients
			// don't wait for the next change.
			if room, err := h.store.Get(h.roomID); err == nil {
				select {
				case c.send <- RoomEvent{Type: eventRoomState, Room: room}:
				default:
				}
			}

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ev, ok := <-h.events:
			if !ok {
				// Watch channel closed; room was deleted.
				h.closeAll()
				return
			}

			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}

			if ev.Type == eventRoomClosed {
				h.closeAll()
				logf(cfg, "ROOMS: Notified %s watchers of closure", h.roomID)
				return
			}
		}
	}
}

func (h *roomHub) closeAll() {
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

// hubManager holds one hub per watched room, created lazily on the
// first websocket connection and torn down when the room closes.
type hubManager struct {
	mu    sync.Mutex
	hubs  map[string]*roomHub
	store *RoomStore
}

func newHubManager(store *RoomStore) *hubManager {
	return &hubManager{
		hubs:  make(map[string]*roomHub),
		store: store,
	}
}

func (hm *hubManager) getHub(cfg *Config, roomID string) (*roomHub, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[roomID]; ok {
		return hub, nil
	}

	events, err := hm.store.Watch(roomID)
	if err != nil {
		return nil, err
	}

	hub := newRoomHub(roomID, hm.store, events)
	hm.hubs[roomID] = hub

	go hub.run(cfg, func() {
		hm.mu.Lock()
		if hm.hubs[roomID] == hub {
			delete(hm.hubs, roomID)
		}
		hm.mu.Unlock()
		hm.store.Unwatch(roomID, events)
	})

	return hub, nil
}

// serveRoomWS upgrades a connection and streams room snapshots until
// the client disconnects or the room closes.
func serveRoomWS(cfg *Config, hm *hubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		hub, err := hm.getHub(cfg, roomID)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade: %v", err)
			return
		}

		client := &wsClient{
			conn: conn,
			send: make(chan RoomEvent, 8),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

// readPump discards client frames; the socket is notification-only.
// Reading still runs so disconnects are noticed promptly.
func (c *wsClient) readPump(h *roomHub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
