package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pefman/battle-sim/internal/game"
	"github.com/pefman/battle-sim/internal/models"
)

// wsMsg is the envelope pushed to watchers.
type wsMsg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Message types sent by the hub.
const (
	MsgState   = "state"
	MsgDeleted = "deleted"
)

type subscriber struct {
	mu      sync.Mutex // serializes writes; gorilla allows one concurrent writer
	conn    *websocket.Conn
	version int // battle log length last sent
}

// Hub fans battle updates out to websocket watchers. It implements
// battle.Observer.
type Hub struct {
	mu           sync.Mutex
	subs         map[string]map[*subscriber]struct{}
	upgrader     websocket.Upgrader
	attacks      *game.Registry
	writeTimeout time.Duration
}

// DefaultWriteTimeout bounds each websocket write when NewHub is given none.
const DefaultWriteTimeout = 5 * time.Second

// NewHub returns a hub whose writes time out after writeTimeout. A
// non-positive writeTimeout uses DefaultWriteTimeout so a stalled watcher
// cannot block attackers.
func NewHub(attacks *game.Registry, writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{
		subs:         map[string]map[*subscriber]struct{}{},
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		attacks:      attacks,
		writeTimeout: writeTimeout,
	}
}

// Serve upgrades the request and streams state for battle id. current is
// called once after registration to send the opening state.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id string, current func() (BattleView, error)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Printf("ws: upgrade battle=%s: %v", id, err)
		return
	}
	sub := &subscriber{conn: conn}
	log.Printf("ws: connect battle=%s from=%s", id, r.RemoteAddr)

	sub.mu.Lock()
	h.add(id, sub)
	v, err := current()
	if err == nil {
		h.write(sub, wsMsg{Type: MsgState, Data: v}, len(v.BattleLog))
	}
	sub.mu.Unlock()
	if err != nil {
		h.drop(id, sub)
		return
	}
	go h.reader(id, sub)
}

// WriteTimeout is the deadline applied to each write.
func (h *Hub) WriteTimeout() time.Duration { return h.writeTimeout }

// Watchers reports how many connections are watching battle id.
func (h *Hub) Watchers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (h *Hub) BattleStarted(string, models.BattleSnapshot) {}

func (h *Hub) HitApplied(hit models.Hit, snap models.BattleSnapshot) {
	v := newBattleView(hit.BattleID, snap, h.attacks.PlayerAttacks())
	for _, sub := range h.list(hit.BattleID) {
		sub.mu.Lock()
		if len(v.BattleLog) > sub.version {
			h.write(sub, wsMsg{Type: MsgState, Data: v}, len(v.BattleLog))
		}
		sub.mu.Unlock()
	}
}

// BattleDeleted notifies and disconnects every watcher of id.
func (h *Hub) BattleDeleted(id string) {
	for _, sub := range h.list(id) {
		sub.mu.Lock()
		h.write(sub, wsMsg{Type: MsgDeleted, Data: map[string]string{"battleId": id}}, sub.version)
		sub.mu.Unlock()
		h.drop(id, sub)
	}
}

// write sends m and records version. Caller holds sub.mu.
func (h *Hub) write(sub *subscriber, m wsMsg, version int) {
	_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := sub.conn.WriteJSON(m); err != nil {
		log.Printf("ws: write error: %v", err)
		return
	}
	sub.version = version
}

// reader drains client frames until the connection closes.
func (h *Hub) reader(id string, sub *subscriber) {
	defer func() {
		h.drop(id, sub)
		log.Printf("ws: closed battle=%s", id)
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(id string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[id] == nil {
		h.subs[id] = map[*subscriber]struct{}{}
	}
	h.subs[id][sub] = struct{}{}
}

func (h *Hub) drop(id string, sub *subscriber) {
	h.mu.Lock()
	set := h.subs[id]
	_, ok := set[sub]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		_ = sub.conn.Close()
	}
}

func (h *Hub) list(id string) []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*subscriber, 0, len(h.subs[id]))
	for sub := range h.subs[id] {
		out = append(out, sub)
	}
	return out
}
