// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_fusion/internal/config"
)

const wsWriteTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from the device itself
	},
}

// Hub fans orientation messages out to websocket clients and keeps the
// latest one for the REST endpoint and for new subscribers.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan OrientationMessage
	nextID   int
	last     OrientationMessage
	haveLast bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan OrientationMessage)}
}

// Subscribe returns a channel that receives every published message. Slow
// subscribers miss messages rather than block Publish.
func (h *Hub) Subscribe(buffer int) (int, <-chan OrientationMessage) {
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan OrientationMessage, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.haveLast {
		ch <- h.last
	}
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(m OrientationMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = m
	h.haveLast = true
	for _, ch := range h.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// Last returns the latest message, if any.
func (h *Hub) Last() (OrientationMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.haveLast
}

// Handler serves /api/orientation, /ws and the static dashboard under
// staticDir (skipped when empty).
func (h *Hub) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		m, ok := h.Last()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m); err != nil {
			log.Printf("json encode error: %v", err)
		}
	})
	mux.HandleFunc("/ws", h.serveWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id, ch := h.Subscribe(8)
	defer h.Unsubscribe(id)

	// the reader only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(m); err != nil {
				log.Debugf("websocket write error: %v", err)
				return
			}
		}
	}
}

// RunWeb subscribes to the orientation topic and serves it over HTTP.
func RunWeb() error {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	hub := NewHub()
	if err := subscribeJSON(client, cfg.TopicOrientation, hub.Publish); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, hub.Handler("web"))
}
