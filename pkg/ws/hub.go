// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ws maintains per-campaign rooms of push connections and the
// periodic leaderboard broadcast that feeds them.
package ws

import (
	"sync"
	"sync/atomic"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
)

// Conn is the write side of a push connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// client serialises writes; gorilla connections allow one concurrent writer.
type client struct {
	mu   sync.Mutex
	conn Conn
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub maps campaign id to the set of connected subscribers. One connection
// per (campaign, user); a reconnect replaces and closes the previous one.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*client

	log log.Logger
	m   *metric.Metrics
}

// NewHub builds an empty hub. metrics may be nil in tests.
func NewHub(logger log.Logger, m *metric.Metrics) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*client),
		log:   logger,
		m:     m,
	}
}

// Connect registers a connection, displacing any previous connection for the
// same (campaign, user) pair.
func (h *Hub) Connect(campaignID, userID string, conn Conn) {
	var displaced *client

	h.mu.Lock()
	room, ok := h.rooms[campaignID]
	if !ok {
		room = make(map[string]*client)
		h.rooms[campaignID] = room
	}
	if prev, ok := room[userID]; ok {
		displaced = prev
	}
	room[userID] = &client{conn: conn}
	h.mu.Unlock()

	if displaced != nil {
		_ = displaced.conn.Close()
	} else if h.m != nil {
		h.m.WSConnections.Inc()
	}
	h.log.Debug("subscriber connected",
		log.String("campaign", campaignID), log.String("user", userID))
}

// Disconnect removes the user's connection. The connection being removed must
// match the registered one, so a stale goroutine cannot evict a fresh
// reconnect.
func (h *Hub) Disconnect(campaignID, userID string, conn Conn) {
	h.mu.Lock()
	room, ok := h.rooms[campaignID]
	if !ok {
		h.mu.Unlock()
		return
	}
	current, ok := room[userID]
	if !ok || (conn != nil && current.conn != conn) {
		h.mu.Unlock()
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(h.rooms, campaignID)
	}
	h.mu.Unlock()

	_ = current.conn.Close()
	if h.m != nil {
		h.m.WSConnections.Dec()
	}
	h.log.Debug("subscriber disconnected",
		log.String("campaign", campaignID), log.String("user", userID))
}

// SendToUser delivers one event to one subscriber, best-effort. A failed
// write drops the connection.
func (h *Hub) SendToUser(campaignID, userID string, event any) bool {
	h.mu.RLock()
	var c *client
	if room, ok := h.rooms[campaignID]; ok {
		c = room[userID]
	}
	h.mu.RUnlock()

	if c == nil {
		return false
	}
	if err := c.send(event); err != nil {
		h.log.Warn("push send failed",
			log.String("campaign", campaignID), log.String("user", userID), log.Error(err))
		h.Disconnect(campaignID, userID, c.conn)
		return false
	}
	return true
}

// Broadcast fans an event out to every subscriber of a campaign room
// concurrently and returns the number of successful sends. Failed
// connections are dropped.
func (h *Hub) Broadcast(campaignID string, event any) int {
	h.mu.RLock()
	room := h.rooms[campaignID]
	snapshot := make(map[string]*client, len(room))
	for userID, c := range room {
		snapshot[userID] = c
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	var sent atomic.Int64
	for userID, c := range snapshot {
		wg.Add(1)
		go func(userID string, c *client) {
			defer wg.Done()
			if err := c.send(event); err != nil {
				h.log.Warn("broadcast send failed",
					log.String("campaign", campaignID), log.String("user", userID), log.Error(err))
				h.Disconnect(campaignID, userID, c.conn)
				return
			}
			sent.Add(1)
		}(userID, c)
	}
	wg.Wait()
	return int(sent.Load())
}

// ActiveCampaigns lists campaign ids with at least one subscriber.
func (h *Hub) ActiveCampaigns() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// ConnectedUsers lists the user ids subscribed to one campaign.
func (h *Hub) ConnectedUsers(campaignID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[campaignID]
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}

// RoomSize returns the subscriber count for one campaign.
func (h *Hub) RoomSize(campaignID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[campaignID])
}

// CloseAll drops every connection, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]*client)
	h.mu.Unlock()

	for _, room := range rooms {
		for _, c := range room {
			_ = c.conn.Close()
			if h.m != nil {
				h.m.WSConnections.Dec()
			}
		}
	}
}
