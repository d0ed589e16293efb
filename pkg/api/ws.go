// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luxfi/flashbid/pkg/log"
)

// Close codes sent before dropping a subscription that failed validation.
const (
	closeInvalidToken    = 4001
	closeInvalidCampaign = 4002
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers connect from the dashboard origin; token auth is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serialises writes to one websocket connection. Both the hub's event
// fan-out and the read loop's pong replies go through the same mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *wsConn) writeText(msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (w *wsConn) closeWith(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	w.conn.Close()
}

func (w *wsConn) Close() error { return w.conn.Close() }

// handleSubscribe upgrades the request, validates the ?token= credential and
// the campaign id, registers the connection with the hub, and then pumps the
// read side until the client goes away. Inbound "ping" text frames get a
// "pong" so proxies keep the connection alive.
func (s *Server) handleSubscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	wc := &wsConn{conn: conn}

	claims, err := s.auth.ParseToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		wc.closeWith(closeInvalidToken, "Invalid token")
		return
	}
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		wc.closeWith(closeInvalidCampaign, "Invalid campaign ID")
		return
	}

	room, user := campaignID.String(), claims.UserID.String()
	s.hub.Connect(room, user, wc)
	defer s.hub.Disconnect(room, user, wc)

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read ended",
					log.String("campaign", room), log.String("user", user), log.Error(err))
			}
			return
		}
		if kind == websocket.TextMessage && string(payload) == "ping" {
			if err := wc.writeText("pong"); err != nil {
				return
			}
		}
	}
}
