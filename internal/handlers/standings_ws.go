// internal/handlers/standings_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/middleware"
	"github.com/jason-s-yu/rally/internal/models"
)

const wsWriteTimeout = 5 * time.Second

type standingsMessage struct {
	Type        string                    `json:"type"`
	SessionID   uuid.UUID                 `json:"session_id"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

// standingsWS streams the session leaderboard: one snapshot on connect, then a fresh
// board after every accepted score. The feed is server to client only.
func (s *Server) standingsWS(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// subscribe before taking the snapshot so no update falls between the two
	sub := s.Hub.Subscribe(sessionID)
	defer s.Hub.Unsubscribe(sub)

	board, err := s.Coordinator.Standings(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.wsOrigins(),
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	remote, path := r.RemoteAddr, r.URL.Path
	middleware.LogWebSocketConnect(s.Logger, remote, path)

	ctx := c.CloseRead(r.Context())
	err = s.writeStandings(ctx, c, sessionID, board)
	for err == nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case next, ok := <-sub.OutChan:
			if !ok {
				c.Close(SubscriptionEndedError, "subscription ended")
				err = errors.New("subscription ended")
				continue
			}
			err = s.writeStandings(ctx, c, sessionID, next)
		}
	}

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
		err = nil
	}
	middleware.LogWebSocketDisconnect(s.Logger, remote, path, err)
}

func (s *Server) writeStandings(ctx context.Context, c *websocket.Conn, sessionID uuid.UUID, board []models.LeaderboardEntry) error {
	if board == nil {
		board = []models.LeaderboardEntry{}
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, standingsMessage{
		Type:        "standings",
		SessionID:   sessionID,
		Leaderboard: board,
	})
}

// wsOrigins converts the CORS origins to the host patterns websocket.Accept expects.
func (s *Server) wsOrigins() []string {
	if len(s.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	hosts := make([]string, 0, len(s.AllowedOrigins))
	for _, o := range s.AllowedOrigins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		hosts = append(hosts, o)
	}
	return hosts
}
