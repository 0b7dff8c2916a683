package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// TokenVerifier resolves a client token to a user id. Token issuing
// lives outside this service.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Server struct {
	verifier TokenVerifier
	hub      *Hub
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

func NewServer(verifier TokenVerifier, hub *Hub, log *slog.Logger) *Server {
	return &Server{
		verifier: verifier,
		hub:      hub,
		log:      log,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.Verify(requestToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(s.hub, ws, userID)
	if err := conn.Handle(r.Context()); err != nil {
		s.log.Debug("connection closed", "userId", userID, "error", err)
	}
}

// requestToken accepts the token as a bearer header or, for browser
// websocket clients that cannot set headers, a query parameter.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
