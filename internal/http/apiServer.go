package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/alirezanaghdi47/messenger-backend/internal/api"
	"github.com/alirezanaghdi47/messenger-backend/internal/metrics"
	"github.com/alirezanaghdi47/messenger-backend/internal/ws"
)

type APIServer struct {
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewAPIServer(handlers *api.API, wsServer *ws.Server, addr string, log *slog.Logger) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/users", handlers.RequireAuth(handlers.ListUsersHandler))

	mux.HandleFunc("GET /api/chats", handlers.RequireAuth(handlers.ListChatsHandler))
	mux.HandleFunc("GET /api/chats/{id}", handlers.RequireAuth(handlers.GetChatHandler))
	mux.HandleFunc("POST /api/chats/direct", handlers.RequireAuth(handlers.CreateDirectChatHandler))
	mux.HandleFunc("POST /api/chats/group", handlers.RequireAuth(handlers.CreateGroupChatHandler))
	mux.HandleFunc("POST /api/chats/{id}/join", handlers.RequireAuth(handlers.JoinChatHandler))
	mux.HandleFunc("POST /api/chats/{id}/leave", handlers.RequireAuth(handlers.LeaveChatHandler))
	mux.HandleFunc("DELETE /api/chats/{id}", handlers.RequireAuth(handlers.DeleteChatHandler))

	mux.HandleFunc("GET /api/chats/{id}/messages", handlers.RequireAuth(handlers.ListMessagesHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages/text", handlers.RequireAuth(handlers.AddTextMessageHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages/location", handlers.RequireAuth(handlers.AddLocationMessageHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages/file", handlers.RequireAuth(handlers.AddFileMessageHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages/image", handlers.RequireAuth(handlers.AddImageMessageHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages/audio", handlers.RequireAuth(handlers.AddAudioMessageHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages/video", handlers.RequireAuth(handlers.AddVideoMessageHandler))
	mux.HandleFunc("DELETE /api/messages/{id}", handlers.RequireAuth(handlers.DeleteMessageHandler))

	mux.HandleFunc("GET /api/media/{area}/{name}", handlers.GetMediaHandler)

	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/events", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		log: log,
	}
}

func (s *APIServer) Start() error {
	s.log.Info("server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
