package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/nothanks/internal/arena"
	"github.com/lox/nothanks/internal/room"
)

const shutdownTimeout = 5 * time.Second

// Server accepts websocket clients for human rooms on /ws and for bots on
// /bots, and serves the leaderboard and static assets over plain HTTP.
type Server struct {
	upgrader  websocket.Upgrader
	arena     *arena.Arena
	rooms     *room.Directory
	staticDir string
	logger    *log.Logger

	mu          sync.Mutex
	connections map[*Connection]struct{}
	httpServer  *http.Server
}

// New creates a server over an arena and a room directory. staticDir may be
// empty, in which case no pages are served.
func New(logger *log.Logger, a *arena.Arena, rooms *room.Directory, staticDir string) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		arena:       a,
		rooms:       rooms,
		staticDir:   staticDir,
		logger:      logger.WithPrefix("server"),
		connections: make(map[*Connection]struct{}),
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleRoomSocket)
	mux.HandleFunc("/bots", s.handleBots)
	mux.HandleFunc("GET /api/bots/ratings", s.handleRatings)
	mux.HandleFunc("/health", s.handleHealth)
	if s.staticDir != "" {
		mux.HandleFunc("/room/{roomID}", s.servePage("index.html"))
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the listener, closes every client and cancels all arena
// timers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.arena.Close()
	s.logger.Info("Server stopped", "connections", len(conns))
	return err
}

// Connections reports the number of live websocket clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	s.accept(w, r, &roomHandler{rooms: s.rooms, logger: s.logger})
}

func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.accept(w, r, &botHandler{arena: s.arena, logger: s.logger})
		return
	}
	if s.staticDir == "" {
		http.NotFound(w, r)
		return
	}
	s.servePage("bots.html")(w, r)
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request, h handler) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := NewConnection(ws, h, s.logger)
	s.mu.Lock()
	s.connections[c] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Debug("Client connected", "path", r.URL.Path, "total", total)

	c.Start()
	go func() {
		<-c.Done()
		s.mu.Lock()
		delete(s.connections, c)
		total := len(s.connections)
		s.mu.Unlock()
		s.logger.Debug("Client disconnected", "path", r.URL.Path, "total", total)
	}()
}

func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.arena.Leaderboard()); err != nil {
		s.logger.Error("Failed to encode leaderboard", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) servePage(name string) http.HandlerFunc {
	path := filepath.Join(s.staticDir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
