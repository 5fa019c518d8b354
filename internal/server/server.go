// Package server exposes a gateway.Gateway over HTTP and WebSocket so that
// several devices can share one session store.
//
// REST routes carry the document operations; each subscription is a
// WebSocket that receives a snapshot message after every change and a
// final error message when the session is deleted or access is lost.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/pawsitive/pawsync/internal/gateway"
)

// MessageType defines the type of subscription message
type MessageType string

const (
	// MessageTypeSnapshot carries the full session document.
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypeError carries a classified error. It is the last message
	// on a connection.
	MessageTypeError MessageType = "error"
)

// Message represents one WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of error messages and REST error bodies.
type ErrorData struct {
	Kind    gateway.Kind `json:"kind"`
	Message string       `json:"message"`
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default ":8080"; ":0" picks a free port)
	Addr string

	// Token, when set, is required as a bearer token on every /v1 route.
	// WebSocket clients that cannot set headers may pass ?token= instead.
	Token string

	// AllowedOrigins for CORS and WebSocket origin checks (default all).
	AllowedOrigins []string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		Logger:         log.New(os.Stderr, "[server] ", log.LstdFlags),
	}
}

// client is one live subscription socket.
type client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
}

// Server manages the HTTP listener and subscription sockets.
type Server struct {
	gw       gateway.Gateway
	config   *Config
	listener net.Listener
	server   *http.Server
	router   *gin.Engine

	// WebSocket client management
	clients   map[string]*client
	clientsMu sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a server over gw.
func NewServer(gw gateway.Gateway, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		gw:      gw,
		config:  config,
		clients: make(map[string]*client),
		ctx:     ctx,
		cancel:  cancel,
		logger:  config.Logger,
	}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server and closes every subscription.
func (s *Server) Stop() error {
	s.logger.Println("Stopping server")

	s.cancel()

	s.clientsMu.Lock()
	for id, c := range s.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Server stopped")
	return nil
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ClientCount returns the current number of subscription sockets
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) addClient(c *client) int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c.id] = c
	return len(s.clients)
}

// removeClient drops a client and reports whether it was still registered.
func (s *Server) removeClient(id string) (bool, int) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	return ok, len(s.clients)
}
