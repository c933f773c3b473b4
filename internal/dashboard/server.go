// Package dashboard provides an optional WebSocket stream of event-bus
// traffic for debugging and monitoring the daemon.
//
// The server subscribes to a configured set of event types and forwards
// each publish as a JSON frame to every connected client. Nothing is
// buffered for late joiners; a client sees only what is published while
// it is connected.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/blendonl/mkanban-mobile/internal/events"
)

// Frame is one streamed event.
type Frame struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on.
	Port int

	// EventTypes to stream. Empty defaults to the file-change and
	// invalidation families.
	EventTypes []string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultEventTypes is streamed when no explicit set is configured.
var DefaultEventTypes = []string{
	events.FileChanged,
	events.BoardCacheInvalidated,
	events.NoteCacheInvalidated,
	events.ActionExecuted,
}

// Server streams bus events to WebSocket clients.
type Server struct {
	addr     string
	bus      *events.Bus
	types    []string
	listener net.Listener
	server   *http.Server
	logger   *log.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Frame
	subs      []*events.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server over the given bus.
func NewServer(bus *events.Bus, config Config) *Server {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if len(config.EventTypes) == 0 {
		config.EventTypes = DefaultEventTypes
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		bus:       bus,
		types:     config.EventTypes,
		logger:    config.Logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Frame, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the configured event types and begins serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	for _, eventType := range s.types {
		et := eventType
		s.subs = append(s.subs, s.bus.Subscribe(et, func(_ context.Context, payload any) error {
			s.Broadcast(Frame{Event: et, Timestamp: time.Now(), Payload: payload})
			return nil
		}))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop unsubscribes from the bus and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues a frame for delivery. Frames are dropped with a logged
// warning when the queue is full; the stream is observational, never a
// source of truth.
func (s *Server) Broadcast(frame Frame) {
	select {
	case s.broadcast <- frame:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: dashboard queue full, dropping frame")
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.broadcast:
			data, err := json.Marshal(frame)
			if err != nil {
				s.logger.Printf("Failed to marshal frame: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Dashboard client connected (total: %d)", count)
	go s.readLoop(conn)
}

// readLoop keeps the connection alive and notices disconnects. Client
// messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Dashboard client disconnected (total: %d)", count)
		return
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
