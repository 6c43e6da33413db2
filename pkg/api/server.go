package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dixieflatline76/facecrop/asset"
	"github.com/dixieflatline76/facecrop/pkg/facecrop"
	"github.com/dixieflatline76/facecrop/util"
	"github.com/dixieflatline76/facecrop/util/log"
	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

const writeWait = 5 * time.Second

// Processor runs uploads and reports status.
type Processor interface {
	Submit(ctx context.Context, data []byte) (facecrop.Result, error)
	Status() (facecrop.Status, string)
	ModelReady() bool
	Subscribe(l facecrop.Listener) func()
}

// Options configures the server.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	RateLimit      float64 // Crops per second, 0 disables limiting
	RateBurst      int
	MaxConnections int // 0 means unlimited
	Version        string
}

// Server represents the Local REST/WebSocket server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	opts       Options

	// WebSocket management
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	stopping  *util.SafeFlag

	processor   Processor
	unsubscribe func()
	limiter     *rate.Limiter
	assets      *asset.Manager
}

// NewServer creates a new API server and subscribes it to the processor's status changes.
func NewServer(p Processor, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	s := &Server{
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		opts:      opts,
		clients:   make(map[*websocket.Conn]bool),
		stopping:  util.NewSafeBool(),
		processor: p,
		limiter:   rate.NewLimiter(limit, max(opts.RateBurst, 1)),
		assets:    asset.NewManager(),
	}
	s.unsubscribe = p.Subscribe(func(status facecrop.Status, message string) {
		s.BroadcastStatus(status, message)
	})
	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/crop", s.enableCORS(s.rateLimit(s.handleCrop)))
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// rateLimit rejects requests beyond the configured rate with 429.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests, slow down.")
			return
		}
		next(w, r)
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves on l, capped at MaxConnections concurrent connections.
func (s *Server) Serve(l net.Listener) error {
	if s.opts.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.opts.MaxConnections)
	}
	log.Printf("Serving on http://%s", l.Addr())
	// This is blocking
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the server and disconnects websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	if !s.stopping.Set(true) {
		return nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// statusMessage is the websocket broadcast payload.
type statusMessage struct {
	Type    string          `json:"type"`
	Status  facecrop.Status `json:"status"`
	Message string          `json:"message"`
}

// BroadcastStatus sends a "status" message to all connected clients.
func (s *Server) BroadcastStatus(status facecrop.Status, message string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	msg := statusMessage{Type: "status", Status: status, Message: message}
	for client := range s.clients {
		if err := writeJSON(client, msg); err != nil {
			log.Printf("Failed to broadcast to client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
