// Package gateway is the HTTP surface of the concierge: the public chat
// API and the authenticated operator console over WebSocket.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/logging"
	"github.com/soyeahso/gaia/internal/version"
)

// DefaultTurnTimeout bounds a single chat turn, model and tools included.
const DefaultTurnTimeout = 5 * time.Minute

const maxPayload = 4 << 20

// Concierge runs turns and manages sessions. *agent.Runner implements it.
type Concierge interface {
	Run(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
	Reset(ctx context.Context, sessionID string) error
	Sessions() []string
}

// Server is the gateway HTTP + WebSocket server.
type Server struct {
	cfg         config.GatewayConfig
	auth        ResolvedAuth
	log         *logging.Logger
	concierge   Concierge
	hooks       *hooks.Manager
	clients     *consoles
	methods     map[string]rpcMethod
	limiter     *authLimiter
	upgrader    websocket.Upgrader
	turnTimeout time.Duration
	eventSeq    atomic.Int64
	startedAt   time.Time
	httpServer  *http.Server
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks relays turn events to console clients.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithTurnTimeout overrides DefaultTurnTimeout.
func WithTurnTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

// New creates a gateway server in front of concierge.
func New(cfg config.GatewayConfig, concierge Concierge, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Auth),
		log:         log.Sub("gateway"),
		concierge:   concierge,
		limiter:     newAuthLimiter(),
		turnTimeout: DefaultTurnTimeout,
		startedAt:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.CORS.AllowedOrigins),
		},
	}
	s.clients = newConsoles(s.log.Sub("console"))

	for _, opt := range opts {
		opt(s)
	}

	s.methods = s.rpcMethods()
	s.relayHooks()
	return s
}

// checkWebSocketOrigin accepts non-browser clients and allowed origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// relayHooks forwards turn activity to console clients as chat.event frames.
func (s *Server) relayHooks() {
	if s.hooks == nil {
		return
	}
	relay := func(_ context.Context, p hooks.Payload) error {
		if s.clients.Count() == 0 {
			return nil
		}
		s.clients.broadcast(EventChat, ChatEvent{Kind: p.Event, Data: p.Data}, s.eventSeq.Add(1))
		return nil
	}
	for _, event := range []string{
		hooks.EventTurnReceived,
		hooks.EventToolExecuted,
		hooks.EventTurnCompleted,
		hooks.EventTurnFailed,
		hooks.EventSessionReset,
	} {
		s.hooks.On(event, "gateway", relay)
	}
}

// Methods lists the console RPC methods, sorted.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.methods))
}

// Handler returns the routed HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /reset_session", s.handleResetSession)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", handleNotFound)
	return withMiddleware(mux, s.log, s.cfg.CORS.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.turnTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("consoleAuth", s.auth.Mode).
		Bool("consoleEnabled", s.auth.Configured()).
		Msg("gateway listening")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.closeAll()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration { return time.Since(s.startedAt) }

func (s *Server) health(detailed bool) HealthResponse {
	h := HealthResponse{Status: "ok"}
	if detailed {
		h.Version = version.Version
		h.Clients = s.clients.Count()
		h.Sessions = len(s.concierge.Sessions())
		h.UptimeMs = s.Uptime().Milliseconds()
	}
	return h
}
