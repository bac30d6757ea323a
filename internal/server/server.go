package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jpalmerr/devicewatch/internal/auth"
	"github.com/jpalmerr/devicewatch/internal/inventory"
	"github.com/jpalmerr/devicewatch/internal/store"
)

const shutdownTimeout = 5 * time.Second

// DeviceChecker reconciles a single device on demand.
type DeviceChecker interface {
	CheckDevice(ctx context.Context, id int64) (inventory.Device, error)
}

// Authenticator registers users and issues and verifies tokens.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (auth.Session, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Verify(token string) (*auth.Claims, error)
}

// EventSource hands out subscriptions to status change events.
type EventSource interface {
	Subscribe() <-chan inventory.StatusChangeEvent
	Unsubscribe(ch <-chan inventory.StatusChangeEvent)
}

// Config holds the dependencies of a [Server].
type Config struct {
	Store   store.Store
	Checker DeviceChecker
	Auth    Authenticator
	Events  EventSource
	Port    int
	Logger  *slog.Logger
}

// Server handles HTTP requests for the devicewatch API.
type Server struct {
	store      store.Store
	checker    DeviceChecker
	auth       Authenticator
	events     EventSource
	port       int
	logger     *slog.Logger
	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates a new HTTP [Server]. It does not listen until
// [Server.Start] is called.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   cfg.Store,
		checker: cfg.Checker,
		auth:    cfg.Auth,
		events:  cfg.Events,
		port:    cfg.Port,
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	public := r.PathPrefix("/api/auth").Subrouter()
	public.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	public.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id:[0-9]+}/ping", s.handlePingDevice).Methods(http.MethodPost)
	api.HandleFunc("/routers", s.handleListRouters).Methods(http.MethodGet)
	api.HandleFunc("/printers", s.handleListPrinters).Methods(http.MethodGet)
	api.HandleFunc("/printers/{id:[0-9]+}/online", s.handleSetPrinterOnline).Methods(http.MethodPost)
	api.HandleFunc("/boxes", s.handleListBoxes).Methods(http.MethodGet)
	api.HandleFunc("/boxes/{id:[0-9]+}/power-status", s.handleSetBoxPower).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleSSE).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// keeps running until ctx is cancelled, then shuts down gracefully with a
// 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// bind first so port errors surface synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so stream handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}
