package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultRequestTimeout bounds the handling of a request. It must be longer
// than the finalizer timeout, so a slow finalizer is reported by the
// finalization handler itself.
const DefaultRequestTimeout = 4 * time.Minute

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host    string
	Port    int
	Backend Backend
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// API type represents the API HTTP server.
type API struct {
	router   *chi.Mux
	backend  Backend
	timeout  time.Duration
	server   *http.Server
	listener net.Listener
}

// New creates a new API instance with the given configuration and starts
// serving. The listener is opened before returning, so a port of 0 picks a
// free port that Addr reports.
func New(conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	a.listener, err = net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("Starting API server", "address", a.listener.Addr().String())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// newAPI builds the router without serving it.
func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Backend == nil {
		return nil, fmt.Errorf("missing tally backend")
	}
	a := &API{
		backend: conf.Backend,
		timeout: conf.RequestTimeout,
	}
	if a.timeout <= 0 {
		a.timeout = DefaultRequestTimeout
	}
	a.initRouter()
	return a, nil
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.listener.Addr()
}

// Stop gracefully shuts the server down.
func (a *API) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", HealthEndpoint, "method", "GET")
	a.router.Get(HealthEndpoint, a.health)
	log.Infow("register handler", "endpoint", ConfigEndpoint, "method", "GET")
	a.router.Get(ConfigEndpoint, a.config)
	log.Infow("register handler", "endpoint", PublicKeyEndpoint, "method", "GET")
	a.router.Get(PublicKeyEndpoint, a.publicKey)
	log.Infow("register handler", "endpoint", FinalizeEndpoint, "method", "POST")
	a.router.Post(FinalizeEndpoint, a.aggregateAndFinalize)
	log.Infow("register handler", "endpoint", TalliesEndpoint, "method", "GET")
	a.router.Get(TalliesEndpoint, a.tallies)
	log.Infow("register handler", "endpoint", TallyEndpoint, "method", "GET")
	a.router.Get(TallyEndpoint, a.tally)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(a.timeout))
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.With(r.URL.Path).Write(w)
	})

	// Register the API handlers
	a.registerHandlers()
}
