package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/antonymartiz/PrivateVoting/api"
	"github.com/antonymartiz/PrivateVoting/log"
)

// shutdownTimeout bounds the graceful shutdown of the API server.
const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	backend api.Backend
	api     *api.API
	mu      sync.Mutex
	cancel  context.CancelFunc
	host    string
	port    int
	timeout time.Duration
}

// NewAPI creates a new APIService instance. The request timeout must be
// longer than the finalizer timeout.
func NewAPI(backend api.Backend, host string, port int, requestTimeout time.Duration) *APIService {
	return &APIService{
		backend: backend,
		host:    host,
		port:    port,
		timeout: requestTimeout,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	_, as.cancel = context.WithCancel(ctx)

	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:           as.host,
		Port:           as.port,
		Backend:        as.backend,
		RequestTimeout: as.timeout,
	})
	if err != nil {
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
	if as.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := as.api.Stop(ctx); err != nil {
			log.Warnw("API server shutdown", "error", err.Error())
		}
		as.api = nil
	}
}

// HostPort returns the host and port of the API server. When started with
// port 0 it returns the port actually bound.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.api != nil {
		if addr, ok := as.api.Addr().(*net.TCPAddr); ok {
			return as.host, addr.Port
		}
	}
	return as.host, as.port
}
