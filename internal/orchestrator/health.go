package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// HealthServer provides the /healthz and /metrics endpoints.
type HealthServer struct {
	addr     string
	client   *blackboard.Client
	store    *blackboard.Store
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
}

// NewHealthServer creates a new health check server. client and store may be nil.
func NewHealthServer(addr string, client *blackboard.Client, store *blackboard.Store, reg *prometheus.Registry) *HealthServer {
	return &HealthServer{
		addr:     addr,
		client:   client,
		store:    store,
		registry: reg,
	}
}

// Handler returns the server's routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	if h.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listen address and serves in the background.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	h.server = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[Orchestrator] Health server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible (or not configured), 503 Service Unavailable otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status: "healthy",
		Redis:  "disabled",
	}

	if h.store != nil {
		if open, ok := h.store.OpenCycle(); ok {
			response.OpenCycle = open.ID
		}
		if aborted := h.store.AbortedCycles(); len(aborted) > 0 {
			latest := aborted[len(aborted)-1]
			response.AbortedCycles = len(aborted)
			response.LastFailedCycle = latest.ID
			response.LastFailure = latest.FailureReason
		}
		if last, ok := h.store.LastCompleted(); ok {
			response.LastCycle = last.Cycle.ID
			if last.Risk != nil {
				response.RiskState = string(last.Risk.RiskState)
			}
		}
	}

	status := http.StatusOK
	if h.client != nil {
		// Check Redis connectivity with timeout
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.client.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
// AbortedCycles counts the aborted cycles still retained in memory.
type HealthResponse struct {
	Status          string `json:"status"`
	Redis           string `json:"redis,omitempty"`
	OpenCycle       string `json:"open_cycle,omitempty"`
	LastCycle       string `json:"last_cycle,omitempty"`
	RiskState       string `json:"risk_state,omitempty"`
	AbortedCycles   int    `json:"aborted_cycles"`
	LastFailedCycle string `json:"last_failed_cycle,omitempty"`
	LastFailure     string `json:"last_failure,omitempty"`
	Error           string `json:"error,omitempty"`
}
