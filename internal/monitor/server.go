package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shard-legends/farm-bot/internal/farm"
	"github.com/shard-legends/farm-bot/pkg/logger"
	"go.uber.org/zap"
)

// StatusReporter provides loop liveness data for the health endpoint
type StatusReporter interface {
	Status() farm.Status
}

// Server is the internal monitoring HTTP server exposing /health and /metrics
type Server struct {
	httpServer *http.Server
	reporter   StatusReporter
	staleAfter time.Duration
}

// NewServer builds the monitoring server bound to host:port
func NewServer(host, port string, reporter StatusReporter, tickInterval time.Duration) *Server {
	s := &Server{
		reporter: reporter,
		// Loop is considered stalled after missing several ticks
		staleAfter: 10 * tickInterval,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return s
}

// Start blocks serving until Shutdown is called
func (s *Server) Start() error {
	logger.Info("Starting monitor server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status       string        `json:"status"`
	Uptime       string        `json:"uptime"`
	Ticks        uint64        `json:"ticks"`
	LastTick     *time.Time    `json:"last_tick,omitempty"`
	LastRemoteOK *time.Time    `json:"last_remote_ok,omitempty"`
	Earnings     farm.Earnings `json:"earnings"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := s.reporter.Status()

	response := healthResponse{
		Status:   "ok",
		Uptime:   time.Since(status.StartedAt).Round(time.Second).String(),
		Ticks:    status.Ticks,
		Earnings: status.Earnings,
	}
	if !status.LastTick.IsZero() {
		t := status.LastTick
		response.LastTick = &t
	}
	if !status.LastRemoteOK.IsZero() {
		t := status.LastRemoteOK
		response.LastRemoteOK = &t
	}

	statusCode := http.StatusOK
	if status.Ticks > 0 && time.Since(status.LastTick) > s.staleAfter {
		response.Status = "stalled"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
