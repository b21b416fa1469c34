// Package httpserver exposes health probes, Prometheus metrics, per-bot REST
// snapshots and the websocket event stream that feeds dashboard clients.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/healthprobe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SnapshotFunc returns a bot's JSON-serializable state.
type SnapshotFunc func() interface{}

// AddressBook is the mirror roster surface exposed over REST.
type AddressBook interface {
	List() interface{}
	Add(address, nickname string) interface{}
	Remove(address string) bool
}

// AnalyzeFunc computes a wallet-analysis snapshot.
type AnalyzeFunc func(ctx context.Context, address string) (interface{}, error)

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Bus           *bus.Bus

	// Snapshot endpoints; nil entries are not routed.
	Snapshots map[string]SnapshotFunc

	AddressBook AddressBook
	Analyze     AnalyzeFunc
}

// Server provides the engine's HTTP surface.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// New creates the HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", cfg.HealthChecker.Health())
	r.Get("/readyz", cfg.HealthChecker.Ready())

	for name, snapshot := range cfg.Snapshots {
		if snapshot == nil {
			continue
		}
		snapshot := snapshot
		r.Get("/api/"+name+"/snapshot", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, snapshot())
		})
	}

	if cfg.AddressBook != nil {
		registerAddressRoutes(r, cfg.AddressBook, cfg.Analyze, cfg.Logger)
	}

	if cfg.Bus != nil {
		ws := newEventStream(cfg.Bus, cfg.Logger)
		r.Get("/ws/events", ws.Handle)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server: server,
		logger: cfg.Logger,
	}
}

func registerAddressRoutes(r chi.Router, book AddressBook, analyze AnalyzeFunc, logger *zap.Logger) {
	r.Get("/api/mirror/addresses", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"addresses": book.List()})
	})

	r.Post("/api/mirror/addresses", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Address  string `json:"address"`
			Nickname string `json:"nickname"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Address == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address is required"})
			return
		}
		writeJSON(w, http.StatusOK, book.Add(body.Address, body.Nickname))
	})

	r.Delete("/api/mirror/addresses/{address}", func(w http.ResponseWriter, req *http.Request) {
		address := chi.URLParam(req, "address")
		if !book.Remove(address) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown address"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
	})

	if analyze != nil {
		r.Get("/api/mirror/analysis/{address}", func(w http.ResponseWriter, req *http.Request) {
			analysis, err := analyze(req.Context(), chi.URLParam(req, "address"))
			if err != nil {
				logger.Error("analysis-request-failed", zap.Error(err))
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "analysis failed"})
				return
			}
			writeJSON(w, http.StatusOK, analysis)
		})
	}
}

// Start blocks serving until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
