// Package api serves the benchmark history over HTTP and WebSocket.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/config"
	"github.com/loredb-bench/tracker/ingest"
	"github.com/loredb-bench/tracker/metrics"
	"github.com/loredb-bench/tracker/storage"
)

// Server provides HTTP API endpoints for the benchmark history
type Server struct {
	cfg        config.ServerConfig
	bench      config.BenchmarkConfig
	history    *storage.HistoricStorage
	ingester   *ingest.Ingester
	collector  *metrics.Collector
	hub        *WSHub
	upgrader   websocket.Upgrader
	httpServer *http.Server
	log        logrus.FieldLogger
}

// NewServer creates a new API server instance. collector may be nil.
func NewServer(cfg *config.Config, history *storage.HistoricStorage, collector *metrics.Collector, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:       cfg.Server,
		bench:     cfg.Benchmark,
		history:   history,
		collector: collector,
		log:       log.WithField("component", "api-server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	var onCount func(int)
	if collector != nil {
		onCount = func(n int) { collector.WSClients.Set(float64(n)) }
	}
	s.hub = NewWSHub(DefaultWSHubConfig(), log, onCount)
	s.ingester = ingest.New(history, cfg.Benchmark, collector, s.hub, log)
	return s
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Start starts the hub and listens on the configured address. It returns
// once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	read, write, idle := s.cfg.Timeouts()
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.hub.Run(ctx)

	go func() {
		s.log.WithField("addr", listener.Addr().String()).Info("API server listening")
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("API server failed")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP API server
func (s *Server) Stop() error {
	s.log.Info("Stopping API server")
	s.hub.Stop()

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to shutdown API server gracefully")
		return err
	}
	s.log.Info("API server stopped")
	return nil
}

// Router configures all HTTP routes and middleware
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.enableCORS)
	router.Use(s.loggingMiddleware)
	router.Use(s.errorHandlingMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	router.HandleFunc("/data.js", s.handleDataJS).Methods("GET", "OPTIONS")
	if s.collector != nil && s.cfg.MetricsEnabled() {
		router.Handle("/metrics", s.collector.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/suites", s.handleListSuites).Methods("GET", "OPTIONS")
	api.HandleFunc("/suites/{suite}/entries", s.handleListEntries).Methods("GET", "OPTIONS")
	api.HandleFunc("/suites/{suite}/entries", s.handleIngest).Methods("POST", "OPTIONS")
	// bench names contain slashes
	api.HandleFunc("/suites/{suite}/benches/{bench:.+}/series", s.handleBenchSeries).Methods("GET", "OPTIONS")
	api.HandleFunc("/suites/{suite}/benches/{bench:.+}/trend", s.handleBenchTrend).Methods("GET", "OPTIONS")

	api.HandleFunc("/runs", s.handleListRuns).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{runId}", s.handleGetRun).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{runId}", s.handleDeleteRun).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/runs/{runId}/alerts", s.handleGetAlerts).Methods("GET", "OPTIONS")
	api.HandleFunc("/alerts/{alertId}/acknowledge", s.handleAcknowledgeAlert).Methods("POST", "OPTIONS")

	api.HandleFunc("/ws", s.hub.HandleWebSocketConnection(&s.upgrader))

	if s.cfg.WebDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.WebDir)))
	}
	return router
}

// enableCORS adds CORS headers to responses
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Commit-Id, X-Commit-Message, X-Commit-Author, X-Commit-Url, X-Commit-Timestamp")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records their latency
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if s.collector != nil {
			s.collector.ObserveHTTP(r.Method, route, wrapper.statusCode, duration)
		}

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapper.statusCode,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Debug("HTTP request processed")
	})
}

// errorHandlingMiddleware turns handler panics into 500 responses
func (s *Server) errorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("error", err).Error("Panic in HTTP handler")
				s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status codes
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the websocket upgrader take over the connection
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// writeJSONResponse writes a JSON response with the given status code
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response with the given status code and message
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	})
}
