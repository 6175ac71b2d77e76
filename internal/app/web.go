// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/barometer/internal/bridge"
	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/metrics"
	"github.com/relabs-tech/barometer/internal/sensors"
	"github.com/relabs-tech/barometer/internal/session"
)

// WebServer exposes the barometer over HTTP and a websocket stream.
type WebServer struct {
	api      bridge.Facade
	ctrl     *session.Controller
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	logger   *log.Logger

	upgrader  websocket.Upgrader
	clientsMu sync.RWMutex
	clients   map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebServer serves api. reg receives the metrics and is scraped at
// /metrics; nil uses the Prometheus defaults.
func NewWebServer(api bridge.Facade, reg *prometheus.Registry, logger *log.Logger) *WebServer {
	if logger == nil {
		logger = log.Default()
	}
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	s := &WebServer{
		api:      api,
		metrics:  metrics.NewCollector(registerer),
		gatherer: gatherer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
	s.ctrl = session.New(api, s.onMeasurement,
		session.WithLogger(logger),
		session.WithDeniedHook(s.metrics.PermissionDenied),
	)
	return s
}

// Handler returns the HTTP routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/measurement", s.handleMeasurement)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/permissions", s.handleCheckPermissions)
	mux.HandleFunc("POST /api/permissions/request", s.handleRequestPermissions)
	mux.HandleFunc("POST /api/updates/start", s.handleStart)
	mux.HandleFunc("POST /api/updates/stop", s.handleStop)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

// Shutdown stops streaming and disconnects websocket clients.
func (s *WebServer) Shutdown(ctx context.Context) {
	s.ctrl.Stop(ctx)
	s.metrics.SetActive(false)

	s.clientsMu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.clientsMu.Unlock()
}

func (s *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("web: json encode error: %v", err)
	}
}

type errorBody struct {
	Error string                      `json:"error"`
	State measurement.PermissionState `json:"state,omitempty"`
}

// writeError maps permission denial to 403 and a missing sensor to 503.
func (s *WebServer) writeError(w http.ResponseWriter, err error) {
	var denied *session.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), State: denied.State})
	case errors.Is(err, sensors.ErrUnavailable):
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.Is(err, bridge.ErrTimeout):
		s.writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	default:
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func (s *WebServer) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	m, err := s.ctrl.ReadOnce(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *WebServer) handleCheckPermissions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.api.CheckPermissions(r.Context()))
}

func (s *WebServer) handleRequestPermissions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.api.RequestPermissions(r.Context()))
}

func (s *WebServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.SetActive(true)
	s.writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *WebServer) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop(r.Context())
	s.metrics.SetActive(false)
	s.writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

// onMeasurement is the controller's listener: metrics first, then every
// websocket client.
func (s *WebServer) onMeasurement(m measurement.Measurement) {
	s.metrics.Observe(m)
	data, err := json.Marshal(m)
	if err != nil {
		s.logger.Printf("web: json marshal error: %v", err)
		return
	}
	s.broadcast(data)
}

// broadcast never blocks; a client whose buffer is full is dropped.
func (s *WebServer) broadcast(data []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			delete(s.clients, c)
			close(c.send)
			s.logger.Println("web: dropped slow websocket client")
		}
	}
}

func (s *WebServer) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("web: websocket upgrade error: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("web: websocket client connected (%d total)", n)

	// Writer
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader, only to notice the close
	go func() {
		defer func() {
			s.clientsMu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.clientsMu.Unlock()
			s.logger.Println("web: websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// RunWeb serves the HTTP API on top of the producer, reached through the
// MQTT bridge.
func RunWeb() error {
	cfg := config.Get()

	client, err := bridge.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	codec, err := bridge.NewCodec(cfg.BridgeCodec)
	if err != nil {
		return err
	}
	remote := bridge.NewClient(bridge.NewMQTTTransport(client), codec, cfg.TopicPrefix,
		cfg.MQTTClientIDWeb, time.Duration(cfg.BridgeCallTimeoutMS)*time.Millisecond, nil)
	if err := remote.Start(); err != nil {
		return err
	}
	defer remote.Close()

	ws := NewWebServer(remote, nil, nil)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: ws.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws.Shutdown(shutCtx)
		srv.Shutdown(shutCtx)
	}()

	log.Printf("web: listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
