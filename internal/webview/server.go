// Package webview is a reference, non-core HTTP/websocket adapter onto the
// Engine's Control/Snapshot surface (spec §6 expansion): a read-only status
// endpoint, bind/unbind/auto-select command endpoints, and a push stream
// sending connected clients the status periodically. The catalog's
// connections are served only inside the status snapshot, in catalog order;
// there is no separate connection-list endpoint and no sorting. It never
// imports engine internals beyond engine.Control and engine.Snapshot,
// grounded on lcalzada-xor-wmap's adapters/web.Server and the teacher's own
// cl.httpd/ap.httpd family of mux-routed HTTP daemons.
package webview

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/engine"
)

// StatusProvider is the narrow surface webview depends on: the Engine's
// command interface plus a point-in-time status read. internal/engine.Engine
// satisfies this without webview ever importing its unexported fields.
type StatusProvider interface {
	engine.Control
	Status() engine.Snapshot
}

// Server is the webview HTTP/websocket adapter.
type Server struct {
	log      *zap.Logger
	provider StatusProvider
	addr     string
	hub      *Hub

	srv *http.Server
}

// NewServer returns a Server bound to addr (e.g. "0.0.0.0:8080" from
// config.Web), not yet listening.
func NewServer(log *zap.Logger, provider StatusProvider, addr string) *Server {
	return &Server{
		log:      log,
		provider: provider,
		addr:     addr,
		hub:      newHub(log, provider),
	}
}

// Run starts the HTTP server and the status broadcaster, blocking until ctx
// is canceled or the listener fails. A canceled ctx triggers a graceful
// shutdown bounded by 5s, matching the teacher's own Server.Run idiom.
func (s *Server) Run(ctx context.Context) error {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/bind", s.handleBind).Methods(http.MethodPost)
	r.HandleFunc("/api/unbind", s.handleUnbind).Methods(http.MethodPost)
	r.HandleFunc("/api/autoselect", s.handleAutoSelect).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.hub.HandleWebSocket)

	s.srv = &http.Server{Addr: s.addr, Handler: r}

	go s.hub.Start(ctx)

	go func() {
		<-ctx.Done()
		if s.log != nil {
			s.log.Info("webview shutting down")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil && s.log != nil {
			s.log.Warn("webview shutdown error", zap.Error(err))
		}
	}()

	if s.log != nil {
		s.log.Info("webview listening", zap.String("addr", s.addr))
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.Status())
}

// bindRequest is the wire shape for a Bind command, mirroring the fields of
// catalog.Connection an operator would need to name an uplink by hand.
type bindRequest struct {
	Radio string `json:"radio"`
	AP    struct {
		SSID       string `json:"ssid"`
		BSSID      string `json:"bssid"`
		Channel    int    `json:"channel"`
		Signal     int    `json:"signal"`
		Encryption string `json:"encryption"`
		Open       bool   `json:"open"`
	} `json:"ap"`
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Radio == "" || req.AP.BSSID == "" {
		http.Error(w, "radio and ap.bssid are required", http.StatusBadRequest)
		return
	}

	conn := catalog.Connection{
		Radio: req.Radio,
		AP: catalog.AccessPoint{
			SSID:       req.AP.SSID,
			BSSID:      req.AP.BSSID,
			Channel:    req.AP.Channel,
			Signal:     req.AP.Signal,
			Encryption: catalog.Encryption(req.AP.Encryption),
			Open:       req.AP.Open,
		},
	}

	if err := s.provider.Bind(conn); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bound"})
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.Unbind(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

func (s *Server) handleAutoSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Enabled {
		s.provider.EnableAutoSelect()
	} else {
		s.provider.DisableAutoSelect()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"auto_select": req.Enabled})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
