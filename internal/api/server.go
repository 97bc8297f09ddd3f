package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/gamescope-dbus/internal/engine"
	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
)

// Engine is the part of the engine the API serves.
type Engine interface {
	Objects() []gamescope.Object
	OnRead(obj gamescope.Object, name string) (any, error)
	Updated(obj gamescope.Object, name string) (time.Time, bool)
	OnReadAll(obj gamescope.Object) (map[string]any, error)
	OnWrite(ctx context.Context, obj gamescope.Object, name string, value any) error
	Subscribe() chan engine.ChangeEvent
	Unsubscribe(ch chan engine.ChangeEvent)
}

// Server represents the HTTP API server
type Server struct {
	router      *mux.Router
	engine      Engine
	upgrader    websocket.Upgrader
	callTimeout time.Duration
}

// ObjectInfo describes one exposed object
type ObjectInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Interface string `json:"interface"`
}

// NewServer creates a new API server
func NewServer(e Engine, callTimeout time.Duration) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		engine:      e,
		callTimeout: callTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/objects", s.handleListObjects).Methods("GET")
	api.HandleFunc("/objects/{object}", s.handleGetObject).Methods("GET")
	api.HandleFunc("/objects/{object}/properties/{property}", s.handleGetProperty).Methods("GET")
	api.HandleFunc("/objects/{object}/properties/{property}", s.handleSetProperty).Methods("PUT")

	api.HandleFunc("/stream", s.handleStream)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting status API")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"objects": len(s.engine.Objects()),
	})
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	objs := s.engine.Objects()
	infos := make([]ObjectInfo, 0, len(objs))
	for _, obj := range objs {
		infos = append(infos, ObjectInfo{
			Name:      obj.Name(),
			Path:      obj.Path(),
			Interface: obj.Kind.Interface(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}

	values, err := s.engine.OnReadAll(obj)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       obj.Name(),
		"path":       obj.Path(),
		"properties": sortedValues(values),
	})
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["property"]

	v, err := s.engine.OnRead(obj, name)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{
		"object":   obj.Name(),
		"property": name,
		"value":    v,
	}
	if updated, ok := s.engine.Updated(obj, name); ok {
		resp["updated"] = updated
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["property"]

	var req struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == nil {
		http.Error(w, "missing value", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.callTimeout)
	defer cancel()

	if err := s.engine.OnWrite(ctx, obj, name, req.Value); err != nil {
		writeError(w, err)
		return
	}
	// The cached value changes once the windowing system reports it.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.engine.Subscribe()
	defer s.engine.Unsubscribe(updates)

	// Detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (s *Server) object(w http.ResponseWriter, r *http.Request) (gamescope.Object, bool) {
	obj, err := gamescope.ParseObject(mux.Vars(r)["object"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return gamescope.Object{}, false
	}
	return obj, true
}

type propertyValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func sortedValues(values map[string]any) []propertyValue {
	out := make([]propertyValue, 0, len(values))
	for k, v := range values {
		out = append(out, propertyValue{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrDetached):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotWritable):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrWriteFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
