// Package status serves a read-only view of a session and its flows over HTTP
// and gRPC, together with the Prometheus metrics.
package status

import (
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/metrics"
	"Go2Mgen/internal/mgenerr"
	"Go2Mgen/internal/session"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Source is the session being reported on.
type Source interface {
	Name() string
	State() session.State
	Owning() bool
	Flows() []*flow.Flow
	GetFlow(id int) (*flow.Flow, error)
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	source  Source
	metrics *metrics.Metrics
}

// NewRouter builds the status routes.
func NewRouter(source Source, m *metrics.Metrics) *mux.Router {
	h := &APIHandler{source: source, metrics: m}
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/session", h.sessionHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows", h.flowsHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/{id:[0-9]+}", h.flowHandler).Methods("GET")
	if reg := m.Registry(); reg != nil {
		r.Handle("/metrics", h.refreshFlows(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))).Methods("GET")
	}
	return r
}

// Server runs the status API until Shutdown.
type Server struct {
	server *http.Server
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, source Source, m *metrics.Metrics) *Server {
	return &Server{server: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(source, m),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("Status server starting on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status server on %s failed: %v", s.server.Addr, err)
		}
	}()
}

// Shutdown stops the server, waiting up to five seconds for open requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (h *APIHandler) refreshFlows(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active := 0
		for _, f := range h.source.Flows() {
			if f.Active() {
				active++
			}
		}
		h.metrics.SetActiveFlows(active)
		next.ServeHTTP(w, r)
	})
}

func flowValue(f *flow.Flow) map[string]any {
	info := f.Info()
	return map[string]any{
		"id":          info.ID,
		"protocol":    string(info.Protocol),
		"destination": info.Destination,
		"pattern":     info.Pattern,
		"active":      info.Active,
		"payload":     info.Payload,
	}
}

func sessionValue(source Source) map[string]any {
	flows := source.Flows()
	active := 0
	for _, f := range flows {
		if f.Active() {
			active++
		}
	}
	return map[string]any{
		"instance":     source.Name(),
		"state":        source.State().String(),
		"owning":       source.Owning(),
		"flows":        len(flows),
		"active_flows": active,
	}
}

func flowsValue(source Source) map[string]any {
	flows := source.Flows()
	list := make([]any, 0, len(flows))
	for _, f := range flows {
		list = append(list, flowValue(f))
	}
	return map[string]any{"flows": list}
}

// sessionHandler reports the session summary.
func (h *APIHandler) sessionHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := structpb.NewStruct(sessionValue(h.source))
	writeProto(w, resp, err)
}

// flowsHandler lists the attached flows.
func (h *APIHandler) flowsHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := structpb.NewStruct(flowsValue(h.source))
	writeProto(w, resp, err)
}

// flowHandler reports one flow.
func (h *APIHandler) flowHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid flow id: %v", err), http.StatusBadRequest)
		return
	}
	f, err := h.source.GetFlow(id)
	if errors.Is(err, mgenerr.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get flow: %v", err), http.StatusInternalServerError)
		return
	}
	resp, err := structpb.NewStruct(flowValue(f))
	writeProto(w, resp, err)
}

func writeProto(w http.ResponseWriter, msg proto.Message, err error) {
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build response: %v", err), http.StatusInternalServerError)
		return
	}
	jsonBytes, err := protojson.Marshal(msg)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
