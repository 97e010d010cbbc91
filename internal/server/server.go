// Package server exposes negotiation sessions over HTTP and WebSocket. It
// is transport glue only: each connection drives its session exclusively
// through Machine.HandleTurn, and turns within a session are serialized.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/negotiate"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Server owns the session map and the HTTP surface.
type Server struct {
	registry *schema.Registry
	client   *llm.Client
	config   metadata.Config

	mu       sync.RWMutex
	sessions map[string]*session

	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
	zlog     *zap.Logger
}

// session pairs a machine with the mutex serializing its turns.
type session struct {
	id      string
	machine *negotiate.Machine
	mu      sync.Mutex
}

// NewServer creates a server. The LLM client may be disabled.
func NewServer(registry *schema.Registry, client *llm.Client, config metadata.Config, log *zap.Logger) *Server {
	return &Server{
		registry: registry,
		client:   client,
		config:   config,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:  log.Sugar().With("component", "server"),
		zlog: log,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /ws/{session}", s.handleWebSocket)
	return mux
}

// ListenAndServe runs the server on the configured address.
func (s *Server) ListenAndServe() error {
	s.log.Infow("listening", "addr", s.config.Server.Addr)
	return http.ListenAndServe(s.config.Server.Addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSessionRequest optionally narrows the fields to negotiate. With no
// body, every registry field counts as missing.
type createSessionRequest struct {
	MissingFields []string `json:"missing_fields,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	missing := req.MissingFields
	if len(missing) == 0 {
		for _, f := range s.registry.All() {
			missing = append(missing, f.Name)
		}
	}

	id := uuid.NewString()
	machine := negotiate.NewMachine(s.registry, s.client, missing, s.config.Negotiation.MaxAskRounds, s.zlog)
	start := machine.Start()

	s.mu.Lock()
	s.sessions[id] = &session{id: id, machine: machine}
	s.mu.Unlock()

	s.log.Infow("session created", "session", id, "missing", len(missing))
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id, Prompt: start.Reply})
}

// turnMessage is the client-to-server WebSocket payload.
type turnMessage struct {
	Text string `json:"text"`
}

// turnReply is the server-to-client WebSocket payload.
type turnReply struct {
	Reply   string   `json:"reply"`
	Prompt  string   `json:"prompt,omitempty"`
	Applied []string `json:"applied,omitempty"`
	Framing string   `json:"framing,omitempty"`
	Done    bool     `json:"done"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		var msg turnMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.log.Debugw("connection closed", "session", id, "error", err)
			return
		}

		sess.mu.Lock()
		result, err := sess.machine.HandleTurn(r.Context(), msg.Text)
		sess.mu.Unlock()
		if err != nil {
			s.log.Warnw("turn failed", "session", id, "error", err)
			_ = conn.WriteJSON(turnReply{Reply: "Something went wrong processing that, please try again."})
			continue
		}

		reply := turnReply{
			Reply:   result.Reply,
			Framing: string(result.Framing),
			Done:    result.Done,
		}
		if result.Action != nil {
			reply.Prompt = result.Action.Prompt
		}
		for _, a := range result.Applied {
			reply.Applied = append(reply.Applied, a.Field)
		}
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Debugw("write failed", "session", id, "error", err)
			return
		}
	}
}

// Session returns the machine for a session id, for report generation.
func (s *Server) Session(id string) (*negotiate.Machine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.machine, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
