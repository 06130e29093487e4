package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
	"github.com/crewlink/crewlink/logging"
)

// ErrorBody is the JSON shape of an error response. Proxies forward it
// verbatim inside a remote_error.
type ErrorBody struct {
	Kind    core.Kind `json:"kind"`
	Agent   string    `json:"agent,omitempty"`
	Message string    `json:"message"`
}

// streamFrame is one NDJSON line of a streamed invocation: either a response
// chunk or a terminal error.
type streamFrame struct {
	Answer    string                `json:"answer,omitempty"`
	ToolCalls []core.ToolCallRecord `json:"toolCalls,omitempty"`
	Final     bool                  `json:"final"`
	Error     *ErrorBody            `json:"error,omitempty"`
}

// ServerOptions configure an agent's HTTP service.
type ServerOptions struct {
	// Addr is the listen address, for example ":8101".
	Addr string
	// AllowedOrigins configures CORS. Defaults to all origins.
	AllowedOrigins []string
	// Logger receives request events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Server exposes an Agent over HTTP: the descriptor document at the well-known
// path, a blocking invoke endpoint and a chunked streaming variant.
type Server struct {
	agent  *Agent
	logger logging.Logger
	http   *http.Server
}

// NewServer creates the HTTP service for an agent.
func NewServer(a *Agent, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{agent: a, logger: opts.Logger}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           c.Handler(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the service's HTTP handler, useful for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe runs the service until Shutdown is called or the listener
// fails.
func (s *Server) ListenAndServe() error {
	s.logger.Info("agent.server.listen", "agent_id", s.agent.desc.AgentID, "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the service.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(descriptor.WellKnownPath, s.handleDescriptor).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/invoke", s.handleInvoke).Methods(http.MethodPost)
	r.HandleFunc("/invoke/stream", s.handleInvokeStream).Methods(http.MethodPost)
	return r
}

func (s *Server) handleDescriptor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Descriptor())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req core.AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.NewError(core.KindValidation, "decoding request body: %v", err))
		return
	}

	resp, err := s.agent.Respond(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleInvokeStream writes one NDJSON frame per tool call followed by the
// final frame. A reasoning failure after streaming has started is reported as
// a terminal error frame since the status line is already out.
func (s *Server) handleInvokeStream(w http.ResponseWriter, r *http.Request) {
	var req core.AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.NewError(core.KindValidation, "decoding request body: %v", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, core.NewError(core.KindInvalidConfiguration, "response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	chunks, errCh := s.agent.RespondStream(r.Context(), req)

	for chunk := range chunks {
		_ = enc.Encode(streamFrame{
			Answer:    chunk.Answer,
			ToolCalls: chunk.ToolCalls,
			Final:     chunk.Final,
		})
		flusher.Flush()
	}

	if err := <-errCh; err != nil {
		_ = enc.Encode(streamFrame{Error: errorBody(s.agent.desc.AgentID, err)})
		flusher.Flush()
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody(s.agent.desc.AgentID, err)
	s.logger.Warn("agent.server.error", "agent_id", s.agent.desc.AgentID, "kind", string(body.Kind), "error", body.Message)
	writeJSON(w, statusForKind(body.Kind), map[string]*ErrorBody{"error": body})
}

func errorBody(agentID string, err error) *ErrorBody {
	body := &ErrorBody{Kind: core.KindOf(err), Agent: agentID, Message: err.Error()}
	if body.Kind == "" {
		body.Kind = core.KindStageFailure
	}
	var ce *core.Error
	if errors.As(err, &ce) && ce.Agent != "" {
		body.Agent = ce.Agent
	}
	return body
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
