// Package httpapi serves a local, read-mostly HTTP view over one live
// agent session: the derived state, the reconstructed workspace, and an
// SSE feed of session events, plus a handful of command forwards.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/state"
	"github.com/vibewire/vibewire/workspace"
)

// Session is the slice of a live session the handler serves. Satisfied by
// *session.Session.
type Session interface {
	AgentID() string
	State() state.State
	Workspace() *workspace.Workspace
	Bus() *eventbus.Bus
	Suggest(message string) error
	Stop() error
	Resume() error
	Deploy() error
}

// Handler serves the inspection API for one session.
type Handler struct {
	sess   Session
	router chi.Router
}

// New creates the handler.
func New(sess Session) *Handler {
	h := &Handler{sess: sess}
	h.router = h.buildRouter()
	return h
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/status", h.handleStatus)
			r.Get("/files", h.handleListFiles)
			r.Get("/files/*", h.handleGetFile)
			r.Get("/tree", h.handleTree)
			r.Post("/suggestion", h.handleSuggestion)
			r.Post("/stop", h.handleStop)
			r.Post("/resume", h.handleResume)
			r.Post("/deploy", h.handleDeploy)
		})
		r.Get("/events", h.handleEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type statusResponse struct {
	AgentID string      `json:"agent_id"`
	State   state.State `json:"state"`
}

type listFilesResponse struct {
	Count int      `json:"count"`
	Paths []string `json:"paths"`
}

type suggestionRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		AgentID: h.sess.AgentID(),
		State:   h.sess.State(),
	})
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	paths := h.sess.Workspace().Paths()
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, listFilesResponse{Count: len(paths), Paths: paths})
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	content, ok := h.sess.Workspace().Get(path)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(content))
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	tree := h.sess.Workspace().Tree()
	if tree == nil {
		tree = []*workspace.Node{}
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handler) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len([]rune(req.Message)) > 10000 {
		writeError(w, http.StatusBadRequest, "message exceeds 10000 characters")
		return
	}

	if err := h.sess.Suggest(req.Message); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.forwardCommand(w, h.sess.Stop)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.forwardCommand(w, h.sess.Resume)
}

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	h.forwardCommand(w, h.sess.Deploy)
}

func (h *Handler) forwardCommand(w http.ResponseWriter, cmd func() error) {
	if err := cmd(); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Buffered so a stalled client drops events rather than blocking the
	// session's synchronous bus.
	events := make(chan sseEvent, 256)
	unsub := h.sess.Bus().OnAny(func(event string, payload any) {
		select {
		case events <- sseEvent{Name: event, Payload: payload}:
		default:
		}
	})
	defer unsub()

	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

// --- Helpers ---

type sseEvent struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, e sseEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		// Payloads are arbitrary; fall back to the event name alone.
		data, _ = json.Marshal(sseEvent{Name: e.Name})
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, string(data)); err != nil {
		log.Printf("writeSSE write error: %v", err)
	}
}
