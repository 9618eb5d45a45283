// Package api exposes the coordinator's operations over HTTP JSON plus
// a websocket notification stream. The layer only translates typed
// outcomes to wire responses; no admission rules live here.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/roomshare/browserd/internal/config"
	"github.com/roomshare/browserd/internal/coordinator"
	"github.com/roomshare/browserd/internal/errors"
	"github.com/roomshare/browserd/internal/logging"
	"github.com/roomshare/browserd/internal/pool"
)

// Server is the browserd HTTP surface.
type Server struct {
	coord   *coordinator.Coordinator
	hub     *Hub
	limits  *roomLimiters
	logger  *logging.Logger
	httpSrv *http.Server
}

// NewServer wires the routes onto a Server. hub may be nil to disable
// the websocket stream.
func NewServer(cfg config.APIConfig, coord *coordinator.Coordinator, hub *Hub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		coord:  coord,
		hub:    hub,
		limits: newRoomLimiters(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		logger: logger.WithComponent("api"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/rooms/{room}/session", s.limited(s.handleRequestSession))
	mux.HandleFunc("DELETE /v1/rooms/{room}/session", s.limited(s.handleReleaseSession))
	mux.HandleFunc("GET /v1/rooms/{room}/session", s.handleSessionStatus)
	mux.HandleFunc("POST /v1/rooms/{room}/session/restart", s.limited(s.handleRestartProcess))

	mux.HandleFunc("GET /v1/rooms/{room}/queue", s.handleQueueStatus)
	mux.HandleFunc("POST /v1/rooms/{room}/queue/accept", s.limited(s.handleAcceptOffer))
	mux.HandleFunc("POST /v1/rooms/{room}/queue/decline", s.limited(s.handleDeclineOffer))
	mux.HandleFunc("DELETE /v1/rooms/{room}/queue", s.limited(s.handleCancelQueue))

	mux.HandleFunc("GET /v1/rooms/{room}/cooldown", s.handleCooldownStatus)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/queue", s.handleListQueue)
	mux.HandleFunc("GET /v1/status", s.handleStatus)

	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

// Handler returns the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpSrv.Shutdown(ctx)
}

// limited wraps a room-scoped handler with the per-room rate limiter.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("room")
		if !s.limits.allow(roomID) {
			s.logger.Warn("room rate limited", "room", roomID, "path", r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRequestSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.coord.RequestSession(r.Context(), r.PathValue("room"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReleaseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ReleaseSession(r.Context(), r.PathValue("room")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.coord.SessionStatus(r.PathValue("room"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no_active_session"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRestartProcess(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RestartSessionProcess(r.Context(), r.PathValue("room")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.coord.QueueStatus(r.PathValue("room"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_queued"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	out, err := s.coord.AcceptOffer(r.Context(), r.PathValue("room"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeclineOffer(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeclineOffer(r.Context(), r.PathValue("room")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleCancelQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.CancelQueue(r.Context(), r.PathValue("room")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleCooldownStatus(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.coord.CooldownStatus(r.Context(), r.PathValue("room"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cooldownBody{
		Active:           remaining > 0,
		RemainingSeconds: int(remaining.Round(time.Second).Seconds()),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.ListSessions())
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.ListQueue())
}

// StatusResponse is the daemon-wide snapshot served at /v1/status.
type StatusResponse struct {
	Pool        pool.Stats `json:"pool"`
	Sessions    int        `json:"sessions"`
	QueueLength int        `json:"queue_length"`
	Subscribers int        `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Pool:        s.coord.PoolStats(),
		Sessions:    len(s.coord.ListSessions()),
		QueueLength: len(s.coord.ListQueue()),
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type okBody struct {
	OK bool `json:"ok"`
}

type errorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

type cooldownBody struct {
	Active           bool `json:"active"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

// writeError maps the coordinator's typed failures onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if remaining, ok := errors.IsCooldown(err); ok {
		secs := int(remaining.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:             "cooldown_active",
			RetryAfterSeconds: secs,
		})
		return
	}

	switch {
	case errors.Is(err, errors.ErrAdmissionBusy):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "busy", Message: "admission section contended, retry shortly"})
	case errors.Is(err, errors.ErrSessionNotFound), errors.Is(err, errors.ErrNotQueued), errors.Is(err, errors.ErrSlotNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, errors.ErrOfferExpired):
		writeJSON(w, http.StatusGone, errorBody{Error: "offer_expired"})
	case errors.Is(err, errors.ErrNotNotified), errors.Is(err, errors.ErrSessionExists), errors.Is(err, errors.ErrAlreadyQueued):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: err.Error()})
	case errors.Is(err, errors.ErrNoSlotsAvailable):
		writeJSON(w, http.StatusConflict, errorBody{Error: "no_slots_available", Message: "the offered slot was taken, re-request to queue again"})
	case errors.Is(err, errors.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: err.Error()})
	default:
		if errors.IsUserFacing(err) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
			return
		}
		s.logger.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
