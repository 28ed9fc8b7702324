package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Discovita/testing-grounds/internal/ratelimit"
	"github.com/Discovita/testing-grounds/internal/util"
	"github.com/Discovita/testing-grounds/services/journey/internal/app"
	"github.com/Discovita/testing-grounds/services/journey/internal/metrics"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the journey service.
type Server struct {
	app     *app.App
	metrics *metrics.Metrics
	limiter *ratelimit.FixedWindowLimiter
	proxies *util.TrustedProxies
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:     cfg.App,
		metrics: cfg.Metrics,
		limiter: cfg.Limiter,
		proxies: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("journey", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	// sessions
	s.mux.HandleFunc("/v1/sessions", s.handleSessions)
	s.mux.HandleFunc("/v1/sessions/", s.handleSessionByUser)

	// messages
	s.mux.HandleFunc("/v1/messages", s.handleMessages)
	s.mux.HandleFunc("/v1/messages/", s.handleMessagesByJourney)

	// users
	s.mux.HandleFunc("/v1/users", s.handleUsers)
	s.mux.HandleFunc("/v1/users/", s.handleUserByID)

	// journeys
	s.mux.HandleFunc("/v1/journeys", s.handleJourneys)
	s.mux.HandleFunc("/v1/journeys/", s.handleJourneyByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req sessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.StartSession(r.Context(), app.SessionInput{
		UserID:    req.UserID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	status := http.StatusOK
	if res.JourneyCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// /v1/sessions/{userID}
func (s *Server) handleSessionByUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if userID == "" || strings.Contains(userID, "/") {
		notFound(w, "not found")
		return
	}
	res, err := s.app.ResumeSession(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleProcessTurn(w, r)
	case http.MethodGet:
		s.handleAllMessages(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProcessTurn(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		ip := util.ClientIP(r, s.proxies)
		if !s.limiter.Allow(ip) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}
	var req messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.JourneyID == "" {
		writeError(w, http.StatusBadRequest, "journeyId is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	res, err := s.app.ProcessTurn(r.Context(), req.UserID, req.JourneyID, req.Text)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAllMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	msgs, err := s.app.AllMessages(r.Context(), limit, offset)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// /v1/messages/{journeyID}
func (s *Server) handleMessagesByJourney(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	journeyID := strings.TrimPrefix(r.URL.Path, "/v1/messages/")
	if journeyID == "" || strings.Contains(journeyID, "/") {
		notFound(w, "not found")
		return
	}
	msgs, err := s.app.JourneyMessages(r.Context(), journeyID, queryInt(r, "limit", 0))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req userRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := s.app.CreateUser(r.Context(), req.FirstName, req.LastName)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		users, err := s.app.ListUsers(r.Context())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	default:
		methodNotAllowed(w)
	}
}

// /v1/users/{id} or /v1/users/{id}/attributes
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] == "attributes" {
			s.handleUserAttributes(w, r, id)
			return
		}
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := s.app.GetUser(r.Context(), id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req userRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := s.app.UpdateUser(r.Context(), id, req.FirstName, req.LastName)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := s.app.DeleteUser(r.Context(), id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUserAttributes(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		attrs, err := s.app.UserAttributes(r.Context(), userID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attrs)
	case http.MethodPost:
		var req attributeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Key) == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}
		attr, err := s.app.RecordUserAttribute(r.Context(), userID, req.Key, req.Value, req.SourceMessageID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, attr)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleJourneys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req journeyRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}
		journey, created, err := s.app.CreateJourney(r.Context(), req.UserID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, journey)
	case http.MethodGet:
		journeys, err := s.app.ListJourneys(r.Context(), r.URL.Query().Get("userId"))
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, journeys)
	default:
		methodNotAllowed(w)
	}
}

// /v1/journeys/{id}, /v1/journeys/active/{userID}, /v1/journeys/state/{userID},
// /v1/journeys/{id}/events, /v1/journeys/{id}/advance|complete|abandon,
// /v1/journeys/{id}/checkpoints/{name}
func (s *Server) handleJourneyByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/journeys/")
	parts := strings.SplitN(path, "/", 3)
	if parts[0] == "" {
		notFound(w, "not found")
		return
	}

	switch parts[0] {
	case "active":
		if len(parts) != 2 || parts[1] == "" {
			notFound(w, "not found")
			return
		}
		s.handleActiveJourney(w, r, parts[1])
		return
	case "state":
		if len(parts) != 2 || parts[1] == "" {
			notFound(w, "not found")
			return
		}
		s.handleJourneyState(w, r, parts[1])
		return
	}

	id := parts[0]
	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		journey, err := s.app.GetJourney(r.Context(), id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, journey)
	case 2:
		s.handleJourneyAction(w, r, id, parts[1])
	case 3:
		if parts[1] != "checkpoints" || parts[2] == "" {
			notFound(w, "not found")
			return
		}
		s.handleSaveCheckpoint(w, r, id, parts[2])
	}
}

func (s *Server) handleActiveJourney(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	journey, ok, err := s.app.ActiveJourney(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !ok {
		notFound(w, "no active journey")
		return
	}
	writeJSON(w, http.StatusOK, journey)
}

func (s *Server) handleJourneyState(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	state, err := s.app.JourneyState(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleJourneyAction(w http.ResponseWriter, r *http.Request, id, action string) {
	switch action {
	case "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		evs, err := s.app.JourneyEvents(r.Context(), id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, evs)
	case "advance", "complete", "abandon":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var journey any
		var err error
		switch action {
		case "advance":
			journey, err = s.app.AdvanceMilestone(r.Context(), id)
		case "complete":
			journey, err = s.app.CompleteJourney(r.Context(), id)
		case "abandon":
			journey, err = s.app.AbandonJourney(r.Context(), id)
		}
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, journey)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request, journeyID, name string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req checkpointRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	res, err := s.app.SaveCheckpoint(r.Context(), journeyID, name, req.Value)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUserNotFound), errors.Is(err, app.ErrJourneyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrJourneyForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrUnknownCheckpoint):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, app.ErrJourneyInactive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrGenerationFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

type sessionRequest struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type messageRequest struct {
	UserID    string `json:"userId"`
	JourneyID string `json:"journeyId"`
	Text      string `json:"text"`
}

type userRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type journeyRequest struct {
	UserID string `json:"userId"`
}

type attributeRequest struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	SourceMessageID string `json:"sourceMessageId"`
}

type checkpointRequest struct {
	Value string `json:"value"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
