package api

import (
	"log/slog"
	"net/http"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "running"}))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		slog.Error("Server.sessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

func (s *Server) usersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	users, err := s.store.ListUsers()
	if err != nil {
		slog.Error("Server.usersHandler: failed to list users", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list users"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(users))
}

// twilioInboundHandler receives Twilio's inbound webhook. Twilio expects a
// TwiML document back; an empty response suppresses any auto-reply.
func (s *Server) twilioInboundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.twilioSvc == nil {
		slog.Warn("Server.twilioInboundHandler: Twilio channel not configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Twilio channel not configured"))
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioInboundHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	if err := s.twilioSvc.HandleInboundForm(r.PostForm); err != nil {
		slog.Warn("Server.twilioInboundHandler: rejected inbound message", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("<Response></Response>")); err != nil {
		slog.Error("Server.twilioInboundHandler: failed to write TwiML response", "error", err)
	}
}
