package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// emptyTwiML tells Twilio the webhook was handled and no synchronous reply is
// owed; all replies go out through the distributor.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// webhookSMSHandler receives Twilio's inbound SMS form payload and enqueues it
// as an INBOUND_SMS command. The webhook acknowledges as soon as the command
// is durably queued; processing happens on the runner.
func (s *Server) webhookSMSHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookSMSHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookSMSHandler: failed to parse form", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	from := strings.TrimSpace(r.PostFormValue("From"))
	body := r.PostFormValue("Body")
	if from == "" {
		slog.Warn("Server.webhookSMSHandler: missing From field")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.publisher.PublishInboundSMS(r.Context(), from, body); err != nil {
		slog.Error("Server.webhookSMSHandler: enqueue failed", "error", err, "from", from)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	slog.Debug("Server.webhookSMSHandler: inbound SMS queued", "from", from)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(emptyTwiML)); err != nil {
		slog.Error("Server.webhookSMSHandler: failed to write response", "error", err)
	}
}

// progressHandler returns a user's catalog progress and drill statuses.
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, Error("Missing required query parameter: phone"))
		return
	}

	userID, found, err := s.store.UserIDForPhone(r.Context(), phone)
	if err != nil {
		slog.Error("Server.progressHandler: user lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to look up user"))
		return
	}
	if !found {
		writeJSONResponse(w, http.StatusNotFound, Error("Unknown phone number"))
		return
	}

	progress, err := s.store.ProgressForUser(r.Context(), userID)
	if err != nil {
		slog.Error("Server.progressHandler: progress lookup failed", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to load progress"))
		return
	}
	statuses, err := s.store.GetDrillStatuses(r.Context(), userID)
	if err != nil {
		slog.Error("Server.progressHandler: statuses lookup failed", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to load drill statuses"))
		return
	}

	writeJSONResponse(w, http.StatusOK, Success(map[string]any{
		"user_id":        userID,
		"progress":       progress,
		"drill_statuses": statuses,
	}))
}

// instanceHandler returns one drill instance by id.
func (s *Server) instanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/instances/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, Error("Invalid drill instance id"))
		return
	}

	instance, err := s.store.GetDrillInstance(r.Context(), id)
	if err != nil {
		slog.Error("Server.instanceHandler: lookup failed", "error", err, "drill_instance_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, Error("Failed to load drill instance"))
		return
	}
	if instance == nil {
		writeJSONResponse(w, http.StatusNotFound, Error("Drill instance not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, Success(instance))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, Success(map[string]string{"status": "healthy"}))
}
