package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"connected/internal/conversation"
	"connected/internal/logging"
	"connected/internal/roster"
	"connected/internal/router"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

type OpenConversationRequest struct {
	Participant string `json:"participant" validate:"required,email"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"notblank"`
}

// conversationStatus classifies conversation and message errors
func conversationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, interfaces.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, conversation.ErrNotParticipant), errors.Is(err, router.ErrSenderNotParticipant):
		return http.StatusForbidden, "Not a participant of this conversation"
	case errors.Is(err, conversation.ErrUnknownParticipant):
		return http.StatusNotFound, "Participant is not on the roster"
	case errors.Is(err, types.ErrInvalidParticipants), errors.Is(err, types.ErrInvalidEmail),
		errors.Is(err, types.ErrEmptyContent), errors.Is(err, types.ErrContentTooLarge):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, router.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, err.Error()
	default:
		return http.StatusInternalServerError, ""
	}
}

func (s *Server) sendConversationError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code, message := conversationStatus(err)
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), fallback, "error", err)
		message = fallback
	}
	sendError(w, message, code)
}

// FUNCTIONAL DISCOVERY: GET /api/student/dashboard - the caller's row, courses and their teachers
func (s *Server) handleStudentDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.roster.StudentDashboard(r.Context(), authenticated(r.Context()).Email)
	if err != nil {
		s.sendDashboardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// FUNCTIONAL DISCOVERY: GET /api/teacher/dashboard - courses taught and the students of each
func (s *Server) handleTeacherDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.roster.TeacherDashboard(r.Context(), authenticated(r.Context()).Email)
	if err != nil {
		s.sendDashboardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) sendDashboardError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, roster.ErrNotOnRoster) {
		sendError(w, "Not on the roster", http.StatusNotFound)
		return
	}
	logging.FromContext(r.Context()).ErrorContext(r.Context(), "dashboard failed", "error", err)
	sendError(w, "Failed to load dashboard", http.StatusInternalServerError)
}

// FUNCTIONAL DISCOVERY: POST /api/conversations - returns the one conversation of the pair,
// creating it on first use
func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var req OpenConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	conv, err := s.conversations.Open(r.Context(), authenticated(r.Context()).Email, req.Participant)
	if err != nil {
		s.sendConversationError(w, r, err, "Failed to open conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// FUNCTIONAL DISCOVERY: GET /api/conversations/{id}/messages - history, oldest first
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.conversations.History(r.Context(), authenticated(r.Context()).Email, chi.URLParam(r, "id"))
	if err != nil {
		s.sendConversationError(w, r, err, "Failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// FUNCTIONAL DISCOVERY: POST /api/conversations/{id}/messages - persist then publish, the
// response is the stored row
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	message, err := s.messages.RouteMessage(r.Context(), authenticated(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.sendConversationError(w, r, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, message)
}
