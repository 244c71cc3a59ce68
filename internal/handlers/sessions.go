package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/models"
	"github.com/pointdeck/pointdeck/internal/services"
	apperrors "github.com/pointdeck/pointdeck/pkg/errors"
	"github.com/pointdeck/pointdeck/pkg/response"
)

// SessionHandler exposes HTTP endpoints for session lifecycle and membership.
type SessionHandler struct {
	sessions     *services.SessionService
	participants *services.ParticipantService
	cleanup      *services.CleanupService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(db *gorm.DB, opts ...services.CleanupOption) (*SessionHandler, error) {
	sessions, err := services.NewSessionService(db)
	if err != nil {
		return nil, err
	}
	participants, err := services.NewParticipantService(db)
	if err != nil {
		return nil, err
	}
	cleanup, err := services.NewCleanupService(db, opts...)
	if err != nil {
		return nil, err
	}

	return &SessionHandler{
		sessions:     sessions,
		participants: participants,
		cleanup:      cleanup,
	}, nil
}

type createSessionRequest struct {
	HostName       string `json:"hostName"`
	HostEmail      string `json:"hostEmail"`
	EstimationType string `json:"estimationType"`
}

// Create opens a new session and its host participant.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required fields: hostName and estimationType"))
		return
	}

	result, err := h.sessions.Create(c.Request.Context(), services.CreateSessionInput{
		HostName:       req.HostName,
		HostEmail:      req.HostEmail,
		EstimationType: models.EstimationType(strings.ToUpper(strings.TrimSpace(req.EstimationType))),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// Get returns the full session snapshot. Sessions past the retention window
// read as missing.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))

	valid, err := h.cleanup.IsSessionValid(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !valid {
		response.Error(c, apperrors.ErrSessionNotFound)
		return
	}

	snapshot, err := h.sessions.GetSnapshot(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

type joinSessionRequest struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

// Join registers a participant in the session. Rejoining with a known
// participant id returns the existing record.
func (h *SessionHandler) Join(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))

	valid, err := h.cleanup.IsSessionValid(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !valid {
		response.Error(c, apperrors.ErrSessionNotFound)
		return
	}

	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required fields: participantId and name"))
		return
	}

	participant, err := h.participants.Join(c.Request.Context(), services.JoinSessionInput{
		SessionID:     sessionID,
		ParticipantID: req.ParticipantID,
		Name:          req.Name,
		Email:         req.Email,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, participant)
}
