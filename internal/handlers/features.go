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

// FeatureHandler exposes HTTP endpoints for features and reveals.
type FeatureHandler struct {
	sessions *services.SessionService
	features *services.FeatureService
}

// NewFeatureHandler constructs a feature handler.
func NewFeatureHandler(db *gorm.DB) (*FeatureHandler, error) {
	sessions, err := services.NewSessionService(db)
	if err != nil {
		return nil, err
	}
	features, err := services.NewFeatureService(db)
	if err != nil {
		return nil, err
	}

	return &FeatureHandler{sessions: sessions, features: features}, nil
}

// List returns the session's features, newest first, with votes.
func (h *FeatureHandler) List(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))

	features, err := h.features.List(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, features)
}

type createFeatureRequest struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Link          string `json:"link"`
}

// Create starts a new voting round. Host only.
func (h *FeatureHandler) Create(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))

	var req createFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required field: participantId"))
		return
	}

	if err := h.requireHost(c, sessionID, req.ParticipantID, "Only the host can start features"); err != nil {
		response.Error(c, err)
		return
	}

	feature, err := h.features.Create(c.Request.Context(), sessionID, req.Name, req.Link)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, feature)
}

type revealFeatureRequest struct {
	ParticipantID string `json:"participantId"`
}

type revealFeatureResponse struct {
	Feature      *models.Feature `json:"feature"`
	HasConsensus bool            `json:"hasConsensus"`
}

// Reveal flips the feature to revealed and reports consensus. Host only.
func (h *FeatureHandler) Reveal(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	featureID := strings.TrimSpace(c.Param("featureId"))

	var req revealFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required field: participantId"))
		return
	}

	if err := h.requireHost(c, sessionID, req.ParticipantID, "Only the host can reveal results"); err != nil {
		response.Error(c, err)
		return
	}

	feature, err := h.features.Reveal(c.Request.Context(), featureID)
	if err != nil {
		response.Error(c, err)
		return
	}

	consensus, err := h.features.CheckConsensus(c.Request.Context(), featureID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, revealFeatureResponse{
		Feature:      feature,
		HasConsensus: consensus,
	})
}

func (h *FeatureHandler) requireHost(c *gin.Context, sessionID, participantID, message string) error {
	isHost, err := h.sessions.IsHost(c.Request.Context(), sessionID, participantID)
	if err != nil {
		return err
	}
	if !isHost {
		return apperrors.NewForbidden(message)
	}
	return nil
}
