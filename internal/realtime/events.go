package realtime

import (
	"encoding/json"

	"github.com/pointdeck/pointdeck/internal/models"
)

// Inbound action names sent by clients.
const (
	EventJoinSession   = "join-session"
	EventSubmitVote    = "submit-vote"
	EventUnsubmitVote  = "unsubmit-vote"
	EventStartFeature  = "start-feature"
	EventRevealResults = "reveal-results"
	EventCloseSession  = "close-session"
)

// Outbound event names delivered to clients.
const (
	EventError             = "error"
	EventSessionUpdated    = "session-updated"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventHostDisconnected  = "host-disconnected"
	EventVoteSubmitted     = "vote-submitted"
	EventVoteUnsubmitted   = "vote-unsubmitted"
	EventFeatureStarted    = "feature-started"
	EventResultsRevealed   = "results-revealed"
	EventSessionClosed     = "session-closed"
)

// Message is the outbound wire envelope.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// InboundMessage is the envelope read off a client connection. Data stays
// raw until the event name selects the payload shape.
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payloads.
type (
	JoinSessionData struct {
		SessionID     string `json:"sessionId"`
		ParticipantID string `json:"participantId"`
	}

	SubmitVoteData struct {
		SessionID     string `json:"sessionId"`
		FeatureID     string `json:"featureId"`
		ParticipantID string `json:"participantId"`
		Value         string `json:"value"`
	}

	UnsubmitVoteData struct {
		SessionID     string `json:"sessionId"`
		FeatureID     string `json:"featureId"`
		ParticipantID string `json:"participantId"`
	}

	StartFeatureData struct {
		SessionID     string `json:"sessionId"`
		ParticipantID string `json:"participantId"`
		Name          string `json:"name,omitempty"`
		Link          string `json:"link,omitempty"`
	}

	RevealResultsData struct {
		SessionID     string `json:"sessionId"`
		FeatureID     string `json:"featureId"`
		ParticipantID string `json:"participantId"`
	}

	CloseSessionData struct {
		SessionID     string `json:"sessionId"`
		ParticipantID string `json:"participantId"`
	}
)

// Outbound payloads.
type (
	ErrorData struct {
		Message string `json:"message"`
	}

	ParticipantJoinedData struct {
		Participant *models.Participant `json:"participant"`
	}

	ParticipantLeftData struct {
		ParticipantID string `json:"participantId"`
	}

	VoteSubmittedData struct {
		FeatureID     string `json:"featureId"`
		ParticipantID string `json:"participantId"`
		Value         string `json:"value"`
	}

	VoteUnsubmittedData struct {
		FeatureID     string `json:"featureId"`
		ParticipantID string `json:"participantId"`
	}

	FeatureStartedData struct {
		Feature *models.Feature `json:"feature"`
	}

	ResultsRevealedData struct {
		Feature      *models.Feature `json:"feature"`
		HasConsensus bool            `json:"hasConsensus"`
	}

	SessionClosedData struct {
		SessionID string `json:"sessionId"`
	}
)
