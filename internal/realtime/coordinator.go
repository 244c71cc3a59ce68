package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/models"
	"github.com/pointdeck/pointdeck/pkg/logger"
)

// Store is the durable session state the coordinator validates against and
// mutates. Implemented by the services layer; tests substitute fakes or an
// in-memory database.
type Store interface {
	IsSessionValid(ctx context.Context, sessionID string) (bool, error)
	IsHost(ctx context.Context, sessionID, participantID string) (bool, error)
	GetParticipant(ctx context.Context, participantID string) (*models.Participant, error)
	ParticipantExistsInSession(ctx context.Context, participantID, sessionID string) (bool, error)
	GetSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, error)
	CreateFeature(ctx context.Context, sessionID, name, link string) (*models.Feature, error)
	SubmitVote(ctx context.Context, featureID, participantID, value string) (*models.Vote, error)
	DeleteVote(ctx context.Context, featureID, participantID string) error
	RevealResults(ctx context.Context, featureID string) (*models.Feature, error)
	CheckConsensus(ctx context.Context, featureID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Coordinator processes every realtime action as an atomic
// validate-then-apply-then-broadcast step. Actions for the same session are
// serialised through a per-session mutex so two concurrent mutations can
// never interleave their apply phases; different sessions never block each
// other.
type Coordinator struct {
	store    Store
	hub      *Hub
	registry *Registry
	log      *zap.Logger

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
	identities   map[Conn]identity
}

type identity struct {
	participantID string
	sessionID     string
}

// NewCoordinator wires the coordinator to its store, hub, and registry. The
// registry's departure callback is claimed by the coordinator.
func NewCoordinator(store Store, hub *Hub, registry *Registry) *Coordinator {
	c := &Coordinator{
		store:        store,
		hub:          hub,
		registry:     registry,
		log:          logger.WithModule("coordinator"),
		sessionLocks: make(map[string]*sync.Mutex),
		identities:   make(map[Conn]identity),
	}
	registry.OnDeparture(c.handleDeparture)
	return c
}

// lockSession serialises the apply phase for one session. The acquired mutex
// is re-checked against the map: close-session discards a session's mutex
// while waiters may still be blocked on it, and a waiter that wins a
// discarded mutex must retry on the replacement or it would run concurrently
// with whichever action minted it.
func (c *Coordinator) lockSession(sessionID string) func() {
	for {
		c.mu.Lock()
		lock, ok := c.sessionLocks[sessionID]
		if !ok {
			lock = &sync.Mutex{}
			c.sessionLocks[sessionID] = lock
		}
		c.mu.Unlock()

		lock.Lock()

		c.mu.Lock()
		current := c.sessionLocks[sessionID]
		c.mu.Unlock()
		if current == lock {
			return lock.Unlock
		}
		lock.Unlock()
	}
}

func (c *Coordinator) dropSessionLock(sessionID string) {
	c.mu.Lock()
	delete(c.sessionLocks, sessionID)
	c.mu.Unlock()
}

// Dispatch routes one inbound message to its action handler. Malformed
// payloads and failed actions surface as unicast error events and never
// crash the handler task.
func (c *Coordinator) Dispatch(ctx context.Context, conn Conn, msg InboundMessage) {
	switch msg.Event {
	case EventJoinSession:
		var data JoinSessionData
		if !c.decode(conn, msg.Data, &data) {
			return
		}
		c.handleJoin(ctx, conn, data)
	case EventSubmitVote:
		var data SubmitVoteData
		if !c.decode(conn, msg.Data, &data) {
			return
		}
		c.handleSubmitVote(ctx, conn, data)
	case EventUnsubmitVote:
		var data UnsubmitVoteData
		if !c.decode(conn, msg.Data, &data) {
			return
		}
		c.handleUnsubmitVote(ctx, conn, data)
	case EventStartFeature:
		var data StartFeatureData
		if !c.decode(conn, msg.Data, &data) {
			return
		}
		c.handleStartFeature(ctx, conn, data)
	case EventRevealResults:
		var data RevealResultsData
		if !c.decode(conn, msg.Data, &data) {
			return
		}
		c.handleRevealResults(ctx, conn, data)
	case EventCloseSession:
		var data CloseSessionData
		if !c.decode(conn, msg.Data, &data) {
			return
		}
		c.handleCloseSession(ctx, conn, data)
	default:
		c.log.Warn("unsupported event", zap.String("event", msg.Event))
	}
}

func (c *Coordinator) decode(conn Conn, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		c.log.Warn("invalid payload", zap.Error(err))
		c.sendError(conn, "Invalid payload")
		return false
	}
	return true
}

func (c *Coordinator) sendError(conn Conn, message string) {
	conn.Send(EventError, ErrorData{Message: message})
}

func (c *Coordinator) fail(conn Conn, message string, err error) {
	c.log.Error(message, zap.Error(err))
	c.sendError(conn, message)
}

func (c *Coordinator) handleJoin(ctx context.Context, conn Conn, data JoinSessionData) {
	defer c.lockSession(data.SessionID)()

	valid, err := c.store.IsSessionValid(ctx, data.SessionID)
	if err != nil {
		c.fail(conn, "Failed to join session", err)
		return
	}
	if !valid {
		c.sendError(conn, "Session not found or expired")
		return
	}

	exists, err := c.store.ParticipantExistsInSession(ctx, data.ParticipantID, data.SessionID)
	if err != nil {
		c.fail(conn, "Failed to join session", err)
		return
	}
	if !exists {
		c.sendError(conn, "Participant not found in session")
		return
	}

	participant, err := c.store.GetParticipant(ctx, data.ParticipantID)
	if err != nil {
		c.fail(conn, "Failed to join session", err)
		return
	}

	snapshot, err := c.store.GetSnapshot(ctx, data.SessionID)
	if err != nil {
		c.fail(conn, "Failed to join session", err)
		return
	}

	// Registry and hub are touched only after every store read succeeded.
	c.hub.Join(conn, data.SessionID)
	reconnect := c.registry.Bind(data.ParticipantID, data.SessionID, conn)

	c.mu.Lock()
	c.identities[conn] = identity{participantID: data.ParticipantID, sessionID: data.SessionID}
	c.mu.Unlock()

	if !reconnect {
		c.hub.Broadcast(data.SessionID, EventParticipantJoined, ParticipantJoinedData{Participant: participant})
	}

	// The joiner always gets a full state sync, reconnect or not.
	conn.Send(EventSessionUpdated, snapshot)

	c.log.Info("participant joined session",
		zap.String("session_id", data.SessionID),
		zap.String("participant_id", data.ParticipantID),
		zap.Bool("reconnect", reconnect))
}

func (c *Coordinator) handleSubmitVote(ctx context.Context, conn Conn, data SubmitVoteData) {
	defer c.lockSession(data.SessionID)()

	exists, err := c.store.ParticipantExistsInSession(ctx, data.ParticipantID, data.SessionID)
	if err != nil {
		c.fail(conn, "Failed to submit vote", err)
		return
	}
	if !exists {
		c.sendError(conn, "Unauthorized")
		return
	}

	if _, err := c.store.SubmitVote(ctx, data.FeatureID, data.ParticipantID, data.Value); err != nil {
		c.fail(conn, "Failed to submit vote", err)
		return
	}

	c.hub.Broadcast(data.SessionID, EventVoteSubmitted, VoteSubmittedData{
		FeatureID:     data.FeatureID,
		ParticipantID: data.ParticipantID,
		Value:         data.Value,
	})
}

func (c *Coordinator) handleUnsubmitVote(ctx context.Context, conn Conn, data UnsubmitVoteData) {
	defer c.lockSession(data.SessionID)()

	exists, err := c.store.ParticipantExistsInSession(ctx, data.ParticipantID, data.SessionID)
	if err != nil {
		c.fail(conn, "Failed to unsubmit vote", err)
		return
	}
	if !exists {
		c.sendError(conn, "Unauthorized")
		return
	}

	if err := c.store.DeleteVote(ctx, data.FeatureID, data.ParticipantID); err != nil {
		c.fail(conn, "Failed to unsubmit vote", err)
		return
	}

	c.hub.Broadcast(data.SessionID, EventVoteUnsubmitted, VoteUnsubmittedData{
		FeatureID:     data.FeatureID,
		ParticipantID: data.ParticipantID,
	})
}

func (c *Coordinator) handleStartFeature(ctx context.Context, conn Conn, data StartFeatureData) {
	defer c.lockSession(data.SessionID)()

	isHost, err := c.store.IsHost(ctx, data.SessionID, data.ParticipantID)
	if err != nil {
		c.fail(conn, "Failed to start feature", err)
		return
	}
	if !isHost {
		c.sendError(conn, "Only the host can start features")
		return
	}

	feature, err := c.store.CreateFeature(ctx, data.SessionID, data.Name, data.Link)
	if err != nil {
		c.fail(conn, "Failed to start feature", err)
		return
	}

	c.hub.Broadcast(data.SessionID, EventFeatureStarted, FeatureStartedData{Feature: feature})
}

func (c *Coordinator) handleRevealResults(ctx context.Context, conn Conn, data RevealResultsData) {
	defer c.lockSession(data.SessionID)()

	isHost, err := c.store.IsHost(ctx, data.SessionID, data.ParticipantID)
	if err != nil {
		c.fail(conn, "Failed to reveal results", err)
		return
	}
	if !isHost {
		c.sendError(conn, "Only the host can reveal results")
		return
	}

	feature, err := c.store.RevealResults(ctx, data.FeatureID)
	if err != nil {
		c.fail(conn, "Failed to reveal results", err)
		return
	}

	consensus, err := c.store.CheckConsensus(ctx, data.FeatureID)
	if err != nil {
		c.fail(conn, "Failed to reveal results", err)
		return
	}

	c.hub.Broadcast(data.SessionID, EventResultsRevealed, ResultsRevealedData{
		Feature:      feature,
		HasConsensus: consensus,
	})
}

func (c *Coordinator) handleCloseSession(ctx context.Context, conn Conn, data CloseSessionData) {
	unlock := c.lockSession(data.SessionID)
	defer unlock()

	isHost, err := c.store.IsHost(ctx, data.SessionID, data.ParticipantID)
	if err != nil {
		c.fail(conn, "Failed to close session", err)
		return
	}
	if !isHost {
		c.sendError(conn, "Only the host can close the session")
		return
	}

	if err := c.store.DeleteSession(ctx, data.SessionID); err != nil {
		c.fail(conn, "Failed to close session", err)
		return
	}

	c.hub.Broadcast(data.SessionID, EventSessionClosed, SessionClosedData{SessionID: data.SessionID})

	// Once clients act on session-closed the room ceases to matter: evict
	// every connection and cancel any pending grace timers.
	c.hub.CloseRoom(data.SessionID)
	c.registry.DropSession(data.SessionID)
	c.dropSessionLock(data.SessionID)

	c.log.Info("session closed by host", zap.String("session_id", data.SessionID))
}

// ConnectionClosed is invoked by the transport when a connection drops. The
// participant keeps its grace window; the hub subscription stays live so a
// departure broadcast after expiry still reaches the rest of the room.
func (c *Coordinator) ConnectionClosed(conn Conn) {
	c.mu.Lock()
	id, ok := c.identities[conn]
	delete(c.identities, conn)
	c.mu.Unlock()

	c.hub.Leave(conn)
	if !ok {
		return
	}

	c.registry.Unbind(id.participantID, conn)
}

// handleDeparture runs when a grace period expires with no reconnect. Host
// status is re-checked at expiry time, not at disconnect time.
func (c *Coordinator) handleDeparture(participantID, sessionID string) {
	defer c.lockSession(sessionID)()

	isHost, err := c.store.IsHost(context.Background(), sessionID, participantID)
	if err != nil {
		c.log.Error("departure host check failed",
			zap.String("participant_id", participantID), zap.Error(err))
		return
	}

	if isHost {
		// The session stays host-less until explicitly closed; the host role
		// is never transferred.
		c.hub.Broadcast(sessionID, EventHostDisconnected, struct{}{})
		c.log.Info("host disconnected", zap.String("session_id", sessionID))
		return
	}

	c.hub.Broadcast(sessionID, EventParticipantLeft, ParticipantLeftData{ParticipantID: participantID})
	c.log.Info("participant left",
		zap.String("session_id", sessionID),
		zap.String("participant_id", participantID))
}
