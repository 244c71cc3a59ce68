package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/pointdeck/pointdeck/internal/database/testutil"
	"github.com/pointdeck/pointdeck/internal/models"
	"github.com/pointdeck/pointdeck/internal/services"
)

// coordFixture runs the coordinator against the real sqlite-backed store so
// the tests exercise the full validate-apply-broadcast path.
type coordFixture struct {
	t           *testing.T
	coordinator *Coordinator
	hub         *Hub
	registry    *Registry
	clock       *clockwork.FakeClock
	store       *services.CoordinatorStore
	features    *services.FeatureService
	sessionID   string
	hostID      string

	// addParticipant registers a participant the way the REST layer would,
	// before it opens a socket.
	addParticipant func(id, name string)
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	sessions, err := services.NewSessionService(db)
	require.NoError(t, err)
	participants, err := services.NewParticipantService(db)
	require.NoError(t, err)
	features, err := services.NewFeatureService(db)
	require.NoError(t, err)
	cleanup, err := services.NewCleanupService(db)
	require.NoError(t, err)

	store, err := services.NewCoordinatorStore(sessions, participants, features, cleanup)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	hub := NewHub()
	registry := NewRegistry(WithClock(clock), WithGracePeriod(3*time.Second))
	coordinator := NewCoordinator(store, hub, registry)

	result, err := sessions.Create(context.Background(), services.CreateSessionInput{
		HostName:       "alice",
		HostEmail:      "alice@example.com",
		EstimationType: models.EstimationFibonacci,
	})
	require.NoError(t, err)

	fixture := &coordFixture{
		t:           t,
		coordinator: coordinator,
		hub:         hub,
		registry:    registry,
		clock:       clock,
		store:       store,
		features:    features,
		sessionID:   result.SessionID,
		hostID:      result.HostParticipantID,
	}

	// Extra participants join over REST before they ever open a socket.
	fixture.addParticipant = func(id, name string) {
		t.Helper()
		_, err := participants.Join(context.Background(), services.JoinSessionInput{
			SessionID:     fixture.sessionID,
			ParticipantID: id,
			Name:          name,
		})
		require.NoError(t, err)
	}
	return fixture
}

func (f *coordFixture) dispatch(conn Conn, event string, payload any) {
	f.t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(f.t, err)
	f.coordinator.Dispatch(context.Background(), conn, InboundMessage{Event: event, Data: raw})
}

func (f *coordFixture) join(conn Conn, participantID string) {
	f.t.Helper()
	f.dispatch(conn, EventJoinSession, JoinSessionData{
		SessionID:     f.sessionID,
		ParticipantID: participantID,
	})
}

func TestJoinRejectsUnknownSession(t *testing.T) {
	f := newCoordFixture(t)
	conn := &fakeConn{}

	f.dispatch(conn, EventJoinSession, JoinSessionData{
		SessionID:     "no-such-session",
		ParticipantID: f.hostID,
	})

	msg, ok := conn.lastOf(EventError)
	require.True(t, ok)
	require.Equal(t, ErrorData{Message: "Session not found or expired"}, msg.Data)
	require.Zero(t, f.hub.RoomSize("no-such-session"))
}

func TestJoinRejectsUnknownParticipant(t *testing.T) {
	f := newCoordFixture(t)
	conn := &fakeConn{}

	f.join(conn, "stranger")

	msg, ok := conn.lastOf(EventError)
	require.True(t, ok)
	require.Equal(t, ErrorData{Message: "Participant not found in session"}, msg.Data)
	require.False(t, f.registry.Bound("stranger"))
	require.Zero(t, f.hub.RoomSize(f.sessionID))
}

func TestJoinBroadcastsAndSyncsState(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)

	sync, ok := hostConn.lastOf(EventSessionUpdated)
	require.True(t, ok)
	snapshot, isSnapshot := sync.Data.(*models.SessionSnapshot)
	require.True(t, isSnapshot)
	require.Equal(t, f.sessionID, snapshot.Session.ID)

	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")

	joined, ok := hostConn.lastOf(EventParticipantJoined)
	require.True(t, ok)
	require.Equal(t, "p-bob", joined.Data.(ParticipantJoinedData).Participant.ID)

	_, ok = bobConn.lastOf(EventSessionUpdated)
	require.True(t, ok)
}

func TestReconnectSuppressesJoinBroadcast(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)

	firstTab := &fakeConn{}
	f.join(firstTab, "p-bob")
	require.Equal(t, 1, hostConn.countOf(EventParticipantJoined))

	// Second socket for the same participant: state sync only, no rejoin
	// announcement.
	secondTab := &fakeConn{}
	f.join(secondTab, "p-bob")
	require.Equal(t, 1, hostConn.countOf(EventParticipantJoined))
	require.Equal(t, 1, secondTab.countOf(EventSessionUpdated))
}

func TestVoteLastWriteWins(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)

	feature, err := f.store.CreateFeature(ctx, f.sessionID, "checkout", "")
	require.NoError(t, err)

	vote := func(value string) {
		f.dispatch(hostConn, EventSubmitVote, SubmitVoteData{
			SessionID:     f.sessionID,
			FeatureID:     feature.ID,
			ParticipantID: f.hostID,
			Value:         value,
		})
	}
	vote("3")
	vote("8")

	require.Equal(t, 2, hostConn.countOf(EventVoteSubmitted))
	last, _ := hostConn.lastOf(EventVoteSubmitted)
	require.Equal(t, VoteSubmittedData{
		FeatureID:     feature.ID,
		ParticipantID: f.hostID,
		Value:         "8",
	}, last.Data)

	loaded, err := f.features.Get(ctx, feature.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Votes, 1)
	require.Equal(t, "8", loaded.Votes[0].Value)
}

func TestUnsubmitAbsentVoteStillBroadcasts(t *testing.T) {
	f := newCoordFixture(t)

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)

	feature, err := f.store.CreateFeature(context.Background(), f.sessionID, "", "")
	require.NoError(t, err)

	f.dispatch(hostConn, EventUnsubmitVote, UnsubmitVoteData{
		SessionID:     f.sessionID,
		FeatureID:     feature.ID,
		ParticipantID: f.hostID,
	})

	require.Zero(t, hostConn.countOf(EventError))
	require.Equal(t, 1, hostConn.countOf(EventVoteUnsubmitted))
}

func TestVoteRequiresSessionMembership(t *testing.T) {
	f := newCoordFixture(t)

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)

	outsider := &fakeConn{}
	f.dispatch(outsider, EventSubmitVote, SubmitVoteData{
		SessionID:     f.sessionID,
		FeatureID:     "f-1",
		ParticipantID: "stranger",
		Value:         "5",
	})

	msg, ok := outsider.lastOf(EventError)
	require.True(t, ok)
	require.Equal(t, ErrorData{Message: "Unauthorized"}, msg.Data)
	require.Zero(t, hostConn.countOf(EventVoteSubmitted))
}

func TestHostOnlyActionsRejectNonHost(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)
	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")
	hostSeen := len(hostConn.received())

	f.dispatch(bobConn, EventStartFeature, StartFeatureData{
		SessionID:     f.sessionID,
		ParticipantID: "p-bob",
		Name:          "rogue feature",
	})
	msg, _ := bobConn.lastOf(EventError)
	require.Equal(t, ErrorData{Message: "Only the host can start features"}, msg.Data)

	f.dispatch(bobConn, EventRevealResults, RevealResultsData{
		SessionID:     f.sessionID,
		FeatureID:     "f-1",
		ParticipantID: "p-bob",
	})
	msg, _ = bobConn.lastOf(EventError)
	require.Equal(t, ErrorData{Message: "Only the host can reveal results"}, msg.Data)

	f.dispatch(bobConn, EventCloseSession, CloseSessionData{
		SessionID:     f.sessionID,
		ParticipantID: "p-bob",
	})
	msg, _ = bobConn.lastOf(EventError)
	require.Equal(t, ErrorData{Message: "Only the host can close the session"}, msg.Data)

	// Rejections never leak into the room and never touch stored state.
	require.Len(t, hostConn.received(), hostSeen)
	valid, err := f.store.IsSessionValid(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.True(t, valid)
	snapshot, err := f.store.GetSnapshot(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.Empty(t, snapshot.Session.Features)
}

func TestEstimationRound(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)
	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")

	f.dispatch(hostConn, EventStartFeature, StartFeatureData{
		SessionID:     f.sessionID,
		ParticipantID: f.hostID,
		Name:          "login page",
	})
	started, ok := bobConn.lastOf(EventFeatureStarted)
	require.True(t, ok)
	feature := started.Data.(FeatureStartedData).Feature
	require.Equal(t, "login page", feature.Name)
	require.False(t, feature.IsRevealed)

	vote := func(participantID, value string) {
		f.dispatch(hostConn, EventSubmitVote, SubmitVoteData{
			SessionID:     f.sessionID,
			FeatureID:     feature.ID,
			ParticipantID: participantID,
			Value:         value,
		})
	}

	// Round one: split votes, no consensus.
	vote(f.hostID, "5")
	vote("p-bob", "8")
	f.dispatch(hostConn, EventRevealResults, RevealResultsData{
		SessionID:     f.sessionID,
		FeatureID:     feature.ID,
		ParticipantID: f.hostID,
	})

	revealed, ok := bobConn.lastOf(EventResultsRevealed)
	require.True(t, ok)
	result := revealed.Data.(ResultsRevealedData)
	require.True(t, result.Feature.IsRevealed)
	require.False(t, result.HasConsensus)

	// Round two on a fresh feature: unanimous.
	f.dispatch(hostConn, EventStartFeature, StartFeatureData{
		SessionID:     f.sessionID,
		ParticipantID: f.hostID,
		Name:          "login page, take two",
	})
	started, _ = bobConn.lastOf(EventFeatureStarted)
	second := started.Data.(FeatureStartedData).Feature

	f.dispatch(hostConn, EventSubmitVote, SubmitVoteData{
		SessionID: f.sessionID, FeatureID: second.ID, ParticipantID: f.hostID, Value: "3",
	})
	f.dispatch(hostConn, EventSubmitVote, SubmitVoteData{
		SessionID: f.sessionID, FeatureID: second.ID, ParticipantID: "p-bob", Value: "3",
	})
	f.dispatch(hostConn, EventRevealResults, RevealResultsData{
		SessionID:     f.sessionID,
		FeatureID:     second.ID,
		ParticipantID: f.hostID,
	})

	revealed, _ = bobConn.lastOf(EventResultsRevealed)
	result = revealed.Data.(ResultsRevealedData)
	require.True(t, result.HasConsensus)

	// Revealing again is idempotent and re-broadcasts the revealed state.
	f.dispatch(hostConn, EventRevealResults, RevealResultsData{
		SessionID:     f.sessionID,
		FeatureID:     second.ID,
		ParticipantID: f.hostID,
	})
	require.Equal(t, 3, bobConn.countOf(EventResultsRevealed))
	require.Zero(t, bobConn.countOf(EventError))
}

func TestDepartureAfterGraceBroadcastsOnce(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)
	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")

	f.coordinator.ConnectionClosed(bobConn)

	f.clock.Advance(2 * time.Second)
	require.Never(t, func() bool {
		return hostConn.countOf(EventParticipantLeft) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)

	f.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		return hostConn.countOf(EventParticipantLeft) == 1
	}, time.Second, 10*time.Millisecond)

	left, _ := hostConn.lastOf(EventParticipantLeft)
	require.Equal(t, ParticipantLeftData{ParticipantID: "p-bob"}, left.Data)

	// The participant record stays in the session for a later rejoin.
	exists, err := f.store.ParticipantExistsInSession(context.Background(), "p-bob", f.sessionID)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestHostDepartureBroadcastsHostDisconnected(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)
	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")

	f.coordinator.ConnectionClosed(hostConn)
	f.clock.Advance(4 * time.Second)

	require.Eventually(t, func() bool {
		return bobConn.countOf(EventHostDisconnected) == 1
	}, time.Second, 10*time.Millisecond)
	require.Zero(t, bobConn.countOf(EventParticipantLeft))
}

func TestReconnectWithinGraceIsSilent(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)
	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")
	require.Equal(t, 1, hostConn.countOf(EventParticipantJoined))

	f.coordinator.ConnectionClosed(bobConn)
	f.clock.Advance(1 * time.Second)

	newTab := &fakeConn{}
	f.join(newTab, "p-bob")

	f.clock.Advance(10 * time.Second)
	require.Never(t, func() bool {
		return hostConn.countOf(EventParticipantLeft) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)

	// No second join announcement either: the room never learned bob was gone.
	require.Equal(t, 1, hostConn.countOf(EventParticipantJoined))
	require.Equal(t, 1, newTab.countOf(EventSessionUpdated))
}

func TestCloseSessionEvictsRoom(t *testing.T) {
	f := newCoordFixture(t)
	f.addParticipant("p-bob", "bob")

	hostConn := &fakeConn{}
	f.join(hostConn, f.hostID)
	bobConn := &fakeConn{}
	f.join(bobConn, "p-bob")

	f.dispatch(hostConn, EventCloseSession, CloseSessionData{
		SessionID:     f.sessionID,
		ParticipantID: f.hostID,
	})

	closed, ok := bobConn.lastOf(EventSessionClosed)
	require.True(t, ok)
	require.Equal(t, SessionClosedData{SessionID: f.sessionID}, closed.Data)
	require.Equal(t, 1, hostConn.countOf(EventSessionClosed))

	require.Zero(t, f.hub.RoomSize(f.sessionID))
	require.False(t, f.registry.Bound(f.hostID))
	require.False(t, f.registry.Bound("p-bob"))

	valid, err := f.store.IsSessionValid(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestSessionLockSerialisesAcrossDrop(t *testing.T) {
	f := newCoordFixture(t)

	// Stands in for the close-session action: it holds the session mutex
	// while discarding it from the map.
	holder := f.coordinator.lockSession(f.sessionID)

	var active atomic.Int32
	overlap := make(chan int32, 2)
	var wg sync.WaitGroup
	contend := func() {
		defer wg.Done()
		unlock := f.coordinator.lockSession(f.sessionID)
		if n := active.Add(1); n != 1 {
			overlap <- n
		}
		time.Sleep(50 * time.Millisecond)
		active.Add(-1)
		unlock()
	}

	// Blocks on the mutex that is about to be discarded.
	wg.Add(1)
	go contend()
	time.Sleep(20 * time.Millisecond)

	f.coordinator.dropSessionLock(f.sessionID)

	// Mints a replacement mutex and enters immediately.
	wg.Add(1)
	go contend()
	time.Sleep(20 * time.Millisecond)

	// Releasing the discarded mutex frees the first contender, which must
	// queue behind the replacement instead of entering alongside its holder.
	holder()
	wg.Wait()

	select {
	case n := <-overlap:
		t.Fatalf("%d actions ran their apply phase concurrently", n)
	default:
	}
}

func TestInvalidPayloadReportsError(t *testing.T) {
	f := newCoordFixture(t)
	conn := &fakeConn{}

	f.coordinator.Dispatch(context.Background(), conn, InboundMessage{
		Event: EventJoinSession,
		Data:  json.RawMessage(`"not an object"`),
	})

	msg, ok := conn.lastOf(EventError)
	require.True(t, ok)
	require.Equal(t, ErrorData{Message: "Invalid payload"}, msg.Data)
}
