package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCreateFeatureRequiresHost(t *testing.T) {
	r := newTestRouter(t)
	sessionID, _ := createSession(t, r)

	w := perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/participants", gin.H{
		"participantId": "p-bob",
		"name":          "bob",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features", gin.H{
		"participantId": "p-bob",
		"name":          "rogue",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Only the host can start features", errorMessage(t, w))
}

func TestCreateAndListFeatures(t *testing.T) {
	r := newTestRouter(t)
	sessionID, hostID := createSession(t, r)

	w := perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features", gin.H{
		"participantId": hostID,
		"name":          "checkout flow",
		"link":          "https://tracker/42",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	created := dataField(t, w)
	require.Equal(t, "checkout flow", created["name"])
	require.Equal(t, false, created["isRevealed"])

	w = perform(t, r, http.MethodGet, "/api/sessions/"+sessionID+"/features", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	features, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, features, 1)
}

func TestRevealFeature(t *testing.T) {
	r := newTestRouter(t)
	sessionID, hostID := createSession(t, r)

	w := perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features", gin.H{
		"participantId": hostID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	featureID := dataField(t, w)["id"].(string)

	w = perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features/"+featureID+"/reveal", gin.H{
		"participantId": hostID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := dataField(t, w)
	feature := data["feature"].(map[string]any)
	require.Equal(t, true, feature["isRevealed"])
	require.Equal(t, false, data["hasConsensus"])
}

func TestRevealFeatureRequiresHost(t *testing.T) {
	r := newTestRouter(t)
	sessionID, hostID := createSession(t, r)

	w := perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features", gin.H{
		"participantId": hostID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	featureID := dataField(t, w)["id"].(string)

	w = perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features/"+featureID+"/reveal", gin.H{
		"participantId": "stranger",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Only the host can reveal results", errorMessage(t, w))
}

func TestRevealMissingFeature(t *testing.T) {
	r := newTestRouter(t)
	sessionID, hostID := createSession(t, r)

	w := perform(t, r, http.MethodPost, "/api/sessions/"+sessionID+"/features/missing/reveal", gin.H{
		"participantId": hostID,
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Feature not found", errorMessage(t, w))
}
