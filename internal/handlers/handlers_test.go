package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pointdeck/pointdeck/internal/database/testutil"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	sessions, err := NewSessionHandler(db)
	require.NoError(t, err)
	features, err := NewFeatureHandler(db)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/api/health", Health())
	r.POST("/api/sessions", sessions.Create)
	r.GET("/api/sessions/:sessionId", sessions.Get)
	r.POST("/api/sessions/:sessionId/participants", sessions.Join)
	r.GET("/api/sessions/:sessionId/features", features.List)
	r.POST("/api/sessions/:sessionId/features", features.Create)
	r.POST("/api/sessions/:sessionId/features/:featureId/reveal", features.Reveal)
	return r
}

func perform(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func dataField(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	body := decodeBody(t, w)
	require.Equal(t, true, body["success"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	return data
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	body := decodeBody(t, w)
	require.Equal(t, false, body["success"])
	errInfo, ok := body["error"].(map[string]any)
	require.True(t, ok)
	message, _ := errInfo["message"].(string)
	return message
}

// createSession opens a session and returns (sessionID, hostParticipantID).
func createSession(t *testing.T, r *gin.Engine) (string, string) {
	t.Helper()

	w := perform(t, r, http.MethodPost, "/api/sessions", gin.H{
		"hostName":       "alice",
		"hostEmail":      "alice@example.com",
		"estimationType": "FIBONACCI",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	data := dataField(t, w)
	return data["sessionId"].(string), data["hostParticipantId"].(string)
}
