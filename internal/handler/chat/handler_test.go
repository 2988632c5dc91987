package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	triagemodel "github.com/zhouzirui/z-haven/backend/internal/model/triage"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage/triagetest"
)

func setupRouter(t *testing.T, category triagemodel.Category) (*chi.Mux, *triagetest.Env) {
	env := triagetest.New(t, category)
	handler := New(env.Workflow, env.Chat, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, env
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestOpenSession(t *testing.T) {
	r, _ := setupRouter(t, triagemodel.Neutral)

	resp := doJSON(r, http.MethodPost, "/sessions", map[string]string{
		"ownerId":     "u1",
		"displayName": "Kavya",
		"locale":      "ta",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var snapshot triage.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snapshot))
	require.Equal(t, "u1", snapshot.OwnerID)
	require.Equal(t, "Kavya", snapshot.DisplayName)
	require.Equal(t, locale.Tamil, snapshot.Locale)
	require.Empty(t, snapshot.Transcript)
}

func TestOpenSessionValidation(t *testing.T) {
	r, _ := setupRouter(t, triagemodel.Neutral)

	cases := []struct {
		name string
		body any
	}{
		{name: "missing owner", body: map[string]string{}},
		{name: "unknown locale", body: map[string]string{"ownerId": "u1", "locale": "klingon"}},
		{name: "not json", body: "plain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(r, http.MethodPost, "/sessions", tc.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestSubmitEmergency(t *testing.T) {
	r, env := setupRouter(t, triagemodel.Emergency)

	resp := doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": "help me now"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "emergency", body["category"])
	require.Equal(t, "tel:14416", body["dial"])
	require.Equal(t, true, body["persisted"])
	require.NotContains(t, body, "error")
	require.Contains(t, body["text"], "14416")
	require.Equal(t, []string{"14416"}, env.Dialer.Numbers)
}

func TestSubmitDistressReturnsEscalation(t *testing.T) {
	r, env := setupRouter(t, triagemodel.Distress)

	resp := doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": "I feel hopeless"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Text       string `json:"text"`
		Escalation struct {
			ResponderName string `json:"responderName"`
		} `json:"escalation"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "Dr. A", body.Escalation.ResponderName)
	require.Contains(t, body.Text, "Dr. A (555)")

	records, err := env.Escalations.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSubmitReportsHandledFailure(t *testing.T) {
	r, env := setupRouter(t, triagemodel.Neutral)
	env.Classifier.Err = context.DeadlineExceeded

	resp := doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "classification_failure", body["error"])
	require.Equal(t, locale.English.Catalog().GenericError, body["text"])
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	r, _ := setupRouter(t, triagemodel.Neutral)

	resp := doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": ""})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": "   "})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListMessagesAndClear(t *testing.T) {
	r, _ := setupRouter(t, triagemodel.Neutral)

	resp := doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(r, http.MethodGet, "/sessions/u1/messages", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var messages []chat.Message
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &messages))
	require.Len(t, messages, 2)
	require.Equal(t, chat.Incoming, messages[0].Direction)
	require.Equal(t, "ok", messages[1].Text)

	resp = doJSON(r, http.MethodDelete, "/sessions/u1/messages", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var cleared clearResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cleared))
	require.Equal(t, uint64(1), cleared.Session.Epoch)
	require.Equal(t, locale.English.Catalog().Cleared, cleared.Notice)

	resp = doJSON(r, http.MethodGet, "/sessions/u1/messages", nil)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &messages))
	require.Empty(t, messages)
}

func TestLocaleRoutes(t *testing.T) {
	r, _ := setupRouter(t, triagemodel.Neutral)

	resp := doJSON(r, http.MethodPut, "/sessions/u1/locale", map[string]string{"locale": "tamil"})
	require.Equal(t, http.StatusOK, resp.Code)
	var snapshot triage.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snapshot))
	require.Equal(t, locale.Tamil, snapshot.Locale)

	resp = doJSON(r, http.MethodPost, "/sessions/u1/locale/toggle", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snapshot))
	require.Equal(t, locale.English, snapshot.Locale)

	resp = doJSON(r, http.MethodPut, "/sessions/u1/locale", map[string]string{"locale": "fr"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetSession(t *testing.T) {
	r, _ := setupRouter(t, triagemodel.Neutral)

	doJSON(r, http.MethodPost, "/sessions/u1/messages", map[string]string{"text": "hello"})

	resp := doJSON(r, http.MethodGet, "/sessions/u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var snapshot triage.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Transcript, 2)
	require.Equal(t, triagemodel.StateIdle, snapshot.State)
}
