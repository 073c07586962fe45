package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gemdesk.app/gemdesk/internal/domain"
	"gemdesk.app/gemdesk/internal/gateway"
	"gemdesk.app/gemdesk/internal/pipeline"
	"gemdesk.app/gemdesk/internal/state"
	"gemdesk.app/gemdesk/internal/store"
)

type stubModel struct {
	reply *domain.GeneratedReply
	err   error
}

func (m *stubModel) Generate(_ context.Context, _ string, _ []domain.ImagePayload) (*domain.GeneratedReply, error) {
	return m.reply, m.err
}

type stubProvider struct {
	model domain.GenerativeModel
	err   error
}

func (p stubProvider) CurrentModel() (domain.GenerativeModel, error) {
	return p.model, p.err
}

type testApp struct {
	router  http.Handler
	state   *state.Store
	gateway *gateway.Gateway
	db      *store.Store
}

func newTestApp(t *testing.T, provider domain.ModelProvider) *testApp {
	t.Helper()
	log := zap.NewNop()

	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"), log)
	require.NoError(t, err)
	st := state.New(db, log)
	t.Cleanup(func() {
		st.Close()
		db.Close()
	})
	require.NoError(t, st.LoadSessions(context.Background()))

	gw := gateway.New(log, time.Minute)
	p := pipeline.New(st, provider, log)
	handler := NewAPIHandler(st, p, gw, db, log)
	return &testApp{router: NewRouter(handler), state: st, gateway: gw, db: db}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})

	rec := app.do(t, http.MethodPost, "/api/register", RegisterRequest{
		Username: "alice", Password: "pw", ConfirmPassword: "pw",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate username is rejected.
	rec = app.do(t, http.MethodPost, "/api/register", RegisterRequest{
		Username: "alice", Password: "pw", ConfirmPassword: "pw",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Mismatched confirmation never reaches the store.
	rec = app.do(t, http.MethodPost, "/api/register", RegisterRequest{
		Username: "bob", Password: "pw", ConfirmPassword: "other",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "alice", Password: "pw"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "nobody", Password: "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRememberMeLifecycle(t *testing.T) {
	app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})

	app.do(t, http.MethodPost, "/api/register", RegisterRequest{
		Username: "alice", Password: "pw", ConfirmPassword: "pw",
	})

	// Without rememberMe no auth state is persisted.
	app.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "alice", Password: "pw"})
	rec := app.do(t, http.MethodGet, "/api/auth", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	app.do(t, http.MethodPost, "/api/login", LoginRequest{Username: "alice", Password: "pw", RememberMe: true})
	rec = app.do(t, http.MethodGet, "/api/auth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth domain.AuthState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&auth))
	assert.Equal(t, "alice", auth.Username)
	assert.True(t, auth.IsLoggedIn)

	rec = app.do(t, http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(t, http.MethodGet, "/api/auth", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})

	rec := app.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed SessionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, listed.Sessions[0].ID, listed.CurrentSessionID)

	rec = app.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{Title: "Second"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created domain.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "Second", created.Title)

	rec = app.do(t, http.MethodPatch, "/api/sessions/"+created.ID, RenameSessionRequest{Title: "Renamed"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodPatch, "/api/sessions/"+created.ID, RenameSessionRequest{Title: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/sessions/"+listed.Sessions[0].ID+"/select", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, listed.Sessions[0].ID, app.state.Current().ID)

	rec = app.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageOverHTTP(t *testing.T) {
	app := newTestApp(t, stubProvider{model: &stubModel{reply: &domain.GeneratedReply{Text: "hi there"}}})

	rec := app.do(t, http.MethodPost, "/api/messages", SendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var modelMsg domain.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&modelMsg))
	assert.Equal(t, domain.RoleModel, modelMsg.Role)
	assert.Equal(t, "hi there", modelMsg.Content)

	messages := app.state.Current().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, domain.RoleModel, messages[1].Role)
}

func TestSendMessageFaultMapping(t *testing.T) {
	t.Run("empty turn", func(t *testing.T) {
		app := newTestApp(t, stubProvider{model: &stubModel{reply: &domain.GeneratedReply{Text: "x"}}})
		rec := app.do(t, http.MethodPost, "/api/messages", SendMessageRequest{Content: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})
		rec := app.do(t, http.MethodPost, "/api/messages", SendMessageRequest{Content: "hello"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("deprecated model", func(t *testing.T) {
		app := newTestApp(t, stubProvider{model: &stubModel{err: domain.ErrModelDeprecated}})
		rec := app.do(t, http.MethodPost, "/api/messages", SendMessageRequest{Content: "hello"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "switch to another model")
	})

	t.Run("no content", func(t *testing.T) {
		app := newTestApp(t, stubProvider{model: &stubModel{reply: &domain.GeneratedReply{}}})
		rec := app.do(t, http.MethodPost, "/api/messages", SendMessageRequest{Content: "hello"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestConfigEndpoints(t *testing.T) {
	app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})

	rec := app.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing credential is rejected before anything is persisted.
	rec = app.do(t, http.MethodPost, "/api/config", domain.Configuration{ModelName: "gemini-1.5-flash"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/config", domain.Configuration{
		APIKey: "test-key", ModelName: "gemini-1.5-flash",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg domain.Configuration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, "gemini-1.5-flash", cfg.ModelName)
}

func TestSaveConfigFailedPersistLeavesClientUntouched(t *testing.T) {
	app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})

	// Close the store so the persist fails; neither the state store nor the
	// remote client may pick up the record afterwards.
	require.NoError(t, app.db.Close())
	rec := app.do(t, http.MethodPost, "/api/config", domain.Configuration{
		APIKey: "test-key", ModelName: "gemini-1.5-flash",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	_, ok := app.state.Configuration()
	assert.False(t, ok)
	_, err := app.gateway.CurrentModel()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCommandsEndpoints(t *testing.T) {
	app := newTestApp(t, stubProvider{err: domain.ErrNotInitialized})

	rec := app.do(t, http.MethodPost, "/api/commands", RecordCommandRequest{Content: "summarize"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = app.do(t, http.MethodPost, "/api/commands", RecordCommandRequest{Content: "summarize"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/commands", RecordCommandRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/commands", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var commands []domain.Command
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&commands))
	require.Len(t, commands, 1)
	assert.Equal(t, 2, commands[0].UseCount)
}
