package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/privacydesk/internal/api"
	"github.com/breatheroute/privacydesk/internal/api/handler"
	"github.com/breatheroute/privacydesk/internal/api/models"
	"github.com/breatheroute/privacydesk/internal/app"
	"github.com/breatheroute/privacydesk/internal/auth"
	"github.com/breatheroute/privacydesk/internal/content"
	"github.com/breatheroute/privacydesk/internal/featureflags"
	"github.com/breatheroute/privacydesk/internal/notify"
	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/user"
)

const testSigningKey = "test-secret-key-for-testing-only"

// outbox records confirmations instead of sending them.
type outbox struct {
	mu   sync.Mutex
	sent []notify.Confirmation
	err  error
}

func (o *outbox) SendConfirmation(_ context.Context, c notify.Confirmation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, c)
	return nil
}

func (o *outbox) last(t *testing.T) notify.Confirmation {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no confirmation sent")
	return o.sent[len(o.sent)-1]
}

type testEnv struct {
	app    *app.App
	router http.Handler
	outbox *outbox
	jwt    *auth.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	a := app.New(app.Options{Backends: app.MemoryBackends(), Logger: logger})
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "https://privacy.breatheroute.nl",
		Audience:   "privacydesk-admin",
	})
	box := &outbox{}

	router := api.NewRouter(api.RouterConfig{
		Version:        "test",
		BuildTime:      "2024-01-01T00:00:00Z",
		Logger:         logger,
		RequestService: a.Requests,
		UserService:    a.Users,
		FlagService:    a.Flags,
		Notifier:       box,
		JWTService:     jwtService,
		Health:         a.Health,
		AllowedOrigins: []string{"https://example.org"},
	})
	return &testEnv{app: a, router: router, outbox: box, jwt: jwtService}
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := e.jwt.IssueToken("adm_test", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+e.adminToken(t))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, email string) *user.User {
	t.Helper()
	u, err := e.app.Users.Register(context.Background(), email, "Test Subject")
	require.NoError(t, err)
	return u
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", nil, false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	decodeBody(t, w, &health)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck_FailingProbe(t *testing.T) {
	logger := zerolog.New(io.Discard)
	a := app.New(app.Options{Backends: app.MemoryBackends(), Logger: logger})
	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		FlagService: a.Flags,
		JWTService:  auth.NewJWTService(auth.JWTConfig{SigningKey: testSigningKey}),
		Probes: map[string]handler.ReadinessProbe{
			"database": func(context.Context) error { return errors.New("connection refused") },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "connection refused", health.Details["database"])
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", nil, false)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRouter_CreateAndConfirm(t *testing.T) {
	env := newTestEnv(t)
	subject := env.register(t, "jane@example.org")

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email":   "Jane@Example.org",
		"type":    "access",
		"details": "<b>please</b> send my data",
	}, false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted models.RequestAccepted
	decodeBody(t, w, &accepted)
	assert.Equal(t, models.RequestStatusPendingConfirmation, accepted.Status)
	assert.NotNil(t, accepted.ExpiresAt)
	assert.NotContains(t, w.Body.String(), "token")

	sent := env.outbox.last(t)
	assert.Equal(t, "jane@example.org", sent.Email)
	assert.Len(t, sent.Token, requests.KeyLength)

	current, ok, err := env.app.Registry.Resolve(context.Background(), subject.ID, requests.TypeAccess)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sent.Token, current)

	w = env.do(t, http.MethodPost, "/v1/gdpr/requests/"+sent.Token+"/confirm", nil, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	record, err := env.app.Requests.Get(context.Background(), sent.Token)
	require.NoError(t, err)
	assert.True(t, record.Confirmed)
	assert.Equal(t, "please send my data", record.Data)

	_, ok, err = env.app.Registry.Resolve(context.Background(), subject.ID, requests.TypeAccess)
	require.NoError(t, err)
	assert.False(t, ok)

	// Confirming twice is harmless.
	w = env.do(t, http.MethodPost, "/v1/gdpr/requests/"+sent.Token+"/confirm", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CreateRequest_InvalidType(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org",
		"type":  "erase-everything",
	}, false)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	decodeBody(t, w, &problem)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "type", problem.Errors[0].Field)
	assert.Equal(t, models.CodeInvalidRequestType, problem.Errors[0].Code)

	list, err := env.app.Requests.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRouter_CreateRequest_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "not-an-email",
	}, false)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var problem models.Problem
	decodeBody(t, w, &problem)

	fields := map[string]string{}
	for _, fe := range problem.Errors {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, models.CodeInvalid, fields["email"])
	assert.Equal(t, models.CodeRequired, fields["type"])
}

func TestRouter_CreateRequest_RejectsNonJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/gdpr/requests", bytes.NewBufferString("email=a@b.c"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_CreateRequest_IntakePaused(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Flags.Update(context.Background(), &featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagIntakePaused, Value: true}},
		Reason:  "maintenance",
	}, "adm_test")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org",
		"type":  "access",
	}, false)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_CreateRequest_NotificationsDisabled(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Flags.Update(context.Background(), &featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagNotificationsDisabled, Value: true}},
		Reason:  "mail outage",
	}, "adm_test")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org",
		"type":  "complaint",
	}, false)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, env.outbox.sent)

	list, err := env.app.Requests.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRouter_CreateRequest_NotifierFailureStillAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.outbox.err = errors.New("smtp down")

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org",
		"type":  "rectify",
	}, false)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRouter_ConfirmRequest_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests/AAAAAAAAAAAAAAAAAAAA/confirm", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var problem models.Problem
	decodeBody(t, w, &problem)
	assert.Equal(t, "/v1/gdpr/requests/{token}/confirm", problem.Instance)

	w = env.do(t, http.MethodPost, "/v1/gdpr/requests/short/confirm", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ConfirmRequest_SupersededToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "jane@example.org")
	body := map[string]string{"email": "jane@example.org", "type": "delete"}

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/v1/gdpr/requests", body, false).Code)
	first := env.outbox.last(t).Token
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/v1/gdpr/requests", body, false).Code)
	second := env.outbox.last(t).Token

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests/"+first+"/confirm", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/gdpr/requests/"+second+"/confirm", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnconfirmedRequestExpires(t *testing.T) {
	env := newTestEnv(t)
	subject := env.register(t, "jane@example.org")

	w := env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org",
		"type":  "portability",
	}, false)
	require.Equal(t, http.StatusAccepted, w.Code)
	token := env.outbox.last(t).Token

	result, err := env.app.Dispatcher.RunDue(context.Background(), time.Now().Add(requests.TokenTTL+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	_, err = env.app.Requests.Get(context.Background(), token)
	assert.ErrorIs(t, err, requests.ErrNotFound)

	_, ok, err := env.app.Registry.Resolve(context.Background(), subject.ID, requests.TypePortability)
	require.NoError(t, err)
	assert.False(t, ok)

	w = env.do(t, http.MethodPost, "/v1/gdpr/requests/"+token+"/confirm", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/admin/gdpr/requests", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	viewer, _, err := env.jwt.IssueToken("adm_viewer", "viewer", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/gdpr/requests", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_AdminListGetDelete(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "anon@example.org", "type": "access",
	}, false).Code)
	key := env.outbox.last(t).Token

	w := env.do(t, http.MethodGet, "/v1/admin/gdpr/requests", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.PrivacyRequestList
	decodeBody(t, w, &list)
	require.Equal(t, 1, list.Meta.Total)
	assert.Equal(t, key, list.Items[0].Key)
	assert.Equal(t, models.RequestStatusPendingConfirmation, list.Items[0].Status)

	w = env.do(t, http.MethodGet, "/v1/admin/gdpr/requests/"+key, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.PrivacyRequest
	decodeBody(t, w, &got)
	assert.Equal(t, "anon@example.org", got.Email)

	w = env.do(t, http.MethodDelete, "/v1/admin/gdpr/requests/"+key, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/admin/gdpr/requests/"+key, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/gdpr/requests/"+key, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SubjectContent(t *testing.T) {
	env := newTestEnv(t)
	subject := env.register(t, "author@example.org")
	counter, ok := env.app.Backends.Content.(*content.InMemoryCounter)
	require.True(t, ok)

	w := env.do(t, http.MethodGet, "/v1/admin/gdpr/subjects/"+subject.ID+"/content", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var result models.SubjectContent
	decodeBody(t, w, &result)
	assert.False(t, result.HasContent)

	counter.AddFeedback(content.Feedback{ID: "fb_1", AuthorEmail: "author@example.org", Status: content.FeedbackPending})

	w = env.do(t, http.MethodGet, "/v1/admin/gdpr/subjects/"+subject.ID+"/content", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &result)
	assert.True(t, result.HasContent)
}

func TestRouter_Users(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/admin/users", map[string]string{
		"email": "new@example.org", "displayName": "New Person",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.User
	decodeBody(t, w, &created)
	assert.Equal(t, "/v1/admin/users/"+created.ID, w.Header().Get("Location"))

	w = env.do(t, http.MethodPost, "/v1/admin/users", map[string]string{"email": "NEW@example.org"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/users/"+created.ID, nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/admin/users/"+created.ID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/users/"+created.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_FeatureFlags(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/v1/admin/feature-flags", map[string]interface{}{
		"updates": []map[string]interface{}{{"key": featureflags.FlagDeleteClearsToken, "value": true}},
		"reason":  "revoke links on delete",
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.app.Flags.DeleteClearsToken(context.Background()))

	w = env.do(t, http.MethodPut, "/v1/admin/feature-flags", map[string]interface{}{
		"updates": []map[string]interface{}{{"key": "no_such_flag", "value": true}},
		"reason":  "typo",
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/v1/admin/feature-flags", map[string]interface{}{"updates": []interface{}{}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Flags []featureflags.Flag `json:"flags"`
	}
	decodeBody(t, w, &list)
	assert.Len(t, list.Flags, 3)

	w = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagDeleteClearsToken, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.app.Flags.DeleteClearsToken(context.Background()))

	w = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/no_such_flag", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/feature-flags/"+featureflags.FlagDeleteClearsToken+"/history", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history struct {
		Key     string `json:"key"`
		Changes []struct {
			Value  interface{} `json:"value"`
			Actor  string      `json:"actor"`
			Reason string      `json:"reason"`
		} `json:"changes"`
	}
	decodeBody(t, w, &history)
	require.Len(t, history.Changes, 2)
	assert.Nil(t, history.Changes[0].Value)
	assert.Equal(t, "adm_test", history.Changes[0].Actor)
	assert.Equal(t, true, history.Changes[1].Value)
	assert.Equal(t, "revoke links on delete", history.Changes[1].Reason)

	w = env.do(t, http.MethodGet, "/v1/admin/feature-flags/"+featureflags.FlagDeleteClearsToken+"/history?limit=0", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/feature-flags/no_such_flag/history", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_DeleteClearsTokenWhenFlagged(t *testing.T) {
	env := newTestEnv(t)
	subject := env.register(t, "jane@example.org")
	_, err := env.app.Flags.Update(context.Background(), &featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagDeleteClearsToken, Value: true}},
		Reason:  "test",
	}, "adm_test")
	require.NoError(t, err)

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org", "type": "access",
	}, false).Code)
	key := env.outbox.last(t).Token

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/admin/gdpr/requests/"+key, nil, true).Code)

	_, ok, err := env.app.Registry.Resolve(context.Background(), subject.ID, requests.TypeAccess)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "jane@example.org")
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/v1/gdpr/requests", map[string]string{
		"email": "jane@example.org", "type": "access",
	}, false).Code)

	w := env.do(t, http.MethodGet, "/v1/ops/status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	decodeBody(t, w, &status)
	assert.Equal(t, models.HealthStatusOK, status.Status)

	names := make([]string, 0, len(status.Dependencies))
	for _, d := range status.Dependencies {
		names = append(names, d.Name)
		assert.Equal(t, "closed", d.CircuitState)
	}
	assert.ElementsMatch(t, []string{content.StoreDependency, user.DirectoryDependency}, names)
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/gdpr/requests", http.NoBody)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "https://example.org", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/nonexistent", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
