package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chxlky/github-project-sync/integrations"
	"github.com/chxlky/github-project-sync/internal/models"
	"github.com/chxlky/github-project-sync/internal/syncer"
	"github.com/chxlky/github-project-sync/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-webhook-secret"

const (
	fieldsWithStatus = `{"data":{"node":{"fields":{"nodes":[
		{"id":"F_status","name":"Status","options":[{"id":"opt_todo","name":"Todo"},{"id":"opt_done","name":"Done"}]}
	]}}}}`
	fieldsWithoutStatus = `{"data":{"node":{"fields":{"nodes":[{"id":"F_stage","name":"Stage","options":[]}]}}}}`
)

// fakeGitHub serves the REST lookup and the three GraphQL operations.
type fakeGitHub struct {
	mu       sync.Mutex
	fields   string
	counts   map[string]int
	statuses []string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasPrefix(r.URL.Path, "/repos/"):
		f.counts["resolve"]++
		w.Write([]byte(`{"node_id":"NODE_1"}`))
	case r.URL.Path == "/graphql":
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Query, "addProjectV2ItemById"):
			f.counts["link"]++
			w.Write([]byte(`{"data":{"addProjectV2ItemById":{"item":{"id":"PVTI_42"}}}}`))
		case strings.Contains(req.Query, "updateProjectV2ItemFieldValue"):
			f.counts["update"]++
			f.statuses = append(f.statuses, req.Variables["input"].(map[string]any)["value"].(map[string]any)["singleSelectOptionId"].(string))
			w.Write([]byte(`{"data":{"updateProjectV2ItemFieldValue":{"projectV2Item":{"id":"PVTI_42"}}}}`))
		default:
			f.counts["fields"]++
			w.Write([]byte(f.fields))
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGitHub) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

func (f *fakeGitHub) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.counts {
		n += c
	}
	return n
}

func setupTest(t *testing.T, fields string) (*gin.Engine, *fakeGitHub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gh := &fakeGitHub{fields: fields, counts: make(map[string]int)}
	server := httptest.NewServer(gh)
	t.Cleanup(server.Close)

	logger := zap.NewNop()
	client, err := integrations.NewGitHubClient(context.Background(), "test-token", server.URL, "", logger)
	require.NoError(t, err)

	s := syncer.New(syncer.Options{
		Secret:       testSecret,
		ProjectID:    "PVT_test",
		AllowedRepos: []string{"pikarama", "brick-directory"},
	}, client, client, client, logger)

	return NewRouter(&Handler{Syncer: s, Logger: logger}, logger), gh
}

func post(router http.Handler, event, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader([]byte(body)))
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", "sha256="+webhook.Sign(secret, []byte(body)))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

const (
	issueOpened = `{"action":"opened","issue":{"html_url":"https://github.com/acme/pikarama/issues/5","number":5,"title":"Crash"},"repository":{"name":"pikarama","full_name":"acme/pikarama"}}`
	prMerged    = `{"action":"closed","number":9,"pull_request":{"html_url":"https://github.com/acme/pikarama/pull/9","number":9,"title":"Fix crash","merged":true},"repository":{"name":"pikarama","full_name":"acme/pikarama"}}`
	untracked   = `{"action":"opened","issue":{"html_url":"https://github.com/acme/unrelated-repo/issues/1","number":1,"title":"Hi"},"repository":{"name":"unrelated-repo","full_name":"acme/unrelated-repo"}}`
)

func TestHealthCheck(t *testing.T) {
	router, _ := setupTest(t, fieldsWithStatus)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWebhook_IssueOpened(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	w := post(router, "issues", issueOpened, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"added","item_id":"PVTI_42"}`, w.Body.String())
	assert.Equal(t, 1, gh.count("resolve"))
	assert.Equal(t, 1, gh.count("link"))
	assert.Equal(t, 1, gh.count("fields"))
	assert.Equal(t, 1, gh.count("update"))
	assert.Equal(t, []string{"opt_todo"}, gh.statuses)
}

func TestWebhook_PullRequestMerged(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	w := post(router, "pull_request", prMerged, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"done","item_id":"PVTI_42"}`, w.Body.String())
	assert.Equal(t, []string{"opt_done"}, gh.statuses)
}

func TestWebhook_WrongSecret(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	w := post(router, "issues", issueOpened, "not-the-secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, gh.total())
}

func TestWebhook_MissingSignature(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	w := post(router, "issues", issueOpened, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, gh.total())
}

func TestWebhook_OversizedBody(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)
	body := strings.Repeat("a", maxBodySize+10)

	t.Run("unsigned", func(t *testing.T) {
		w := post(router, "issues", body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed signature header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(body))
		req.Header.Set("X-GitHub-Event", "issues")
		req.Header.Set("X-Hub-Signature-256", "sha1=abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signed", func(t *testing.T) {
		w := post(router, "issues", body, testSecret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"payload too large"}`, w.Body.String())
	})

	assert.Zero(t, gh.total())
}

func TestWebhook_UntrackedRepo(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	w := post(router, "issues", untracked, testSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ignored","reason":"repo not tracked"}`, w.Body.String())
	assert.Zero(t, gh.total())
}

func TestWebhook_StatusFieldMissing(t *testing.T) {
	router, gh := setupTest(t, fieldsWithoutStatus)

	w := post(router, "issues", issueOpened, testSecret)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, gh.count("link"))
	assert.Equal(t, 0, gh.count("update"))
}

func TestWebhook_Malformed(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	tests := []struct {
		name  string
		event string
		body  string
	}{
		{name: "invalid json", event: "issues", body: `{invalid json}`},
		{name: "issue missing", event: "issues", body: `{"action":"opened","repository":{"name":"pikarama"}}`},
		{name: "pull_request missing", event: "pull_request", body: `{"action":"opened","repository":{"name":"pikarama"}}`},
		{name: "action missing", event: "issues", body: strings.Replace(issueOpened, `"action":"opened",`, "", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, tt.event, tt.body, testSecret)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Zero(t, gh.total())
}

func TestWebhook_IgnoredEvents(t *testing.T) {
	router, gh := setupTest(t, fieldsWithStatus)

	tests := []struct {
		name   string
		event  string
		body   string
		reason string
	}{
		{name: "no event header", event: "", body: issueOpened, reason: webhook.ReasonUnsupportedEvent},
		{name: "push", event: "push", body: issueOpened, reason: webhook.ReasonUnsupportedEvent},
		{
			name:   "unmerged pr",
			event:  "pull_request",
			body:   strings.Replace(prMerged, `"merged":true`, `"merged":false`, 1),
			reason: webhook.ReasonNotMerged,
		},
		{
			name:   "issue edited",
			event:  "issues",
			body:   strings.Replace(issueOpened, `"opened"`, `"edited"`, 1),
			reason: webhook.ReasonUnsupportedAction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, tt.event, tt.body, testSecret)
			assert.Equal(t, http.StatusOK, w.Code)
			out := decode(t, w)
			assert.Equal(t, "ignored", out["status"])
			assert.Equal(t, tt.reason, out["reason"])
		})
	}
	assert.Zero(t, gh.total())
}

func TestWebhook_UpstreamDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	client, err := integrations.NewGitHubClient(context.Background(), "tok", dead.URL, "", logger)
	require.NoError(t, err)
	s := syncer.New(syncer.Options{Secret: testSecret, ProjectID: "PVT_test", AllowedRepos: []string{"pikarama"}}, client, client, client, logger)
	router := NewRouter(&Handler{Syncer: s, Logger: logger}, logger)

	w := post(router, "issues", issueOpened, testSecret)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: models.ErrUnauthorized, want: http.StatusUnauthorized},
		{err: models.ErrMalformedPayload, want: http.StatusBadRequest},
		{err: &models.UpstreamError{Op: "x"}, want: http.StatusBadGateway},
		{err: models.ErrSchemaMismatch, want: http.StatusBadGateway},
		{err: context.Canceled, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := errorStatus(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
