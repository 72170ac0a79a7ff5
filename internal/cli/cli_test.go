package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalithlochan/clipforge/internal/auth"
)

// fakeGateway serves just enough of /v1 for the commands under test.
type fakeGateway struct {
	mu        sync.Mutex
	polls     int
	snapshots []string
	keys      []string
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"about:blank","title":"Unauthorized","status":401,"detail":"missing bearer token"}`))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
		g.keys = append(g.keys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"job-1","status":"queued"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1":
		i := g.polls
		if i >= len(g.snapshots) {
			i = len(g.snapshots) - 1
		}
		g.polls++
		w.Write([]byte(g.snapshots[i]))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs":
		w.Write([]byte(`{"data":[{"id":"job-1","module":"image","status":"completed"}],"limit":20,"offset":0,"count":1}`))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/chat":
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("echo: " + body.Message))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"title":"Not Found","status":404,"detail":"job not found"}`))
	}
}

const (
	queuedJob     = `{"id":"job-1","module":"image","status":"queued"}`
	processingJob = `{"id":"job-1","module":"image","status":"processing","progress":50,"preview_url":"https://cdn.test/p.jpg"}`
	completedJob  = `{"id":"job-1","module":"image","status":"completed","progress":100,"final_urls":["https://cdn.test/1.jpg"]}`
	failedJob     = `{"id":"job-1","module":"image","status":"failed","error_message":"Content policy violation"}`
)

func run(t *testing.T, g *fakeGateway, args ...string) (string, error) {
	t.Helper()
	server := httptest.NewServer(g)
	t.Cleanup(server.Close)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--base-url", server.URL, "--token", "tok", "--poll-interval", "5ms"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"base-url", "token", "output", "poll-interval"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "--%s should be registered", name)
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"token", "create", "status", "wait", "list", "chat"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, &fakeGateway{}, "-o", "yaml", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestTokenCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--secret", "s3cret", "--issuer", "clipforge", "--user", "user-42", "--email", "a@b.test"})
	require.NoError(t, cmd.Execute())

	issuer, err := auth.NewIssuer(auth.Config{Secret: "s3cret", Issuer: "clipforge"})
	require.NoError(t, err)
	p, err := issuer.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.UserID)
	assert.Equal(t, "a@b.test", p.Email)
}

func TestTokenCommand_RequiresUser(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--secret", "s3cret"})
	assert.Error(t, cmd.Execute())
}

func TestCreateCommand(t *testing.T) {
	g := &fakeGateway{}
	out, err := run(t, g, "create", "--module", "image", "--params", `{"prompt":"fox"}`, "--key", "k-1")
	require.NoError(t, err)
	assert.Contains(t, out, "job job-1 created (queued, key k-1)")
	assert.Equal(t, []string{"k-1"}, g.keys)
}

func TestCreateCommand_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing_module", []string{"create"}, "--module is required"},
		{"bad_params", []string{"create", "--module", "image", "--params", "{nope"}, "valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, &fakeGateway{}, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreateCommand_WaitFollowsToCompletion(t *testing.T) {
	g := &fakeGateway{snapshots: []string{queuedJob, processingJob, completedJob}}
	out, err := run(t, g, "create", "--module", "image", "--params", `{"prompt":"fox"}`, "--wait")
	require.NoError(t, err)

	assert.Contains(t, out, "processing 50% preview https://cdn.test/p.jpg")
	assert.Contains(t, out, "results:  https://cdn.test/1.jpg")
	require.Len(t, g.keys, 1)
	assert.NotEmpty(t, g.keys[0], "a key should be generated")
}

func TestWaitCommand_FailedJobExitsWithError(t *testing.T) {
	g := &fakeGateway{snapshots: []string{processingJob, failedJob}}
	out, err := run(t, g, "wait", "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job job-1 failed")
	assert.Contains(t, out, "error:    Content policy violation")
}

func TestStatusCommand_JSON(t *testing.T) {
	g := &fakeGateway{snapshots: []string{completedJob}}
	out, err := run(t, g, "-o", "json", "status", "job-1")
	require.NoError(t, err)

	var job struct {
		ID        string   `json:"id"`
		Status    string   `json:"status"`
		FinalURLs []string `json:"final_urls"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, []string{"https://cdn.test/1.jpg"}, job.FinalURLs)
}

func TestStatusCommand_NotFound(t *testing.T) {
	_, err := run(t, &fakeGateway{}, "status", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestListCommand(t *testing.T) {
	out, err := run(t, &fakeGateway{}, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "completed")
}

func TestChatCommand(t *testing.T) {
	out, err := run(t, &fakeGateway{}, "chat", "how", "do", "credits", "work?")
	require.NoError(t, err)
	assert.Equal(t, "echo: how do credits work?\n", out)
}

func TestCommandsRequireToken(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--token", "", "list"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}
