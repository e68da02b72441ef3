package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_StoresCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/login", r.URL.Path)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "dev@example.com", req.Email)

		json.NewEncoder(w).Encode(loginResponse{
			Token: "tok-123",
			User:  User{ID: "u1", Email: req.Email},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	assert.Empty(t, c.CurrentCredential())

	user, err := c.Login(context.Background(), "dev@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "tok-123", c.CurrentCredential())

	c.Logout()
	assert.Empty(t, c.CurrentCredential())
}

func TestRequests_CarryBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]Project{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.SetCredential("tok-abc")
	_, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestFetchPriorTurns_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/agents/agent-7/transcript", r.URL.Path)
		json.NewEncoder(w).Encode(TranscriptResult{
			Turns: []TranscriptMessage{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
			},
			HasSession: true,
			SessionID:  "sess-7",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	res := c.FetchPriorTurns(context.Background(), "agent-7")
	assert.True(t, res.Success)
	assert.Len(t, res.Turns, 2)
	assert.Equal(t, "sess-7", res.SessionID)
}

func TestFetchPriorTurns_FailureIsFlagNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	res := c.FetchPriorTurns(context.Background(), "agent-7")
	assert.False(t, res.Success)
	assert.Empty(t, res.Turns)
}

func TestClearSessionHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/agents/agent-7/session", r.URL.Path)
		json.NewEncoder(w).Encode(Agent{ID: "agent-7", Name: "fixer"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	agent, err := c.ClearSessionHandle(context.Background(), "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", agent.ID)
	assert.False(t, agent.HasSession())
}

func TestErrorResponse_SurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "project not found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.DeleteProject(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project not found")
}
