// Package api is the REST client for the gateway's request/response surface:
// authentication, project and agent CRUD, transcript fetch, and session
// clearing. The realtime layer is deliberately elsewhere; everything here is
// plain request/response returning typed records.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Client talks to the gateway REST API. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the given base URL, e.g.
// "http://localhost:8135".
func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log.With(zap.String("component", "api")),
	}
}

// CurrentCredential returns the bearer token, or "" when unauthenticated.
// The realtime layer reads this on every dial.
func (c *Client) CurrentCredential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetCredential installs a token obtained out of band (e.g. from config).
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates and stores the issued token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.SetCredential(resp.Token)
	return &resp.User, nil
}

// Logout drops the stored credential. Purely client-side; the gateway token
// expires on its own.
func (c *Client) Logout() {
	c.SetCredential("")
}

// ListProjects returns all projects visible to the user.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return out, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, p Project) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", p, &out); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return &out, nil
}

// UpdateProject updates a project by id.
func (c *Client) UpdateProject(ctx context.Context, p Project) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodPut, "/api/projects/"+p.ID, p, &out); err != nil {
		return nil, fmt.Errorf("updating project: %w", err)
	}
	return &out, nil
}

// DeleteProject deletes a project and its agents.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/projects/"+id, nil, nil); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return nil
}

// ListAgents returns the agents of a project.
func (c *Client) ListAgents(ctx context.Context, projectID string) ([]Agent, error) {
	var out []Agent
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+projectID+"/agents", nil, &out); err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	return out, nil
}

// CreateAgent creates an agent within a project.
func (c *Client) CreateAgent(ctx context.Context, a Agent) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPost, "/api/agents", a, &out); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return &out, nil
}

// UpdateAgent updates an agent by id.
func (c *Client) UpdateAgent(ctx context.Context, a Agent) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPut, "/api/agents/"+a.ID, a, &out); err != nil {
		return nil, fmt.Errorf("updating agent: %w", err)
	}
	return &out, nil
}

// DeleteAgent deletes an agent.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/agents/"+id, nil, nil); err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	return nil
}

// FetchPriorTurns retrieves an agent's prior conversation from the gateway.
// Never returns an error: any failure yields Success=false so the caller can
// fall back to an empty conversation.
func (c *Client) FetchPriorTurns(ctx context.Context, agentID string) TranscriptResult {
	var out TranscriptResult
	if err := c.do(ctx, http.MethodGet, "/api/agents/"+agentID+"/transcript", nil, &out); err != nil {
		c.log.Warn("transcript fetch failed", zap.String("agent_id", agentID), zap.Error(err))
		return TranscriptResult{Success: false}
	}
	out.Success = true
	return out
}

// ClearSessionHandle asks the gateway to drop the agent's continuity handle
// and returns the updated agent record.
func (c *Client) ClearSessionHandle(ctx context.Context, agentID string) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodDelete, "/api/agents/"+agentID+"/session", nil, &out); err != nil {
		return nil, fmt.Errorf("clearing session: %w", err)
	}
	return &out, nil
}

// do runs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.CurrentCredential(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
