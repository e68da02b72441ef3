package api

import "time"

// User is an authenticated account record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Project groups agents under a working directory on the gateway host.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Agent is a configured coding agent within a project. SessionID is the
// continuity handle: empty means the next turn starts a fresh backend
// session.
type Agent struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Model     string    `json:"model,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasSession reports whether the agent carries a continuity handle.
func (a *Agent) HasSession() bool { return a.SessionID != "" }

// TranscriptMessage is one prior message returned by the transcript endpoint.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptResult is the outcome of a prior-turns fetch. Failure is a flag,
// not an error: callers degrade to an empty conversation instead of surfacing
// a blocking failure.
type TranscriptResult struct {
	Success    bool                `json:"success"`
	Turns      []TranscriptMessage `json:"turns"`
	HasSession bool                `json:"hasSession"`
	SessionID  string              `json:"sessionId,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
