package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"agentdeck/internal/api"
)

// state is the in-memory backing store for the development gateway. Nothing
// survives a restart, which is the point: the gateway exists to exercise the
// client, not to keep data.
type state struct {
	mu          sync.Mutex
	projects    map[string]*api.Project
	agents      map[string]*api.Agent
	transcripts map[string][]api.TranscriptMessage
}

func newState() *state {
	s := &state{
		projects:    make(map[string]*api.Project),
		agents:      make(map[string]*api.Agent),
		transcripts: make(map[string][]api.TranscriptMessage),
	}
	s.seed()
	return s
}

// seed creates a starter project with two agents so a fresh gateway is
// immediately usable.
func (s *state) seed() {
	now := time.Now().UTC()
	proj := &api.Project{
		ID:        uuid.NewString(),
		Name:      "scratch",
		Path:      "/tmp/scratch",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.projects[proj.ID] = proj

	for _, name := range []string{"builder", "reviewer"} {
		a := &api.Agent{
			ID:        uuid.NewString(),
			ProjectID: proj.ID,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.agents[a.ID] = a
	}
}

func (s *state) listProjects() []api.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out
}

func (s *state) createProject(p api.Project) api.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.projects[p.ID] = &p
	return p
}

func (s *state) updateProject(p api.Project) (api.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[p.ID]
	if !ok {
		return api.Project{}, false
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.Path = p.Path
	existing.UpdatedAt = time.Now().UTC()
	return *existing, true
}

func (s *state) deleteProject(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false
	}
	delete(s.projects, id)
	for aid, a := range s.agents {
		if a.ProjectID == id {
			delete(s.agents, aid)
			delete(s.transcripts, aid)
		}
	}
	return true
}

func (s *state) listAgents(projectID string) []api.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Agent, 0)
	for _, a := range s.agents {
		if a.ProjectID == projectID {
			out = append(out, *a)
		}
	}
	return out
}

func (s *state) getAgent(id string) (api.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return api.Agent{}, false
	}
	return *a, true
}

func (s *state) createAgent(a api.Agent) (api.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[a.ProjectID]; !ok {
		return api.Agent{}, false
	}
	a.ID = uuid.NewString()
	a.SessionID = ""
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	s.agents[a.ID] = &a
	return a, true
}

func (s *state) updateAgent(a api.Agent) (api.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.agents[a.ID]
	if !ok {
		return api.Agent{}, false
	}
	existing.Name = a.Name
	existing.Model = a.Model
	existing.Prompt = a.Prompt
	existing.UpdatedAt = time.Now().UTC()
	return *existing, true
}

func (s *state) deleteAgent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return false
	}
	delete(s.agents, id)
	delete(s.transcripts, id)
	return true
}

// ensureSession returns the agent's session handle, minting one on first use.
func (s *state) ensureSession(agentID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return ""
	}
	if a.SessionID == "" {
		a.SessionID = uuid.NewString()
		a.UpdatedAt = time.Now().UTC()
	}
	return a.SessionID
}

func (s *state) appendTurn(agentID, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[agentID] = append(s.transcripts[agentID],
		api.TranscriptMessage{Role: "user", Content: userText},
		api.TranscriptMessage{Role: "assistant", Content: assistantText},
	)
}

func (s *state) transcript(agentID string) ([]api.TranscriptMessage, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return nil, ""
	}
	return append([]api.TranscriptMessage(nil), s.transcripts[agentID]...), a.SessionID
}

func (s *state) clearSession(agentID string) (api.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return api.Agent{}, false
	}
	a.SessionID = ""
	a.UpdatedAt = time.Now().UTC()
	delete(s.transcripts, agentID)
	return *a, true
}
