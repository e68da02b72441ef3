package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agentdeck/internal/metrics"
	"agentdeck/internal/protocol"
	"agentdeck/internal/realtime"
)

// Phase is the orchestrator's turn state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseStreaming Phase = "streaming"
)

// Sender is the slice of the connection manager the orchestrator uses.
type Sender interface {
	Send(q protocol.Query) realtime.SendResult
}

// SessionTracker provides the continuity handle attached to outbound queries
// and records the handle reported by completion events.
type SessionTracker interface {
	Handle(agentID string) string
	UpdateHandle(agentID, sessionID string)
}

// TranscriptSink receives finalized turns, e.g. for a local cache. Optional.
type TranscriptSink interface {
	AppendTurn(agentID, sessionID string, user, assistant Message)
}

// Notice is a surfaced application error.
type Notice struct {
	Severity Severity
	Code     string
	Message  string
}

// Orchestrator ties a user-initiated turn to its completion or failure. It
// enforces at most one in-flight turn for the selected agent, drives the
// idle/loading/streaming phases, and finalizes the placeholder assistant
// message on terminal events. Late events for an already-finalized turn are
// dropped, never applied.
type Orchestrator struct {
	log      *zap.Logger
	conn     Sender
	sessions SessionTracker
	sink     TranscriptSink
	asm      *Assembler

	mu          sync.Mutex
	agentID     string
	phase       Phase
	messages    []Message
	blocking    *Notice
	banner      *Notice
	turnStarted time.Time
	onChange    func()
}

// NewOrchestrator creates an idle orchestrator with no agent selected.
func NewOrchestrator(conn Sender, sessions SessionTracker, sink TranscriptSink, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		log:      log.With(zap.String("component", "orchestrator")),
		conn:     conn,
		sessions: sessions,
		sink:     sink,
		asm:      NewAssembler(),
		phase:    PhaseIdle,
	}
}

// SetOnChange registers the callback invoked after every observable state
// change. The callback runs outside the orchestrator lock.
func (o *Orchestrator) SetOnChange(fn func()) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// BindTo installs this orchestrator's handlers on the router, replacing
// whatever was bound before. Call on every mount; the previous instance is
// fully detached.
func (o *Orchestrator) BindTo(router *realtime.Router) {
	router.Bind(realtime.Handlers{
		OnConnected: o.handleConnected,
		OnStream:    o.handleStream,
		OnComplete:  o.handleComplete,
		OnError:     o.handleError,
	})
}

// SelectAgent installs a conversation for the given agent, replacing the
// visible one. An in-flight turn for the previous agent is abandoned: its
// late events no longer match the idle phase and are dropped, so two
// conversations' streams can never cross-wire.
func (o *Orchestrator) SelectAgent(agentID string, history []Message) {
	o.mu.Lock()
	o.agentID = agentID
	o.phase = PhaseIdle
	o.messages = append([]Message(nil), history...)
	o.blocking = nil
	o.banner = nil
	o.asm.Reset()
	o.mu.Unlock()
	o.signal()
}

// SendTurn starts a turn: appends the user message and a placeholder
// assistant message, and issues the query carrying the current continuity
// handle. Rejected (no-op, returns false) while another turn is in flight.
func (o *Orchestrator) SendTurn(text string) bool {
	o.mu.Lock()
	if o.agentID == "" || o.phase != PhaseIdle {
		o.mu.Unlock()
		metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		return false
	}

	now := time.Now()
	o.messages = append(o.messages,
		Message{ID: uuid.NewString(), Role: RoleUser, Content: text, Status: StatusComplete, CreatedAt: now},
		Message{ID: uuid.NewString(), Role: RoleAssistant, Status: StatusPending, CreatedAt: now},
	)
	o.asm.Reset()
	o.phase = PhaseLoading
	o.turnStarted = now
	q := protocol.Query{
		AgentID:   o.agentID,
		Message:   text,
		SessionID: o.sessions.Handle(o.agentID),
	}
	o.mu.Unlock()

	o.conn.Send(q)
	o.signal()
	return true
}

// Phase returns the current turn phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// AgentID returns the selected agent's id, or "".
func (o *Orchestrator) AgentID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agentID
}

// Messages returns a copy of the visible conversation.
func (o *Orchestrator) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// BlockingNotice returns the active blocking error, if any.
func (o *Orchestrator) BlockingNotice() *Notice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blocking
}

// BannerNotice returns the active warning banner, if any.
func (o *Orchestrator) BannerNotice() *Notice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.banner
}

// DismissBanner clears the warning banner.
func (o *Orchestrator) DismissBanner() {
	o.mu.Lock()
	o.banner = nil
	o.mu.Unlock()
	o.signal()
}

// RaiseBlocking surfaces a blocking notice originating outside the event
// stream, e.g. the transport rejecting the credential during the handshake.
func (o *Orchestrator) RaiseBlocking(code, message string) {
	o.mu.Lock()
	o.blocking = &Notice{Severity: SeverityBlocking, Code: code, Message: message}
	o.mu.Unlock()
	o.signal()
}

// DismissBlocking clears the blocking notice after the user has resolved the
// underlying condition.
func (o *Orchestrator) DismissBlocking() {
	o.mu.Lock()
	o.blocking = nil
	o.mu.Unlock()
	o.signal()
}

func (o *Orchestrator) handleStream(ev *protocol.Event) {
	o.mu.Lock()
	if o.phase != PhaseLoading && o.phase != PhaseStreaming {
		// Late chunk for a finalized turn: the message is immutable now.
		o.mu.Unlock()
		return
	}

	o.phase = PhaseStreaming
	content := o.asm.Append(ev.Stream.Content)
	if last := o.lastAssistantLocked(); last != nil && !last.Terminal() {
		last.Content = content
		last.Status = StatusStreaming
	}
	o.mu.Unlock()
	o.signal()
}

func (o *Orchestrator) handleComplete(ev *protocol.Event) {
	o.mu.Lock()
	if o.phase == PhaseIdle {
		o.mu.Unlock()
		return
	}

	var userMsg, assistantMsg Message
	if last := o.lastAssistantLocked(); last != nil && !last.Terminal() {
		last.Content = o.asm.Current()
		last.Status = StatusComplete
		last.Usage = ev.Complete.TokenUsage
		assistantMsg = *last
		if n := len(o.messages); n >= 2 {
			userMsg = o.messages[n-2]
		}
	}

	agentID := o.agentID
	sessionID := ev.Complete.SessionID
	elapsed := time.Since(o.turnStarted)
	o.phase = PhaseIdle
	o.asm.Reset()
	o.mu.Unlock()

	if sessionID != "" && o.sessions != nil {
		o.sessions.UpdateHandle(agentID, sessionID)
	}
	if o.sink != nil && assistantMsg.ID != "" {
		o.sink.AppendTurn(agentID, sessionID, userMsg, assistantMsg)
	}

	metrics.TurnsTotal.WithLabelValues("completed").Inc()
	metrics.TurnDuration.WithLabelValues("completed").Observe(elapsed.Seconds())
	if u := ev.Complete.TokenUsage; u != nil {
		metrics.TokensTotal.WithLabelValues("input").Add(float64(u.InputTokens))
		metrics.TokensTotal.WithLabelValues("output").Add(float64(u.OutputTokens))
	}
	o.signal()
}

func (o *Orchestrator) handleError(ev *protocol.Event) {
	sev := Classify(ev.Error.Code)
	notice := &Notice{Severity: sev, Code: ev.Error.Code, Message: ev.Error.Message}

	o.mu.Lock()
	switch sev {
	case SeverityBlocking:
		o.blocking = notice
	case SeverityBanner:
		o.banner = notice
	}

	inFlight := o.phase != PhaseIdle
	var elapsed time.Duration
	if inFlight {
		// The user's message stays visible; the placeholder keeps its
		// partial content with the error attached.
		if last := o.lastAssistantLocked(); last != nil && !last.Terminal() {
			last.Content = o.asm.Current()
			last.Status = StatusFailed
			if sev == SeverityInline {
				last.ErrorNote = ev.Error.Message
			}
		}
		elapsed = time.Since(o.turnStarted)
		o.phase = PhaseIdle
		o.asm.Reset()
	}
	o.mu.Unlock()

	if inFlight {
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		metrics.TurnDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
	}
	o.log.Warn("gateway error",
		zap.String("code", ev.Error.Code),
		zap.String("severity", string(sev)),
	)
	o.signal()
}

func (o *Orchestrator) handleConnected(ev *protocol.Event) {
	o.mu.Lock()
	// A fresh connection clears the non-blocking banner; blocking errors
	// stay until the user resolves them, and the turn phase is untouched.
	o.banner = nil
	o.mu.Unlock()
	o.signal()
}

// lastAssistantLocked returns the most recent assistant message, or nil.
// Caller holds the lock.
func (o *Orchestrator) lastAssistantLocked() *Message {
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].Role == RoleAssistant {
			return &o.messages[i]
		}
	}
	return nil
}

func (o *Orchestrator) signal() {
	o.mu.Lock()
	fn := o.onChange
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}
