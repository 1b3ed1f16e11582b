package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fieldvoice/reporter/pkg/checklist"
	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/finalize"
)

// State is the controller's position in the session lifecycle
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateListening     State = "listening"
	StateAgentSpeaking State = "agent_speaking"
	StateEnding        State = "ending"
	StateEnded         State = "ended"
	StateFailed        State = "failed"
)

var (
	// ErrSessionActive means Start was called while a session is in flight
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoActiveSession means End was called with nothing to end
	ErrNoActiveSession = errors.New("no active session")
)

// FinalizeFunc receives the ended session's metadata and final checklist
// progress. The controller invokes it asynchronously: ending a session
// never blocks on artifact availability
type FinalizeFunc func(meta finalize.SessionMeta, progress checklist.Progress)

// StartRequest identifies who is talking to which agent about what
type StartRequest struct {
	AgentID   string
	OwnerID   string
	ProjectID string
}

// Controller drives the connect/talk/end state machine for one session at
// a time. Each session owns its own tracker and handle; starting a new
// session discards the previous one's state
type Controller struct {
	conn  connector.Connector
	def   *checklist.Definition
	onEnd FinalizeFunc

	mu        sync.Mutex
	state     State
	handle    *connector.Handle
	tracker   *checklist.Tracker
	ownerID   string
	projectID string
	startedAt time.Time
	endedAt   time.Time
	pumpDone  chan struct{}
}

// NewController creates a session controller over the given connector and
// checklist definition. onEnd may be nil when no finalization is wired
func NewController(conn connector.Connector, def *checklist.Definition, onEnd FinalizeFunc) *Controller {
	return &Controller{
		conn:  conn,
		def:   def,
		onEnd: onEnd,
		state: StateIdle,
	}
}

// State returns the controller's current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens a connector session. Valid only when no session is in
// flight; a connector failure is fatal, surfaced to the caller, and
// parks the controller in Failed until the next Start
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateEnded, StateFailed:
		// Previous session state, if any, is discarded here
	default:
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = StateConnecting
	c.mu.Unlock()

	metadata := map[string]string{
		"owner_id":     req.OwnerID,
		"project_id":   req.ProjectID,
		"first_prompt": c.def.FirstPrompt(),
	}

	handle, err := c.conn.Connect(ctx, req.AgentID, metadata)
	if err != nil {
		// Session-open failure is the one fatal error in the system; the
		// controller parks in Failed until the operator starts over
		c.mu.Lock()
		c.handle = nil
		c.state = StateFailed
		c.mu.Unlock()
		log.Printf("[SESSION]: failed to open session with agent %s: %v", req.AgentID, err)
		return err
	}

	tracker := checklist.NewTracker(c.def)

	// Seed the tracker with the opening prompt so the conversation starts
	// from the same topic the agent leads with
	tracker.Observe(connector.DialogueEvent{
		Role:      "agent",
		Payload:   c.def.FirstPrompt(),
		Timestamp: time.Now(),
	})

	done := make(chan struct{})

	c.mu.Lock()
	c.handle = handle
	c.tracker = tracker
	c.ownerID = req.OwnerID
	c.projectID = req.ProjectID
	c.startedAt = time.Now()
	c.endedAt = time.Time{}
	c.state = StateConnected
	c.pumpDone = done
	c.mu.Unlock()

	go c.pumpEvents(handle, tracker, done)

	log.Printf("[SESSION]: session %s connected to agent %s", handle.SessionID, req.AgentID)
	return nil
}

// End closes the connector session and hands off to finalization without
// waiting for transcript or audio availability
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateListening, StateAgentSpeaking:
	default:
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.state = StateEnding
	handle := c.handle
	tracker := c.tracker
	startedAt := c.startedAt
	ownerID, projectID := c.ownerID, c.projectID
	pumpDone := c.pumpDone
	c.mu.Unlock()

	// A close failure must not lose the session: the backend finalizes
	// artifacts regardless, so finalization proceeds either way
	if err := c.conn.Close(ctx, handle); err != nil {
		log.Printf("[SESSION]: warning, failed to close session %s cleanly: %v", handle.SessionID, err)
	}

	// Closing stops the event stream; let the pump drain already-delivered
	// events so the final progress snapshot counts them
	if pumpDone != nil {
		select {
		case <-pumpDone:
		case <-time.After(2 * time.Second):
			log.Printf("[SESSION]: warning, event stream for session %s did not drain in time", handle.SessionID)
		}
	}

	endedAt := time.Now()

	c.mu.Lock()
	c.state = StateEnded
	c.endedAt = endedAt
	c.mu.Unlock()

	log.Printf("[SESSION]: session %s ended", handle.SessionID)

	if c.onEnd != nil {
		meta := finalize.SessionMeta{
			Handle:    handle,
			OwnerID:   ownerID,
			ProjectID: projectID,
			StartedAt: startedAt,
			EndedAt:   endedAt,
		}
		go c.onEnd(meta, tracker.Snapshot())
	}

	return nil
}

// Progress returns the live checklist completion snapshot. The second
// return is false when no session has ever started
func (c *Controller) Progress() (checklist.Progress, bool) {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()

	if tracker == nil {
		return checklist.Progress{}, false
	}
	return tracker.Snapshot(), true
}

// Handle returns the current session's connector handle, or nil
func (c *Controller) Handle() *connector.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// StartedAt returns when the current session started; zero when none has
func (c *Controller) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// pumpEvents folds the live dialogue stream into the tracker and flips
// the speaking/listening substate from event roles. Runs until the
// connector closes the stream
func (c *Controller) pumpEvents(handle *connector.Handle, tracker *checklist.Tracker, done chan struct{}) {
	defer close(done)

	for ev := range c.conn.Events(handle) {
		tracker.Observe(ev)
		c.observeRole(ev.Role)
	}
}

// observeRole updates the talking substate; only while the session is live
func (c *Controller) observeRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected, StateListening, StateAgentSpeaking:
	default:
		return
	}

	switch role {
	case "agent", "assistant":
		c.state = StateAgentSpeaking
	case "user":
		c.state = StateListening
	}
}
