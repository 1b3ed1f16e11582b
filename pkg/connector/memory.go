package connector

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryConnector provides an in-memory implementation of Connector for
// testing and for running the system without a live voice backend. Dialogue
// events, transcript responses, and audio responses are scripted in advance
type InMemoryConnector struct {
	mutex sync.Mutex

	// ConnectErr, when set, makes Connect fail with a ConnectionError
	ConnectErr error

	scriptedEvents []DialogueEvent
	transcripts    []*Transcript
	audios         []*Audio

	transcriptCalls int
	audioCalls      int

	nextID   int
	channels map[string]chan DialogueEvent
	closed   map[string]bool
}

// NewInMemoryConnector creates a new in-memory connector
func NewInMemoryConnector() *InMemoryConnector {
	return &InMemoryConnector{
		channels: make(map[string]chan DialogueEvent),
		closed:   make(map[string]bool),
	}
}

// ScriptEvents queues dialogue events that every new session will emit
func (c *InMemoryConnector) ScriptEvents(events ...DialogueEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.scriptedEvents = append(c.scriptedEvents, events...)
}

// ScriptTranscripts queues transcript responses, consumed one per
// GetTranscript call; the last response repeats once the queue drains
func (c *InMemoryConnector) ScriptTranscripts(transcripts ...*Transcript) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.transcripts = append(c.transcripts, transcripts...)
}

// ScriptAudios queues audio responses, consumed one per GetAudio call;
// the last response repeats once the queue drains. A nil entry means no
// audio is available
func (c *InMemoryConnector) ScriptAudios(audios ...*Audio) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.audios = append(c.audios, audios...)
}

// TranscriptCalls returns how many times GetTranscript has been called
func (c *InMemoryConnector) TranscriptCalls() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.transcriptCalls
}

// AudioCalls returns how many times GetAudio has been called
func (c *InMemoryConnector) AudioCalls() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.audioCalls
}

// Connect opens a scripted session and emits the queued dialogue events
func (c *InMemoryConnector) Connect(ctx context.Context, agentID string, metadata map[string]string) (*Handle, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.ConnectErr != nil {
		return nil, &ConnectionError{AgentID: agentID, Err: c.ConnectErr}
	}

	c.nextID++
	sessionID := fmt.Sprintf("mem-session-%d", c.nextID)

	ch := make(chan DialogueEvent, len(c.scriptedEvents)+1)
	for _, ev := range c.scriptedEvents {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		ch <- ev
	}
	c.channels[sessionID] = ch

	return &Handle{SessionID: sessionID, AgentID: agentID}, nil
}

// Close ends the session and closes its event channel
func (c *InMemoryConnector) Close(ctx context.Context, h *Handle) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed[h.SessionID] {
		return fmt.Errorf("session %s already closed", h.SessionID)
	}

	if ch, ok := c.channels[h.SessionID]; ok {
		close(ch)
	}
	c.closed[h.SessionID] = true
	return nil
}

// Events returns the scripted dialogue event stream for a session
func (c *InMemoryConnector) Events(h *Handle) <-chan DialogueEvent {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if ch, ok := c.channels[h.SessionID]; ok {
		return ch
	}

	ch := make(chan DialogueEvent)
	close(ch)
	return ch
}

// GetTranscript pops the next scripted transcript response
func (c *InMemoryConnector) GetTranscript(ctx context.Context, h *Handle) (*Transcript, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.transcriptCalls++

	if len(c.transcripts) == 0 {
		return &Transcript{SessionID: h.SessionID, Status: StatusProcessing}, nil
	}

	t := c.transcripts[0]
	if len(c.transcripts) > 1 {
		c.transcripts = c.transcripts[1:]
	}

	if t != nil && t.SessionID == "" {
		t.SessionID = h.SessionID
	}
	return t, nil
}

// GetAudio pops the next scripted audio response
func (c *InMemoryConnector) GetAudio(ctx context.Context, h *Handle) (*Audio, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.audioCalls++

	if len(c.audios) == 0 {
		return nil, nil
	}

	a := c.audios[0]
	if len(c.audios) > 1 {
		c.audios = c.audios[1:]
	}
	return a, nil
}
