package connector

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TranscriptStatus tracks the backend's asynchronous transcript finalization
type TranscriptStatus string

const (
	StatusPending    TranscriptStatus = "pending"
	StatusProcessing TranscriptStatus = "processing"
	StatusDone       TranscriptStatus = "done"
	StatusFailed     TranscriptStatus = "failed"
)

// DialogueEvent is a single immutable turn in the live conversation.
// Payload is either a plain string or a decoded JSON object, depending
// on what the voice backend pushed
type DialogueEvent struct {
	Role      string    `json:"role"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Text extracts the spoken text from the event payload. For structured
// payloads the first non-empty field among "message", "text", "content"
// wins; anything else is stringified wholesale. The result is lower-cased
func (e DialogueEvent) Text() string {
	switch v := e.Payload.(type) {
	case string:
		return strings.ToLower(v)
	case map[string]any:
		for _, field := range []string{"message", "text", "content"} {
			if s, ok := v[field].(string); ok && s != "" {
				return strings.ToLower(s)
			}
		}
		return strings.ToLower(fmt.Sprintf("%v", v))
	default:
		return strings.ToLower(fmt.Sprintf("%v", v))
	}
}

// Transcript is the backend's finalized record of a conversation.
// Only StatusDone with a non-empty event list is usable
type Transcript struct {
	SessionID string           `json:"session_id"`
	Status    TranscriptStatus `json:"status"`
	Events    []DialogueEvent  `json:"events"`
}

// Usable reports whether the transcript is complete enough to embed in a report
func (t *Transcript) Usable() bool {
	return t != nil && t.Status == StatusDone && len(t.Events) > 0
}

// Audio is the optional recording of a conversation. A nil or empty
// Data slice means no audio was produced, which is not an error
type Audio struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// Handle identifies one live dialogue session on the voice backend
type Handle struct {
	SessionID string
	AgentID   string
}

// ConnectionError indicates the backend could not open or maintain a
// session. It is the only fatal, user-facing failure in the system
type ConnectionError struct {
	AgentID string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to agent %s: %v", e.AgentID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Connector is the boundary to the conversational voice backend. The
// backend conducts the interview itself and finalizes transcript/audio
// asynchronously after Close; retrieval calls may return incomplete
// artifacts for a while
type Connector interface {
	// Connect opens a dialogue session with the given agent. Metadata is
	// forwarded to the backend as conversation context
	Connect(ctx context.Context, agentID string, metadata map[string]string) (*Handle, error)

	// Close ends the live session. Transcript and audio keep finalizing
	// on the backend after this returns
	Close(ctx context.Context, h *Handle) error

	// Events returns the live dialogue event stream for an open session.
	// The channel closes when the session ends
	Events(h *Handle) <-chan DialogueEvent

	// GetTranscript fetches the transcript in whatever state the backend
	// has it. Callers must check Transcript.Usable
	GetTranscript(ctx context.Context, h *Handle) (*Transcript, error)

	// GetAudio fetches the session recording. A nil result with nil error
	// means no audio is available
	GetAudio(ctx context.Context, h *Handle) (*Audio, error)
}
