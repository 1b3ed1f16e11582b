package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	// How often the event stream is polled while a session is live
	eventPollInterval = 1 * time.Second

	// Buffered so a slow consumer does not stall polling
	eventChannelSize = 100
)

// HTTPConnector talks to the voice backend over its REST API
type HTTPConnector struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	streams map[string]*eventStream
}

// eventStream tracks the polling loop for one live session
type eventStream struct {
	ch     chan DialogueEvent
	cancel context.CancelFunc
	cursor int
}

// NewHTTPConnector creates a connector client for the given backend
func NewHTTPConnector(baseURL, apiKey string) *HTTPConnector {
	return &HTTPConnector{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		streams:    make(map[string]*eventStream),
	}
}

// Connect opens a dialogue session with the given agent
func (c *HTTPConnector) Connect(ctx context.Context, agentID string, metadata map[string]string) (*Handle, error) {
	req := struct {
		AgentID  string            `json:"agent_id"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}{AgentID: agentID, Metadata: metadata}

	var resp struct {
		SessionID string `json:"session_id"`
	}

	if err := c.doJSON(ctx, http.MethodPost, "/v1/conversations", req, &resp); err != nil {
		return nil, &ConnectionError{AgentID: agentID, Err: err}
	}
	if resp.SessionID == "" {
		return nil, &ConnectionError{AgentID: agentID, Err: fmt.Errorf("backend returned no session id")}
	}

	handle := &Handle{SessionID: resp.SessionID, AgentID: agentID}

	// Start the event polling loop for this session
	streamCtx, cancel := context.WithCancel(context.Background())
	stream := &eventStream{
		ch:     make(chan DialogueEvent, eventChannelSize),
		cancel: cancel,
	}

	c.mu.Lock()
	c.streams[handle.SessionID] = stream
	c.mu.Unlock()

	go c.pollEvents(streamCtx, handle, stream)

	return handle, nil
}

// Close ends the live session and stops its event stream
func (c *HTTPConnector) Close(ctx context.Context, h *Handle) error {
	c.mu.Lock()
	stream, ok := c.streams[h.SessionID]
	if ok {
		delete(c.streams, h.SessionID)
	}
	c.mu.Unlock()

	if ok {
		stream.cancel()
	}

	path := fmt.Sprintf("/v1/conversations/%s", h.SessionID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to close session %s: %w", h.SessionID, err)
	}

	return nil
}

// Events returns the live dialogue event stream for an open session
func (c *HTTPConnector) Events(h *Handle) <-chan DialogueEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stream, ok := c.streams[h.SessionID]; ok {
		return stream.ch
	}

	// Session unknown or already closed; hand back a closed channel so
	// consumers fall through their range loops
	ch := make(chan DialogueEvent)
	close(ch)
	return ch
}

// GetTranscript fetches the transcript in whatever state the backend has it
func (c *HTTPConnector) GetTranscript(ctx context.Context, h *Handle) (*Transcript, error) {
	path := fmt.Sprintf("/v1/conversations/%s/transcript", h.SessionID)

	var transcript Transcript
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &transcript); err != nil {
		return nil, fmt.Errorf("failed to get transcript for session %s: %w", h.SessionID, err)
	}

	if transcript.SessionID == "" {
		transcript.SessionID = h.SessionID
	}

	return &transcript, nil
}

// GetAudio fetches the session recording as raw bytes
func (c *HTTPConnector) GetAudio(ctx context.Context, h *Handle) (*Audio, error) {
	path := fmt.Sprintf("/v1/conversations/%s/audio", h.SessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio for session %s: %w", h.SessionID, err)
	}
	defer resp.Body.Close()

	// The backend answers 404/204 while (or if) no recording exists
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("backend 'GET %s' failed: %d: %s", path, resp.StatusCode, string(b))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}

	return &Audio{Data: data, MimeType: mime, Size: len(data)}, nil
}

// pollEvents repeatedly fetches new dialogue events and pushes them to the
// session's channel until the stream is cancelled
func (c *HTTPConnector) pollEvents(ctx context.Context, h *Handle, stream *eventStream) {
	defer close(stream.ch)

	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := c.fetchEvents(ctx, h, stream.cursor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[CONNECTOR]: event poll failed for session %s: %v", h.SessionID, err)
				continue
			}

			for _, ev := range events {
				select {
				case stream.ch <- ev:
					stream.cursor++
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// fetchEvents retrieves dialogue events after the given cursor position
func (c *HTTPConnector) fetchEvents(ctx context.Context, h *Handle, after int) ([]DialogueEvent, error) {
	path := fmt.Sprintf("/v1/conversations/%s/events?after=%d", h.SessionID, after)

	var resp struct {
		Events []DialogueEvent `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Events, nil
}

// doJSON is a helper to perform JSON requests to the backend
func (c *HTTPConnector) doJSON(ctx context.Context, method, path string, in any, out any) error {
	// Create request body if input is provided
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(b)
	}

	// Create the request
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	// Perform the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// On error, read body and return error
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend '%s %s' failed: %d: %s", method, path, resp.StatusCode, string(b))
	}

	// If no output expected, return early
	if out == nil {
		return nil
	}

	// Decode the response body into the output struct
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}
