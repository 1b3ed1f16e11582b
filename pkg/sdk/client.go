package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps calls to the field reporter backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// StartSession opens a new interview session
func (c *Client) StartSession(ctx context.Context, req *StartSessionRequest) (*SessionStatus, error) {
	var out ApiResponse[SessionStatus]
	if err := c.doJSON(ctx, http.MethodPost, "/api/interview/session/start", req, &out); err != nil {
		return nil, err
	}

	if out.Status == StatusError {
		return nil, fmt.Errorf("failed to start session: %s", out.Message)
	}

	return &out.Data, nil
}

// EndSession ends the active interview session and kicks off finalization
func (c *Client) EndSession(ctx context.Context) (*SessionStatus, error) {
	var out ApiResponse[SessionStatus]
	if err := c.doJSON(ctx, http.MethodPost, "/api/interview/session/end", nil, &out); err != nil {
		return nil, err
	}

	if out.Status == StatusError {
		return nil, fmt.Errorf("failed to end session: %s", out.Message)
	}

	return &out.Data, nil
}

// GetProgress returns the live checklist completion snapshot
func (c *Client) GetProgress(ctx context.Context) (*ProgressResponse, error) {
	var out ApiResponse[ProgressResponse]
	if err := c.doJSON(ctx, http.MethodGet, "/api/interview/session/progress", nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// GetStatus returns the session lifecycle and finalization phase status
func (c *Client) GetStatus(ctx context.Context) (*SessionStatus, error) {
	var out ApiResponse[SessionStatus]
	if err := c.doJSON(ctx, http.MethodGet, "/api/interview/session/status", nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// GetLastOutcome returns the result of the most recent finalization
func (c *Client) GetLastOutcome(ctx context.Context) (*FinalizeOutcome, error) {
	var out ApiResponse[FinalizeOutcome]
	if err := c.doJSON(ctx, http.MethodGet, "/api/interview/session/outcome", nil, &out); err != nil {
		return nil, err
	}

	if out.Status == StatusError {
		return nil, fmt.Errorf("no finalization outcome: %s", out.Message)
	}

	return &out.Data, nil
}

// GetReport retrieves a stored report's metadata by id
func (c *Client) GetReport(ctx context.Context, id string) (*ReportSummary, error) {
	var out ApiResponse[ReportSummary]
	path := fmt.Sprintf("/api/report/%s", id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	if out.Status == StatusError {
		return nil, fmt.Errorf("failed to get report: %s", out.Message)
	}

	return &out.Data, nil
}

// ListReports retrieves report metadata for a project on a given date
func (c *Client) ListReports(ctx context.Context, projectID, date string) ([]ReportSummary, error) {
	var out ApiResponse[[]ReportSummary]
	path := fmt.Sprintf("/api/report?project_id=%s&date=%s", projectID, date)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return out.Data, nil
}

// doJSON is a helper to perform JSON requests to the backend
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
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
