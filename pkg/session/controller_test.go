package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldvoice/reporter/pkg/checklist"
	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/finalize"
	"github.com/fieldvoice/reporter/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition() *checklist.Definition {
	return &checklist.Definition{Items: []checklist.Item{
		{ID: "arrival", Question: "What time did you arrive on site?", Keywords: []string{"arrival", "arrived"}, Required: true},
		{ID: "materials", Question: "Did the materials arrive?", Keywords: []string{"materials"}, Required: true},
		{ID: "safety", Question: "Any safety incidents?", Keywords: []string{"safety"}, Required: true},
	}}
}

func testRequest() session.StartRequest {
	return session.StartRequest{AgentID: "agent-1", OwnerID: "emp-9", ProjectID: "proj-4"}
}

// finalizeRecorder captures the controller's finalization handoff
type finalizeRecorder struct {
	mu       sync.Mutex
	meta     finalize.SessionMeta
	progress checklist.Progress
	called   chan struct{}
}

func newFinalizeRecorder() *finalizeRecorder {
	return &finalizeRecorder{called: make(chan struct{})}
}

func (r *finalizeRecorder) fn(meta finalize.SessionMeta, progress checklist.Progress) {
	r.mu.Lock()
	r.meta = meta
	r.progress = progress
	r.mu.Unlock()
	close(r.called)
}

func (r *finalizeRecorder) wait(t *testing.T) (finalize.SessionMeta, checklist.Progress) {
	t.Helper()
	select {
	case <-r.called:
	case <-time.After(2 * time.Second):
		t.Fatal("finalization handoff never happened")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta, r.progress
}

func TestControllerLifecycle(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	recorder := newFinalizeRecorder()
	ctrl := session.NewController(conn, testDefinition(), recorder.fn)

	assert.Equal(t, session.StateIdle, ctrl.State())

	require.NoError(t, ctrl.Start(context.Background(), testRequest()))
	require.NotNil(t, ctrl.Handle())

	require.NoError(t, ctrl.End(context.Background()))
	assert.Equal(t, session.StateEnded, ctrl.State())

	meta, _ := recorder.wait(t)
	assert.Equal(t, ctrl.Handle().SessionID, meta.Handle.SessionID)
	assert.Equal(t, "emp-9", meta.OwnerID)
	assert.Equal(t, "proj-4", meta.ProjectID)
	assert.False(t, meta.EndedAt.IsZero())
}

func TestControllerRejectsConcurrentStart(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	ctrl := session.NewController(conn, testDefinition(), nil)

	require.NoError(t, ctrl.Start(context.Background(), testRequest()))

	err := ctrl.Start(context.Background(), testRequest())
	assert.ErrorIs(t, err, session.ErrSessionActive)
}

func TestControllerStartAfterEnd(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	ctrl := session.NewController(conn, testDefinition(), nil)

	require.NoError(t, ctrl.Start(context.Background(), testRequest()))
	require.NoError(t, ctrl.End(context.Background()))

	// A finished session must not block starting the next one
	assert.NoError(t, ctrl.Start(context.Background(), testRequest()))
}

func TestControllerConnectFailureIsFatal(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ConnectErr = errors.New("backend down")
	ctrl := session.NewController(conn, testDefinition(), nil)

	err := ctrl.Start(context.Background(), testRequest())
	require.Error(t, err)

	var connErr *connector.ConnectionError
	assert.ErrorAs(t, err, &connErr, "open failure must surface as a connection error")
	assert.Equal(t, session.StateFailed, ctrl.State())

	// The controller recovers once the backend does
	conn.ConnectErr = nil
	assert.NoError(t, ctrl.Start(context.Background(), testRequest()))
}

func TestControllerEndWithoutSession(t *testing.T) {
	ctrl := session.NewController(connector.NewInMemoryConnector(), testDefinition(), nil)
	assert.ErrorIs(t, ctrl.End(context.Background()), session.ErrNoActiveSession)
}

func TestControllerTracksLiveProgress(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptEvents(
		connector.DialogueEvent{Role: "agent", Payload: "What time did you arrive on site?"},
		connector.DialogueEvent{Role: "user", Payload: "arrived on site at 7am"},
		connector.DialogueEvent{Role: "user", Payload: "received materials today"},
	)

	recorder := newFinalizeRecorder()
	ctrl := session.NewController(conn, testDefinition(), recorder.fn)

	require.NoError(t, ctrl.Start(context.Background(), testRequest()))

	// Dialogue events flow in asynchronously; wait until the tracker has them
	require.Eventually(t, func() bool {
		progress, ok := ctrl.Progress()
		return ok && progress.RequiredDone == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ctrl.End(context.Background()))

	_, progress := recorder.wait(t)
	assert.Equal(t, 2, progress.RequiredDone)
	assert.Equal(t, 3, progress.RequiredTotal)
}

func TestControllerSeedsTrackerWithFirstPrompt(t *testing.T) {
	def := &checklist.Definition{Items: []checklist.Item{
		{ID: "greeting", Question: "Good morning, ready for your arrival report?", Keywords: []string{"arrival"}, Required: true},
	}}

	conn := connector.NewInMemoryConnector()
	ctrl := session.NewController(conn, def, nil)

	require.NoError(t, ctrl.Start(context.Background(), testRequest()))

	// The seeded opening prompt itself mentions the first topic
	progress, ok := ctrl.Progress()
	require.True(t, ok)
	assert.True(t, progress.Items[0].Completed)
}

func TestControllerProgressBeforeStart(t *testing.T) {
	ctrl := session.NewController(connector.NewInMemoryConnector(), testDefinition(), nil)
	_, ok := ctrl.Progress()
	assert.False(t, ok)
}

func TestControllerEndDoesNotBlockOnFinalization(t *testing.T) {
	conn := connector.NewInMemoryConnector()

	release := make(chan struct{})
	ctrl := session.NewController(conn, testDefinition(), func(finalize.SessionMeta, checklist.Progress) {
		<-release
	})

	require.NoError(t, ctrl.Start(context.Background(), testRequest()))

	done := make(chan error, 1)
	go func() { done <- ctrl.End(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("End blocked on the finalization callback")
	}

	close(release)
}
