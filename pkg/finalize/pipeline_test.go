package finalize_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldvoice/reporter/pkg/checklist"
	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/finalize"
	"github.com/fieldvoice/reporter/pkg/report"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// flakyStore fails a set number of Save calls before delegating
type flakyStore struct {
	inner    report.Store
	failures int
	calls    int
}

func (s *flakyStore) Save(ctx context.Context, r *report.Report) (*report.SaveResult, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("connection refused")
	}
	return s.inner.Save(ctx, r)
}

func (s *flakyStore) Get(ctx context.Context, id uuid.UUID) (*report.Report, error) {
	return s.inner.Get(ctx, id)
}

func (s *flakyStore) FindByProjectAndDate(ctx context.Context, projectID, date string) ([]*report.Report, error) {
	return s.inner.FindByProjectAndDate(ctx, projectID, date)
}

func newTestStore(t *testing.T) *report.MySqlStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reports.db")), &gorm.Config{})
	require.NoError(t, err)

	store, err := report.NewStoreWithDB(db)
	require.NoError(t, err)
	return store
}

func newTestFallback(t *testing.T) *report.FallbackLog {
	t.Helper()

	log, err := report.NewFallbackLog(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func fastOptions() *finalize.Options {
	return &finalize.Options{
		TranscriptPolicy: finalize.Policy{MaxAttempts: 6, Interval: time.Millisecond},
		AudioPolicy:      finalize.Policy{MaxAttempts: 6, Interval: time.Millisecond},
	}
}

func testMeta(sessionID string) finalize.SessionMeta {
	return finalize.SessionMeta{
		Handle:    &connector.Handle{SessionID: sessionID, AgentID: "agent-1"},
		OwnerID:   "emp-9",
		ProjectID: "proj-4",
		StartedAt: time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 3, 14, 7, 12, 0, 0, time.UTC),
	}
}

func doneTranscript(events int) *connector.Transcript {
	t := &connector.Transcript{Status: connector.StatusDone}
	for i := 0; i < events; i++ {
		t.Events = append(t.Events, connector.DialogueEvent{Role: "user", Payload: fmt.Sprintf("event %d", i)})
	}
	return t
}

func TestPipelineAcceptsTranscriptOnThirdPoll(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(
		&connector.Transcript{Status: connector.StatusProcessing},
		&connector.Transcript{Status: connector.StatusProcessing},
		doneTranscript(2),
	)
	conn.ScriptAudios(nil)

	pipeline := finalize.NewPipeline(conn, newTestStore(t), newTestFallback(t), fastOptions())

	outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
	require.NoError(t, err)

	assert.False(t, outcome.TranscriptPending)
	assert.Len(t, outcome.Report.Transcript.Events, 2)
	assert.Equal(t, 3, conn.TranscriptCalls(), "acceptance on attempt 3 must not issue a 4th poll")
}

func TestPipelinePlaceholderAfterExhaustion(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(&connector.Transcript{Status: connector.StatusProcessing})
	conn.ScriptAudios(nil)

	pipeline := finalize.NewPipeline(conn, newTestStore(t), newTestFallback(t), fastOptions())

	outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
	require.NoError(t, err)

	assert.Equal(t, 6, conn.TranscriptCalls())
	assert.True(t, outcome.TranscriptPending)
	assert.Equal(t, "sess-1", outcome.Report.Transcript.SessionID, "placeholder must preserve the session identifier")
	assert.Equal(t, connector.StatusPending, outcome.Report.Transcript.Status)
	assert.False(t, outcome.Report.TranscriptUsable())
}

func TestPipelineAbortsPollingOnFailedTranscript(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(&connector.Transcript{Status: connector.StatusFailed})
	conn.ScriptAudios(nil)

	pipeline := finalize.NewPipeline(conn, newTestStore(t), newTestFallback(t), fastOptions())

	outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, conn.TranscriptCalls(), "failed status must stop polling immediately")
	assert.True(t, outcome.TranscriptPending)
}

func TestPipelineMissingAudioIsNotAnError(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(doneTranscript(1))

	pipeline := finalize.NewPipeline(conn, newTestStore(t), newTestFallback(t), fastOptions())

	outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
	require.NoError(t, err)

	assert.True(t, outcome.AudioMissing)
	assert.False(t, outcome.Report.HasAudio())
	assert.False(t, outcome.Degraded, "missing audio alone is not degraded mode")
	assert.Equal(t, 6, conn.AudioCalls(), "audio polling is bounded")
}

func TestPipelineFallbackOnPrimarySaveFailure(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(doneTranscript(3))
	conn.ScriptAudios(&connector.Audio{Data: []byte{1, 2, 3}, MimeType: "audio/mpeg", Size: 3})

	store := &flakyStore{inner: newTestStore(t), failures: 1}
	fallback := newTestFallback(t)
	pipeline := finalize.NewPipeline(conn, store, fallback, fastOptions())

	outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
	require.NoError(t, err, "a fallback write still counts as success")

	assert.True(t, outcome.Degraded)
	assert.False(t, outcome.Report.Persisted)
	assert.NotEmpty(t, outcome.Warnings)

	// The fallback record carries the full payload: transcript and audio intact
	pending, err := fallback.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].SavedToCloud)

	decoded, err := pending[0].Decode()
	require.NoError(t, err)
	assert.Len(t, decoded.Transcript.Events, 3)
	assert.Equal(t, []byte{1, 2, 3}, decoded.AudioData)
}

func TestPipelineIdempotentPersistence(t *testing.T) {
	store := newTestStore(t)

	run := func() *finalize.Outcome {
		conn := connector.NewInMemoryConnector()
		conn.ScriptTranscripts(doneTranscript(2))
		conn.ScriptAudios(nil)

		pipeline := finalize.NewPipeline(conn, store, newTestFallback(t), fastOptions())

		outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
		require.NoError(t, err)
		return outcome
	}

	first := run()
	second := run()

	assert.Equal(t, first.Report.ID, second.Report.ID, "same session must yield the same report id")

	reports, err := store.FindByProjectAndDate(context.Background(), "proj-4", "2026-03-14")
	require.NoError(t, err)
	assert.Len(t, reports, 1, "retried persistence must not duplicate the record")
}

func TestPipelineStatusProgression(t *testing.T) {
	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(doneTranscript(1))
	conn.ScriptAudios(nil)

	pipeline := finalize.NewPipeline(conn, newTestStore(t), newTestFallback(t), fastOptions())
	assert.Equal(t, "Idle", pipeline.Status())

	_, err := pipeline.Finalize(context.Background(), testMeta("sess-1"))
	require.NoError(t, err)
	assert.Equal(t, "Report saved", pipeline.Status())
}

func TestPipelineRequiresHandle(t *testing.T) {
	pipeline := finalize.NewPipeline(connector.NewInMemoryConnector(), newTestStore(t), newTestFallback(t), fastOptions())

	_, err := pipeline.Finalize(context.Background(), finalize.SessionMeta{})
	assert.Error(t, err)
}

// Full scenario: a short interview covering two of three required topics,
// transcript and audio both ready on the first poll
func TestPipelineEndToEnd(t *testing.T) {
	def := &checklist.Definition{Items: []checklist.Item{
		{ID: "arrival", Question: "When did you arrive?", Keywords: []string{"arrival", "arrived"}, Required: true},
		{ID: "materials", Question: "Did materials arrive?", Keywords: []string{"materials"}, Required: true},
		{ID: "safety", Question: "Any safety incidents?", Keywords: []string{"safety"}, Required: true},
	}}
	tracker := checklist.NewTracker(def)

	dialogue := []connector.DialogueEvent{
		{Role: "agent", Payload: "When did you arrive?"},
		{Role: "user", Payload: "arrived on site at 7am"},
		{Role: "user", Payload: "received materials today"},
	}
	for _, ev := range dialogue {
		tracker.Observe(ev)
	}

	progress := tracker.Snapshot()
	assert.Equal(t, 2, progress.RequiredDone)
	assert.Equal(t, 3, progress.RequiredTotal)

	conn := connector.NewInMemoryConnector()
	conn.ScriptTranscripts(&connector.Transcript{Status: connector.StatusDone, Events: dialogue})
	conn.ScriptAudios(&connector.Audio{Data: []byte("mp3-bytes"), MimeType: "audio/mpeg", Size: 9})

	pipeline := finalize.NewPipeline(conn, newTestStore(t), newTestFallback(t), fastOptions())

	outcome, err := pipeline.Finalize(context.Background(), testMeta("sess-e2e"))
	require.NoError(t, err)

	assert.Equal(t, 1, conn.TranscriptCalls())
	assert.Equal(t, 1, conn.AudioCalls())
	assert.True(t, outcome.Report.HasAudio())
	assert.Len(t, outcome.Report.Transcript.Events, 3)
	assert.True(t, outcome.Report.Persisted)
	assert.False(t, outcome.Degraded)
}
