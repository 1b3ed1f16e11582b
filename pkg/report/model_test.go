package report_test

import (
	"testing"
	"time"

	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReportIDDeterministic(t *testing.T) {
	date := time.Date(2026, 3, 14, 16, 45, 0, 0, time.UTC)

	first := report.NewReportID("sess-1", "emp-9", date)
	second := report.NewReportID("sess-1", "emp-9", date)
	assert.Equal(t, first, second, "same inputs must derive the same id")

	// Time-of-day must not affect the id, only the calendar date
	later := report.NewReportID("sess-1", "emp-9", date.Add(3*time.Hour))
	assert.Equal(t, first, later)

	assert.NotEqual(t, first, report.NewReportID("sess-2", "emp-9", date))
	assert.NotEqual(t, first, report.NewReportID("sess-1", "emp-8", date))
	assert.NotEqual(t, first, report.NewReportID("sess-1", "emp-9", date.AddDate(0, 0, 1)))
}

func TestNewReport(t *testing.T) {
	date := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	transcript := &connector.Transcript{
		SessionID: "sess-1",
		Status:    connector.StatusDone,
		Events:    []connector.DialogueEvent{{Role: "user", Payload: "arrived at 7am"}},
	}
	audio := &connector.Audio{Data: []byte{1, 2, 3}, MimeType: "audio/mpeg", Size: 3}

	r := report.NewReport("sess-1", "emp-9", "proj-4", date, transcript, audio)

	assert.Equal(t, report.NewReportID("sess-1", "emp-9", date), r.ID)
	assert.Equal(t, "2026-03-14", r.ReportDate)
	assert.True(t, r.TranscriptUsable())
	assert.True(t, r.HasAudio())
	assert.Equal(t, "audio/mpeg", r.AudioMime)
	assert.False(t, r.Persisted, "persisted is set only by the store")
}

func TestNewReportWithoutAudio(t *testing.T) {
	date := time.Now()

	r := report.NewReport("sess-1", "emp-9", "proj-4", date, &connector.Transcript{
		SessionID: "sess-1",
		Status:    connector.StatusPending,
	}, nil)

	require.NotNil(t, r)
	assert.False(t, r.HasAudio())
	assert.False(t, r.TranscriptUsable(), "pending transcript is a placeholder")

	// An empty audio blob counts as no audio
	empty := report.NewReport("sess-1", "emp-9", "proj-4", date, nil, &connector.Audio{})
	assert.False(t, empty.HasAudio())
}
