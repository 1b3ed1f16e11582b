package finalize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/report"
	"github.com/fieldvoice/reporter/pkg/utils"
)

// Default polling policies. The backend finalizes transcripts a few
// seconds after the socket closes, hence the pre-poll delay; audio is
// usually ready sooner
var (
	DefaultTranscriptPolicy = Policy{MaxAttempts: 6, Interval: 5 * time.Second, InitialDelay: 8 * time.Second}
	DefaultAudioPolicy      = Policy{MaxAttempts: 6, Interval: 5 * time.Second}
)

// SessionMeta carries everything the pipeline needs from a finished session
type SessionMeta struct {
	Handle    *connector.Handle
	OwnerID   string
	ProjectID string
	StartedAt time.Time
	EndedAt   time.Time
}

// Outcome describes what the pipeline produced. The pipeline degrades
// rather than fails: a pending transcript, missing audio, or a fallback
// write are all recorded here, not returned as errors
type Outcome struct {
	Report     *report.Report
	SaveResult *report.SaveResult

	TranscriptPending bool     // placeholder transcript substituted
	AudioMissing      bool     // no usable recording acquired
	Degraded          bool     // primary save failed, fallback log used
	Warnings          []string // human-readable notes for the operator
}

// Options configures a pipeline's polling behavior
type Options struct {
	TranscriptPolicy Policy
	AudioPolicy      Policy
}

// OptionsFromConfig reads the polling knobs from config, falling back to
// the defaults for any key not set
func OptionsFromConfig(cfg *utils.Config) *Options {
	return &Options{
		TranscriptPolicy: Policy{
			MaxAttempts:  cfg.GetIntWithDefault("FINALIZE_TRANSCRIPT_ATTEMPTS", DefaultTranscriptPolicy.MaxAttempts),
			Interval:     cfg.GetDuration("FINALIZE_TRANSCRIPT_INTERVAL", DefaultTranscriptPolicy.Interval),
			InitialDelay: cfg.GetDuration("FINALIZE_TRANSCRIPT_INITIAL_DELAY", DefaultTranscriptPolicy.InitialDelay),
		},
		AudioPolicy: Policy{
			MaxAttempts:  cfg.GetIntWithDefault("FINALIZE_AUDIO_ATTEMPTS", DefaultAudioPolicy.MaxAttempts),
			Interval:     cfg.GetDuration("FINALIZE_AUDIO_INTERVAL", DefaultAudioPolicy.Interval),
			InitialDelay: cfg.GetDuration("FINALIZE_AUDIO_INITIAL_DELAY", DefaultAudioPolicy.InitialDelay),
		},
	}
}

// Pipeline turns an ended session into a durable report: it polls the
// backend for the finalized transcript and audio, assembles the report,
// and persists it with a local fallback when the primary store fails.
// Once started it runs to completion; losing captured data is worse than
// keeping the operator waiting
type Pipeline struct {
	conn     connector.Connector
	store    report.Store
	fallback *report.FallbackLog
	opts     Options

	mu     sync.RWMutex
	status string
}

// NewPipeline creates a finalization pipeline. opts may be nil for defaults
func NewPipeline(conn connector.Connector, store report.Store, fallback *report.FallbackLog, opts *Options) *Pipeline {
	if opts == nil {
		opts = &Options{
			TranscriptPolicy: DefaultTranscriptPolicy,
			AudioPolicy:      DefaultAudioPolicy,
		}
	}

	return &Pipeline{
		conn:     conn,
		store:    store,
		fallback: fallback,
		opts:     *opts,
		status:   "Idle",
	}
}

// Status returns the current human-readable phase description, so the
// operator never perceives the pipeline as stalled
func (p *Pipeline) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Pipeline) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Finalize runs the full pipeline for one ended session. Transcript and
// audio acquisition run concurrently; their results combine only when
// persistence begins. The returned error is non-nil only when captured
// data could not be preserved anywhere
func (p *Pipeline) Finalize(ctx context.Context, meta SessionMeta) (*Outcome, error) {
	if meta.Handle == nil {
		return nil, fmt.Errorf("finalize called without a session handle")
	}

	log.Printf("[FINALIZE]: starting finalization for session %s", meta.Handle.SessionID)
	p.setStatus("Waiting for transcript…")

	var (
		wg                sync.WaitGroup
		transcript        *connector.Transcript
		transcriptPending bool
		audio             *connector.Audio
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		transcript, transcriptPending = p.acquireTranscript(ctx, meta.Handle)
	}()
	go func() {
		defer wg.Done()
		audio = p.acquireAudio(ctx, meta.Handle)
	}()
	wg.Wait()

	// Phase results combine only here, once both acquisitions are done
	outcome := &Outcome{
		TranscriptPending: transcriptPending,
		AudioMissing:      audio == nil,
	}
	if transcriptPending {
		outcome.Warnings = append(outcome.Warnings, "transcript still pending on backend; placeholder stored")
	}
	if audio == nil {
		outcome.Warnings = append(outcome.Warnings, "no audio recording available")
	}

	p.setStatus("Uploading report…")

	r := report.NewReport(meta.Handle.SessionID, meta.OwnerID, meta.ProjectID, p.reportDate(meta), transcript, audio)
	outcome.Report = r

	result, err := p.store.Save(ctx, r)
	if err == nil {
		outcome.SaveResult = result
		p.setStatus("Report saved")
		log.Printf("[FINALIZE]: report %s saved to %s", r.ID, result.StoragePath)
		return outcome, nil
	}

	// Primary store unreachable; degrade to the local fallback log. The
	// capture still counts as successful because no data was lost
	log.Printf("[FINALIZE]: primary store save failed for report %s: %v", r.ID, err)

	r.Persisted = false
	if fbErr := p.fallback.Write(ctx, r); fbErr != nil {
		p.setStatus("Save failed")
		return outcome, fmt.Errorf("failed to save report %s anywhere: primary: %v, fallback: %w", r.ID, err, fbErr)
	}

	outcome.Degraded = true
	outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("report saved locally only: %v", err))
	p.setStatus("Saved locally (degraded)")
	log.Printf("[FINALIZE]: report %s written to local fallback log", r.ID)

	return outcome, nil
}

// acquireTranscript polls until the backend reports a usable transcript.
// A failed status aborts immediately; exhaustion falls back to a
// placeholder that preserves the session identifier
func (p *Pipeline) acquireTranscript(ctx context.Context, h *connector.Handle) (*connector.Transcript, bool) {
	transcript, err := Poll(ctx, p.opts.TranscriptPolicy,
		func(ctx context.Context) (*connector.Transcript, error) {
			return p.conn.GetTranscript(ctx, h)
		},
		func(t *connector.Transcript) bool { return t.Usable() },
		func(t *connector.Transcript) bool { return t != nil && t.Status == connector.StatusFailed },
	)
	if err == nil {
		log.Printf("[FINALIZE]: transcript ready for session %s (%d events)", h.SessionID, len(transcript.Events))
		return transcript, false
	}

	switch {
	case errors.Is(err, ErrAborted):
		log.Printf("[FINALIZE]: backend reported transcript failure for session %s", h.SessionID)
	default:
		log.Printf("[FINALIZE]: transcript not available for session %s: %v", h.SessionID, err)
	}

	return &connector.Transcript{
		SessionID: h.SessionID,
		Status:    connector.StatusPending,
	}, true
}

// acquireAudio polls for the session recording. Absence is a valid
// outcome; audio problems never abort the pipeline
func (p *Pipeline) acquireAudio(ctx context.Context, h *connector.Handle) *connector.Audio {
	p.setStatus("Downloading audio…")

	audio, err := Poll(ctx, p.opts.AudioPolicy,
		func(ctx context.Context) (*connector.Audio, error) {
			return p.conn.GetAudio(ctx, h)
		},
		func(a *connector.Audio) bool { return a != nil && len(a.Data) > 0 },
		nil,
	)
	if err != nil {
		log.Printf("[FINALIZE]: no audio for session %s: %v", h.SessionID, err)
		return nil
	}

	log.Printf("[FINALIZE]: audio ready for session %s (%d bytes)", h.SessionID, audio.Size)
	return audio
}

// reportDate picks the calendar date the report belongs to
func (p *Pipeline) reportDate(meta SessionMeta) time.Time {
	if !meta.StartedAt.IsZero() {
		return meta.StartedAt
	}
	return time.Now()
}
