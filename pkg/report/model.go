package report

import (
	"fmt"
	"time"

	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/google/uuid"
)

// Namespace for deterministic report IDs. Never change this value:
// report ids derived under it are referenced by stored records
var reportNamespace = uuid.MustParse("9f2c1b34-5a6d-4e7f-8e9a-0b1c2d3e4f50")

// DateFormat is the canonical layout for report dates
const DateFormat = "2006-01-02"

// NewReportID derives a report's identity from its source session, owner
// and date. The derivation is deterministic so retried persistence for the
// same session always yields the same record instead of a duplicate
func NewReportID(sessionID, ownerID string, date time.Time) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%s", sessionID, ownerID, date.Format(DateFormat))
	return uuid.NewSHA1(reportNamespace, []byte(key))
}

// Report is the durable artifact produced from a finished interview session
type Report struct {
	ID uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`

	SessionID  string `json:"session_id" gorm:"size:255;not null;index"`
	OwnerID    string `json:"owner_id" gorm:"size:255;not null"`
	ProjectID  string `json:"project_id" gorm:"size:255;index"`
	ReportDate string `json:"report_date" gorm:"size:10;index"`

	// Transcript, real or placeholder. Serialized as JSON in storage
	Transcript connector.Transcript `json:"transcript" gorm:"serializer:json;type:json"`

	// Audio recording; all three fields are zero when no audio exists
	AudioData []byte `json:"audio_data,omitempty" gorm:"type:longblob"`
	AudioMime string `json:"audio_mime,omitempty" gorm:"size:100"`
	AudioSize int    `json:"audio_size,omitempty"`

	// Persisted is true only when the primary store accepted the report.
	// False means the report lives in the local fallback log
	Persisted   bool   `json:"persisted"`
	StoragePath string `json:"storage_path" gorm:"size:512"`

	CreatedAt time.Time `json:"created_at"`
}

// NewReport assembles a report from session metadata and acquired artifacts.
// The id is derived deterministically; audio may be nil
func NewReport(sessionID, ownerID, projectID string, date time.Time, transcript *connector.Transcript, audio *connector.Audio) *Report {
	r := &Report{
		ID:         NewReportID(sessionID, ownerID, date),
		SessionID:  sessionID,
		OwnerID:    ownerID,
		ProjectID:  projectID,
		ReportDate: date.Format(DateFormat),
	}

	if transcript != nil {
		r.Transcript = *transcript
	}

	if audio != nil && len(audio.Data) > 0 {
		r.AudioData = audio.Data
		r.AudioMime = audio.MimeType
		r.AudioSize = audio.Size
	}

	return r
}

// HasAudio reports whether a recording was captured for this report
func (r *Report) HasAudio() bool {
	return len(r.AudioData) > 0
}

// TranscriptUsable reports whether the embedded transcript is a real,
// finalized transcript rather than a placeholder
func (r *Report) TranscriptUsable() bool {
	return r.Transcript.Usable()
}
