package webhook_engine

import (
	"github.com/markdave123-py/parley/internal/models"
)

// RecoveredArtifacts is best-effort data rebuilt from raw audit rows for a
// session whose reconciliation never persisted anything. It is always degraded.
type RecoveredArtifacts struct {
	Transcript    []models.TranscriptTurn `json:"transcript,omitempty"`
	Feedback      *models.FeedbackRecord  `json:"feedback,omitempty"`
	SourceEventID string                  `json:"source_event_id"`
	Degraded      bool                    `json:"degraded"`
}

// RecoverArtifacts scans events, newest first, for payloads correlated to
// sessionID. Only rows whose signature was verified are considered; anyone can
// get an unsigned body into the audit log. It returns nil when nothing matches.
func RecoverArtifacts(events []models.WebhookEvent, sessionID string) *RecoveredArtifacts {
	if sessionID == "" {
		return nil
	}

	var out *RecoveredArtifacts
	for _, e := range events {
		if !e.Verified {
			continue
		}
		ev, err := Normalize(e.Payload)
		if err != nil || ev.Correlation.SessionID != sessionID {
			continue
		}
		if len(ev.Transcript) == 0 && ev.Analysis == nil {
			continue
		}
		if out == nil {
			out = &RecoveredArtifacts{SourceEventID: e.ID, Degraded: true}
		}
		if out.Transcript == nil && len(ev.Transcript) > 0 {
			out.Transcript = ev.Transcript
		}
		if out.Feedback == nil && ev.Analysis != nil {
			out.Feedback = feedbackRecord(sessionID, ev.Analysis)
		}
		if out.Transcript != nil && out.Feedback != nil {
			break
		}
	}
	return out
}
