package webhook_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

// EventCallInitiationFailure is sent when the provider could not start the call.
const EventCallInitiationFailure = "call_initiation_failure"

// ReconcileStore is the slice of persistence the reconciler writes through.
type ReconcileStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, endedAt time.Time) (bool, error)
	UpsertTranscript(ctx context.Context, rec *models.TranscriptRecord) error
	UpsertFeedback(ctx context.Context, rec *models.FeedbackRecord) error
}

type ReconciliationResult struct {
	SessionID        string               `json:"session_id"`
	TranscriptStored bool                 `json:"transcript_stored"`
	FeedbackStored   bool                 `json:"feedback_stored"`
	PreviousStatus   models.SessionStatus `json:"previous_status"`
	Status           models.SessionStatus `json:"status"`
	Transitioned     bool                 `json:"transitioned"`
	// Ignored is set when the event carried nothing to persist.
	Ignored bool   `json:"ignored,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Reconciler applies canonical events to session state. Every write is an
// upsert keyed on session id or a conditional status update, so replaying an
// event leaves storage unchanged.
type Reconciler struct {
	store ReconcileStore
	now   func() time.Time
}

func NewReconciler(store ReconcileStore) *Reconciler {
	return &Reconciler{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Reconciler) Reconcile(ctx context.Context, ev CanonicalEvent) (ReconciliationResult, error) {
	id := ev.Correlation.SessionID
	res := ReconciliationResult{SessionID: id}
	if id == "" {
		res.Ignored = true
		res.Reason = "missing session_id in dynamic variables"
		return res, nil
	}

	session, err := r.store.GetSession(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return res, fmt.Errorf("load session %s: %w", id, err)
	}
	res.PreviousStatus = session.Status
	res.Status = session.Status

	if ev.EventType == EventCallInitiationFailure {
		return r.transition(ctx, res, models.SessionStatusError)
	}

	if len(ev.Transcript) > 0 {
		if err := r.store.UpsertTranscript(ctx, &models.TranscriptRecord{SessionID: id, Turns: ev.Transcript}); err != nil {
			return res, fmt.Errorf("save transcript: %w", err)
		}
		res.TranscriptStored = true
	}

	if ev.Analysis != nil {
		if err := r.store.UpsertFeedback(ctx, feedbackRecord(id, ev.Analysis)); err != nil {
			return res, fmt.Errorf("save feedback: %w", err)
		}
		res.FeedbackStored = true
	}

	if !res.TranscriptStored && !res.FeedbackStored {
		res.Ignored = true
		res.Reason = "no transcript or analysis in event"
		return res, nil
	}

	return r.transition(ctx, res, models.SessionStatusCompleted)
}

// transition only ever leaves pending; a terminal session keeps its status.
func (r *Reconciler) transition(ctx context.Context, res ReconciliationResult, to models.SessionStatus) (ReconciliationResult, error) {
	if res.PreviousStatus != models.SessionStatusPending {
		return res, nil
	}
	changed, err := r.store.TransitionSession(ctx, res.SessionID, models.SessionStatusPending, to, r.now())
	if err != nil {
		return res, fmt.Errorf("update session status: %w", err)
	}
	if changed {
		res.Status = to
		res.Transitioned = true
	}
	return res, nil
}

func feedbackRecord(sessionID string, a *Analysis) *models.FeedbackRecord {
	raw := a.Raw
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	return &models.FeedbackRecord{
		SessionID:      sessionID,
		ScoreOverall:   a.OverallScore,
		ScoreBreakdown: a.Criteria,
		RawFeedback:    raw,
	}
}
