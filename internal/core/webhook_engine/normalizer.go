package webhook_engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/markdave123-py/parley/internal/models"
)

// PayloadShape tags which known provider payload layout an event arrived in.
type PayloadShape string

const (
	// ShapeEnvelope is the post-call format: {"type": ..., "data": {...}}.
	ShapeEnvelope PayloadShape = "envelope"
	// ShapeWrapped nests the body under "payload".
	ShapeWrapped PayloadShape = "wrapped"
	// ShapeFlat carries the body fields at the top level.
	ShapeFlat PayloadShape = "flat"
	// ShapeUnknown matched no detector; it is always ignored.
	ShapeUnknown PayloadShape = "unknown"
)

// Correlation is the bundle handed to the provider at session start and echoed back.
type Correlation struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	AgentDBID string `json:"agent_db_id,omitempty"`
}

type Analysis struct {
	OverallScore *float64          `json:"overall_score,omitempty"`
	Criteria     map[string]float64 `json:"criteria,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Tips         []string           `json:"tips,omitempty"`
	// Raw is the provider's analysis object, kept verbatim.
	Raw json.RawMessage `json:"-"`
}

// CanonicalEvent is the provider-independent form of a webhook payload.
type CanonicalEvent struct {
	Shape          PayloadShape
	EventType      string
	ConversationID string
	Correlation    Correlation
	Transcript     []models.TranscriptTurn
	Analysis       *Analysis
}

// body fields that identify a flat payload
var bodyMarkers = []string{"conversation_initiation_client_data", "transcript", "analysis"}

// nested bodies may also be recognised by the provider's conversation id alone
var nestedMarkers = []string{"conversation_initiation_client_data", "transcript", "analysis", "conversation_id"}

type shapeDetector struct {
	shape  PayloadShape
	detect func(top map[string]json.RawMessage) (map[string]json.RawMessage, bool)
}

// shapeDetectors is tried in order; the first match wins.
// Add new provider layouts here.
var shapeDetectors = []shapeDetector{
	{shape: ShapeEnvelope, detect: nestedObject("data")},
	{shape: ShapeWrapped, detect: nestedObject("payload")},
	{shape: ShapeFlat, detect: func(top map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
		return top, hasAny(top, bodyMarkers...)
	}},
}

func nestedObject(key string) func(map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	return func(top map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
		raw, ok := top[key]
		if !ok {
			return nil, false
		}
		obj, ok := asObject(raw)
		if !ok || !hasAny(obj, nestedMarkers...) {
			return nil, false
		}
		return obj, true
	}
}

// Normalize parses raw into a CanonicalEvent. Only invalid JSON is an error;
// anything that parses but is not recognised comes back as ShapeUnknown.
func Normalize(raw []byte) (CanonicalEvent, error) {
	if !json.Valid(raw) {
		return CanonicalEvent{}, fmt.Errorf("%w: body is not valid JSON", ErrMalformedPayload)
	}

	top, ok := asObject(raw)
	if !ok {
		return CanonicalEvent{Shape: ShapeUnknown}, nil
	}

	ev := CanonicalEvent{Shape: ShapeUnknown, EventType: firstString(top, "event", "type")}
	for _, d := range shapeDetectors {
		body, ok := d.detect(top)
		if !ok {
			continue
		}
		ev.Shape = d.shape
		if ev.EventType == "" {
			ev.EventType = firstString(body, "event", "type")
		}
		ev.ConversationID = firstString(body, "conversation_id")
		ev.Correlation = extractCorrelation(body)
		ev.Transcript = extractTranscript(body["transcript"])
		ev.Analysis = extractAnalysis(body["analysis"])
		break
	}
	return ev, nil
}

// PeekEventType extracts just the event type, for audit rows written before
// the body is normalized.
func PeekEventType(raw []byte) string {
	top, ok := asObject(raw)
	if !ok {
		return ""
	}
	return firstString(top, "event", "type")
}

func extractCorrelation(body map[string]json.RawMessage) Correlation {
	initData, ok := asObject(body["conversation_initiation_client_data"])
	if !ok {
		return Correlation{}
	}
	vars, ok := asObject(initData["dynamic_variables"])
	if !ok {
		return Correlation{}
	}
	return Correlation{
		UserID:    firstString(vars, "user_id"),
		SessionID: firstString(vars, "session_id"),
		AgentDBID: firstString(vars, "agent_db_id"),
	}
}

func extractTranscript(raw json.RawMessage) []models.TranscriptTurn {
	var entries []map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil {
		return nil
	}

	turns := make([]models.TranscriptTurn, 0, len(entries))
	for _, e := range entries {
		text := firstString(e, "text", "message")
		if text == "" {
			continue
		}
		turn := models.TranscriptTurn{
			Role: normalizeRole(firstString(e, "role", "speaker")),
			Text: text,
		}
		if ms, ok := number(e["ts_ms"]); ok {
			v := int64(ms)
			turn.TsMs = &v
		} else if secs, ok := number(e["time_in_call_secs"]); ok {
			v := int64(math.Round(secs * 1000))
			turn.TsMs = &v
		}
		turns = append(turns, turn)
	}
	if len(turns) == 0 {
		return nil
	}
	return turns
}

func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "human", "caller":
		return "user"
	case "agent", "assistant", "ai", "bot":
		return "agent"
	default:
		return strings.ToLower(role)
	}
}

func extractAnalysis(raw json.RawMessage) *Analysis {
	obj, ok := asObject(raw)
	if !ok {
		return nil
	}

	a := &Analysis{
		Summary:  firstString(obj, "summary", "transcript_summary"),
		Criteria: numberMap(firstPresent(obj, "criteria", "score_breakdown")),
		Raw:      append(json.RawMessage(nil), raw...),
	}
	for _, k := range []string{"score_overall", "overall_score", "overallScore", "score"} {
		if v, ok := number(obj[k]); ok {
			a.OverallScore = &v
			break
		}
	}
	var tips []string
	if t, ok := obj["tips"]; ok && json.Unmarshal(t, &tips) == nil {
		a.Tips = tips
	}

	fillFromDataCollection(a, obj["data_collection_results"])
	return a
}

// fillFromDataCollection uses numeric data collection values for scores the
// analysis did not carry directly.
func fillFromDataCollection(a *Analysis, raw json.RawMessage) {
	results, ok := asObject(raw)
	if !ok {
		return
	}
	fromResults := map[string]float64{}
	for name, r := range results {
		v, ok := number(r)
		if !ok {
			item, isObj := asObject(r)
			if !isObj {
				continue
			}
			if v, ok = number(item["value"]); !ok {
				continue
			}
		}
		fromResults[name] = v
	}

	for _, k := range []string{"score_overall", "overall_score", "overallScore", "score"} {
		if v, ok := fromResults[k]; ok {
			if a.OverallScore == nil {
				a.OverallScore = &v
			}
			delete(fromResults, k)
		}
	}
	if len(a.Criteria) == 0 && len(fromResults) > 0 {
		a.Criteria = fromResults
	}
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func hasAny(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func firstPresent(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := m[k]; ok && string(v) != "null" {
			return v
		}
	}
	return nil
}

// firstString returns the first key holding a non-empty string (or number) value.
func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if json.Unmarshal(raw, &n) == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func numberMap(raw json.RawMessage) map[string]float64 {
	obj, ok := asObject(raw)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(obj))
	for k, v := range obj {
		if f, ok := number(v); ok {
			out[k] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
