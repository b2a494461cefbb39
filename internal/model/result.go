package model

import "time"

// RawRecord is the unvalidated output of one extraction call.
// Values carry JSON primitives (string, float64, bool, nil) or slices of them.
type RawRecord struct {
	Values              map[string]any
	ContractFingerprint string
}

// FieldWarning is a non-fatal defect attached to an otherwise usable value.
type FieldWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NormalizedPayload holds sink-ready values plus the warnings produced while
// coercing them. Keys are always a subset of the snapshot's field names.
type NormalizedPayload struct {
	Values   map[string]any
	Warnings []FieldWarning
}

// Operation tells whether an upsert created or updated a record.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// UpsertResult is the outcome of writing one record into one sink.
type UpsertResult struct {
	SinkID    string         `json:"sink_id"`
	Operation Operation      `json:"operation"`
	RecordID  string         `json:"record_id"`
	Warnings  []FieldWarning `json:"warnings,omitempty"`
}

// ClipStatus summarizes a whole clip request across all configured sinks.
type ClipStatus string

const (
	StatusOK      ClipStatus = "ok"
	StatusPartial ClipStatus = "partial"
	StatusFailed  ClipStatus = "failed"
)

// SinkOutcome is one sink's independent result: exactly one of Result or
// Err is set.
type SinkOutcome struct {
	SinkID string        `json:"sink_id"`
	Result *UpsertResult `json:"result,omitempty"`
	Err    error         `json:"-"`
	ErrMsg string        `json:"error,omitempty"`
}

// ClipResult is the joined outcome of one clip request. Error is set only
// when the request failed before reaching any sink.
type ClipResult struct {
	RequestID string        `json:"request_id"`
	URL       string        `json:"url"`
	Status    ClipStatus    `json:"status"`
	Title     string        `json:"title,omitempty"`
	Sinks     []SinkOutcome `json:"sinks,omitempty"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ms"`
}

// ComputeStatus derives the overall status from the per-sink outcomes.
func ComputeStatus(sinks []SinkOutcome) ClipStatus {
	if len(sinks) == 0 {
		return StatusFailed
	}
	var ok, failed int
	for _, s := range sinks {
		if s.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	switch {
	case failed == 0:
		return StatusOK
	case ok == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
