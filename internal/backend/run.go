package backend

import (
	"fmt"
	"strings"
)

// Mode selects which kind of run the backend executes. It is fixed for the
// lifetime of a run and determines the creation endpoint.
type Mode string

const (
	ModeScanJobs Mode = "scan_jobs"
	ModeJDMatch  Mode = "jd_match"
)

// CreatePath returns the creation endpoint for the mode.
func (m Mode) CreatePath() string {
	if m == ModeJDMatch {
		return "/runs/jd-match"
	}

	return "/runs/scan-jobs"
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeScanJobs || m == ModeJDMatch
}

// Status is a run state as reported by the backend. The backend emits
// free-form strings; NormalizeStatus maps them into this enum.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition occurs from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCompleted || s == StatusFailed
}

// Succeeded reports terminal success. The backend emits both "done" and
// "completed" for it; both are accepted but kept distinct in the enum since
// the contract does not promise they stay synonymous.
func (s Status) Succeeded() bool {
	return s == StatusDone || s == StatusCompleted
}

// NormalizeStatus maps a raw status value into the Status enum. The input is
// lower-cased and trimmed; anything unrecognized becomes StatusRunning so a
// single unknown transient status never wedges a run into failure.
func NormalizeStatus(raw any) Status {
	v := ""
	if raw != nil {
		v = strings.TrimSpace(strings.ToLower(fmt.Sprintf("%v", raw)))
	}

	switch Status(v) {
	case StatusQueued, StatusRunning, StatusDone, StatusFailed, StatusCompleted:
		return Status(v)
	}

	return StatusRunning
}

// Run is one remote long-running job, identified by a backend-issued id.
// Raw carries the backend's run object untouched for the presentation layer.
type Run struct {
	ID     string
	Status Status
	Raw    map[string]any
}

// ErrorMessage returns the run's failure message.
func (r *Run) ErrorMessage(fallback string) string {
	return ErrorMessage(r.Raw, fallback)
}

// runIDPaths are the accepted locations of the run identifier in a creation
// response, tried in order. The first match wins.
var runIDPaths = []string{
	"runId",
	"id",
	"run.id",
	"data.runId",
	"data.run.id",
}

// ExtractRunID pulls the run identifier out of a creation response,
// tolerating the known response-shape variants.
func ExtractRunID(payload map[string]any) string {
	for _, path := range runIDPaths {
		if v, ok := LookupPath(payload, path); ok {
			if id := strings.TrimSpace(fmt.Sprintf("%v", v)); id != "" && id != "<nil>" {
				return id
			}
		}
	}

	return ""
}

// ExtractRun returns the run object from a status response. Some backend
// versions nest it under "run", others return it at the top level.
func ExtractRun(payload map[string]any) map[string]any {
	if nested, ok := payload["run"].(map[string]any); ok {
		return nested
	}

	if payload == nil {
		return map[string]any{}
	}

	return payload
}

// errorFields are the accepted locations of a failure message, tried in
// order.
var errorFields = []string{"error", "message"}

// ErrorMessage extracts a human-readable failure message from a backend
// payload, falling back to the provided default.
func ErrorMessage(payload map[string]any, fallback string) string {
	for _, field := range errorFields {
		if v, ok := payload[field]; ok && v != nil {
			if msg := strings.TrimSpace(fmt.Sprintf("%v", v)); msg != "" {
				return msg
			}
		}
	}

	return fallback
}

// LookupPath walks a dot-separated key path through nested payload objects.
// It backs the tolerant-mapping helpers here and the result extraction in
// the jobs package.
func LookupPath(m map[string]any, path string) (any, bool) {
	cur := any(m)

	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}

	return cur, true
}
