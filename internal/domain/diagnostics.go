package domain

import "time"

// DiagnosticStatus indicates whether a single readiness check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticCategory groups checks so the UI can show what blocks a run.
type DiagnosticCategory string

const (
	DiagnosticCategoryTool       DiagnosticCategory = "tool"
	DiagnosticCategoryCredential DiagnosticCategory = "credential"
	DiagnosticCategoryChunking   DiagnosticCategory = "chunking"
	DiagnosticCategoryStorage    DiagnosticCategory = "storage"
)

// DiagnosticItem is one readiness check result with an optional hint.
type DiagnosticItem struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Category DiagnosticCategory `json:"category"`
	Status   DiagnosticStatus   `json:"status"`
	Message  string             `json:"message"`
	Hint     string             `json:"hint,omitempty"`
}

// DiagnosticReport aggregates the checks for the configured backend.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Backend     Backend          `json:"backend"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Failures returns the failed items in report order.
func (r DiagnosticReport) Failures() []DiagnosticItem {
	var failed []DiagnosticItem
	for _, item := range r.Items {
		if item.Status == DiagnosticStatusFail {
			failed = append(failed, item)
		}
	}
	return failed
}
