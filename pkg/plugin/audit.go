package plugin

import "context"

// Severity grades an audit finding
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is a single issue reported by the audit service
type Finding struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// AuditReport is the verdict returned by the audit service for one plugin
type AuditReport struct {
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings,omitempty"`
}

// AuditService inspects plugin code and manifest before activation.
// A Passed=false report is fatal for that plugin only; the loader turns
// it into a SecurityError and the plugin is never registered.
type AuditService interface {
	Validate(ctx context.Context, source Source, manifest *Manifest) (AuditReport, error)
}

// NoopAudit passes every plugin. Used when auditing is disabled and in tests.
type NoopAudit struct{}

func (NoopAudit) Validate(context.Context, Source, *Manifest) (AuditReport, error) {
	return AuditReport{Passed: true}, nil
}
