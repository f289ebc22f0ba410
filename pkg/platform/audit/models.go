package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance:
	// issuance and verification of credentials.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: chain integrity violations, forged credential submissions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           uuid.UUID     `json:"id"`
	Category     EventCategory `json:"category"`
	Timestamp    time.Time     `json:"timestamp"`
	SubjectID    string        `json:"subjectId,omitempty"`
	CredentialID string        `json:"credentialId,omitempty"`
	Action       string        `json:"action"`
	Decision     string        `json:"decision,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	// RequestingParty describes the client that asked, e.g. "Chrome 120 on Linux".
	RequestingParty string   `json:"requestingParty,omitempty"`
	RequestID       string   `json:"requestId,omitempty"`
	ActorID         string   `json:"actorId,omitempty"`
	ClientIP        string   `json:"clientIp,omitempty"`
	Severity        Severity `json:"severity,omitempty"`
}

type AuditEvent string

const (
	EventCredentialIssued        AuditEvent = "credential_issued"
	EventCredentialIssueRejected AuditEvent = "credential_issue_rejected"
	EventCredentialVerified      AuditEvent = "credential_verified"
	EventLedgerConflict          AuditEvent = "ledger_conflict_detected"
	EventChainIntegrityViolation AuditEvent = "chain_integrity_violation"
	EventLedgerInitialized       AuditEvent = "ledger_initialized"
	EventLedgerMigrated          AuditEvent = "ledger_migrated"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialIssued:   CategoryCompliance,
	EventCredentialVerified: CategoryCompliance,
	EventLedgerMigrated:     CategoryCompliance,

	EventCredentialIssueRejected: CategorySecurity,
	EventLedgerConflict:          CategorySecurity,
	EventChainIntegrityViolation: CategorySecurity,

	EventLedgerInitialized: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events and lists them per subject.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID string) ([]Event, error)
}
