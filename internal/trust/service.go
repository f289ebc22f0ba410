// Package trust is the facade the HTTP handler and the operator CLI call into.
// It ties the ledger, the scoring engine and the audit trail together and
// translates infrastructure errors into domain error codes.
package trust

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"credtrust/internal/ledger"
	ledgermodels "credtrust/internal/ledger/models"
	"credtrust/internal/verification/engine"
	"credtrust/internal/verification/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/audit"
	"credtrust/pkg/platform/middleware/metadata"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
)

// Ledger is the subset of *ledger.Ledger the service needs.
type Ledger interface {
	Initialize(ctx context.Context) error
	Append(ctx context.Context, record ledgermodels.CredentialRecord) (ledgermodels.Block, error)
	FindByCredentialID(credentialID string) (ledgermodels.Block, error)
	BlocksForSubject(subjectID string) ([]ledgermodels.Block, error)
	Stats() (ledgermodels.Stats, error)
	Validate() (ledger.IntegrityReport, error)
}

// Verifier scores a credential.
type Verifier interface {
	Verify(ctx context.Context, req models.Request) (*models.Report, error)
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service implements issue, verify and the ledger read operations.
type Service struct {
	ledger   Ledger
	verifier Verifier
	auditor  AuditPublisher
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditor sets the audit publisher. Without one, events are dropped.
func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// New creates a Service.
func New(l Ledger, v Verifier, opts ...Option) *Service {
	s := &Service{
		ledger:   l,
		verifier: v,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open initializes the ledger and records it in the audit trail.
func (s *Service) Open(ctx context.Context) error {
	if err := s.ledger.Initialize(ctx); err != nil {
		return translateLedgerError(err, "failed to initialize ledger")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventLedgerInitialized)})
	return nil
}

// Issue commits a credential to the ledger.
func (s *Service) Issue(ctx context.Context, record ledgermodels.CredentialRecord) (ledgermodels.Block, error) {
	block, err := s.ledger.Append(ctx, record)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) || errors.Is(err, sentinel.ErrConflict) {
			s.emit(ctx, audit.Event{
				Action:       string(audit.EventCredentialIssueRejected),
				SubjectID:    record.SubjectID,
				CredentialID: record.CredentialID,
				Decision:     "rejected",
				Reason:       "duplicate credential",
				Severity:     audit.SeverityWarning,
			})
		}
		return ledgermodels.Block{}, translateLedgerError(err, "failed to issue credential")
	}

	s.logger.InfoContext(ctx, "credential issued",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", block.Payload.CredentialID,
		"block_index", block.Index,
	)
	s.emit(ctx, audit.Event{
		Action:       string(audit.EventCredentialIssued),
		SubjectID:    block.Payload.SubjectID,
		CredentialID: block.Payload.CredentialID,
		Decision:     "issued",
		Reason:       string(block.Payload.VerificationType),
	})
	return block, nil
}

// Verify scores credentialID. When req carries no record, the ledger copy is
// verified; a record for a different credential is rejected.
func (s *Service) Verify(ctx context.Context, credentialID string, req models.Request) (*models.Report, error) {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}

	if strings.TrimSpace(req.Record.CredentialID) == "" {
		block, err := s.ledger.FindByCredentialID(credentialID)
		if err != nil {
			return nil, translateLedgerError(err, "credential not found")
		}
		req.Record = block.Payload
	} else {
		req.Record = req.Record.Normalize()
		if req.Record.CredentialID != credentialID {
			return nil, dErrors.New(dErrors.CodeValidation, "record credentialId does not match path")
		}
	}

	report, err := s.verifier.Verify(ctx, req)
	if err != nil {
		return nil, translateVerifyError(err)
	}

	s.logger.InfoContext(ctx, "credential verified",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", credentialID,
		"verdict", report.Verdict,
		"confidence", report.OverallConfidence,
	)
	party := metadata.DescribeUserAgent(requestcontext.UserAgent(ctx))
	s.emit(ctx, audit.Event{
		Action:          string(audit.EventCredentialVerified),
		SubjectID:       req.Record.SubjectID,
		CredentialID:    credentialID,
		Decision:        string(report.Verdict),
		Reason:          fmt.Sprintf("confidence %d", report.OverallConfidence),
		RequestingParty: party,
	})
	if res, ok := report.Result(models.MethodLedger); ok && res.Status == models.StatusFailed {
		s.emit(ctx, audit.Event{
			Action:          string(audit.EventLedgerConflict),
			SubjectID:       req.Record.SubjectID,
			CredentialID:    credentialID,
			Decision:        "conflict",
			Reason:          conflictReason(res),
			RequestingParty: party,
			Severity:        audit.SeverityWarning,
		})
	}
	return report, nil
}

// LedgerStats summarizes the ledger.
func (s *Service) LedgerStats(ctx context.Context) (ledgermodels.Stats, error) {
	stats, err := s.ledger.Stats()
	if err != nil {
		return ledgermodels.Stats{}, translateLedgerError(err, "failed to read ledger stats")
	}
	return stats, nil
}

// ChainValid validates the whole chain. An invalid chain is not an error: the
// report is returned and a critical security event is recorded.
func (s *Service) ChainValid(ctx context.Context) (ledger.IntegrityReport, error) {
	report, err := s.ledger.Validate()
	if err != nil {
		return ledger.IntegrityReport{}, translateLedgerError(err, "failed to validate ledger")
	}
	if !report.Valid {
		s.logger.ErrorContext(ctx, "ledger chain integrity violation",
			"request_id", requestcontext.RequestID(ctx),
			"violations", len(report.Violations),
			"error", report.Err(),
		)
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventChainIntegrityViolation),
			Decision: "invalid",
			Reason:   report.Err().Error(),
			Severity: audit.SeverityCritical,
		})
	}
	return report, nil
}

// TransactionsFor returns the subject's issuance blocks in chain order.
// Unknown subjects yield an empty list.
func (s *Service) TransactionsFor(ctx context.Context, subjectID string) ([]ledgermodels.Block, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subjectId is required")
	}
	blocks, err := s.ledger.BlocksForSubject(subjectID)
	if err != nil {
		return nil, translateLedgerError(err, "failed to list transactions")
	}
	return blocks, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActorID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func conflictReason(res models.MethodResult) string {
	fields, ok := res.Details["conflictingFields"].([]string)
	if !ok || len(fields) == 0 {
		return "ledger record mismatch"
	}
	return "conflicting fields: " + strings.Join(fields, ",")
}

// translateLedgerError keeps coded errors and maps ledger sentinels to codes.
func translateLedgerError(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, ledger.ErrNotInitialized):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger is not initialized")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, ledger.ErrChainIntegrity):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func translateVerifyError(err error) error {
	switch {
	case errors.Is(err, engine.ErrNoMethodsAvailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "no verification methods available")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "verification timed out")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "verification cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "verification failed")
	}
}
