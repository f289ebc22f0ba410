package methods

import (
	"context"
	"errors"

	ledgermodels "credtrust/internal/ledger/models"
	"credtrust/internal/verification/models"
	"credtrust/pkg/platform/sentinel"
)

// Confidences for ledger membership.
const (
	LedgerMatchConfidence  = 100
	LedgerAbsentConfidence = 50
)

// LedgerReader is the read capability the membership check holds on the ledger.
type LedgerReader interface {
	FindByCredentialID(credentialID string) (ledgermodels.Block, error)
}

// LedgerMembership checks the credential against the local ledger. A record
// that was never submitted is neutral; one that disagrees with the ledger is
// treated as forged.
type LedgerMembership struct {
	ledger LedgerReader
}

func NewLedgerMembership(ledger LedgerReader) *LedgerMembership {
	return &LedgerMembership{ledger: ledger}
}

func (m *LedgerMembership) Name() models.Method {
	return models.MethodLedger
}

func (m *LedgerMembership) Evaluate(_ context.Context, req models.Request) (models.MethodResult, error) {
	block, err := m.ledger.FindByCredentialID(req.Record.CredentialID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.MethodResult{
			Method:     models.MethodLedger,
			Confidence: LedgerAbsentConfidence,
			Status:     models.StatusWarning,
			Error:      "credential not found in ledger",
		}, nil
	}
	if err != nil {
		return models.MethodResult{}, NewMethodError(ErrorUnavailable, models.MethodLedger, "ledger read failed", err)
	}

	details := map[string]any{
		"blockIndex": block.Index,
		"blockHash":  block.Hash,
	}
	if conflicts := block.Payload.Diff(req.Record.Normalize()); len(conflicts) > 0 {
		details["conflictingFields"] = conflicts
		return models.MethodResult{
			Method:  models.MethodLedger,
			Status:  models.StatusFailed,
			Details: details,
			Error:   "credential conflicts with ledger record",
		}, nil
	}
	return models.MethodResult{
		Method:     models.MethodLedger,
		Confidence: LedgerMatchConfidence,
		Status:     models.StatusPassed,
		Details:    details,
	}, nil
}
