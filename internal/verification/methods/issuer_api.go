package methods

import (
	"context"
	"errors"

	"credtrust/internal/verification/issuer"
	"credtrust/internal/verification/models"
	"credtrust/pkg/platform/sentinel"
)

// Confidences for issuer registry answers. A credential the issuer has no
// record of keeps a small non-zero confidence: registries lag issuance.
const (
	IssuerVerifiedConfidence = 90
	IssuerNotFoundConfidence = 20
)

// IssuerAPILookup asks the credential's issuer whether it issued it.
type IssuerAPILookup struct {
	registry issuer.Registry
}

func NewIssuerAPILookup(registry issuer.Registry) *IssuerAPILookup {
	return &IssuerAPILookup{registry: registry}
}

func (m *IssuerAPILookup) Name() models.Method {
	return models.MethodIssuerAPI
}

func (m *IssuerAPILookup) Evaluate(ctx context.Context, req models.Request) (models.MethodResult, error) {
	res, err := m.registry.Lookup(ctx, req.Record.Issuer, req.Record.CredentialID)
	if err != nil {
		category := ErrorBadData
		switch {
		case errors.Is(err, issuer.ErrUnknownIssuer), errors.Is(err, sentinel.ErrUnavailable):
			category = ErrorUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			category = ErrorTimeout
		case errors.Is(err, context.Canceled):
			return models.MethodResult{}, err
		}
		merr := NewMethodError(category, models.MethodIssuerAPI, "issuer registry lookup failed", err)
		return models.Skipped(models.MethodIssuerAPI, merr.Error()), nil
	}

	details := map[string]any{
		"issuer": res.Issuer,
		"status": string(res.Status),
		"source": string(res.Source),
	}
	switch res.Status {
	case issuer.StatusVerified:
		return models.MethodResult{
			Method:     models.MethodIssuerAPI,
			Confidence: IssuerVerifiedConfidence,
			Status:     models.StatusPassed,
			Details:    details,
		}, nil
	case issuer.StatusNotFound:
		return models.MethodResult{
			Method:     models.MethodIssuerAPI,
			Confidence: IssuerNotFoundConfidence,
			Status:     models.StatusWarning,
			Details:    details,
			Error:      "issuer has no record of this credential",
		}, nil
	default:
		return models.MethodResult{
			Method:  models.MethodIssuerAPI,
			Status:  models.StatusFailed,
			Details: details,
			Error:   "credential revoked by issuer",
		}, nil
	}
}
