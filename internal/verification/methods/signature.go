package methods

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strings"

	"credtrust/internal/verification/models"
	"credtrust/internal/verification/signature"
	"credtrust/pkg/platform/sentinel"
)

// SignatureConfidence is awarded to a valid issuer signature.
const SignatureConfidence = 95

// Keyring resolves issuer public keys. PublicKey returns sentinel.ErrNotFound
// for issuers without a key and sentinel.ErrUnavailable when the keyring
// cannot be reached.
type Keyring interface {
	PublicKey(ctx context.Context, issuer string) (ed25519.PublicKey, error)
}

// SignaturePresence checks the issuer signature attached to the credential.
// When the issuer's key is known the signature is verified cryptographically;
// otherwise the caller's Valid attestation is used.
type SignaturePresence struct {
	keyring Keyring
}

// NewSignaturePresence builds the method. keyring may be nil.
func NewSignaturePresence(keyring Keyring) *SignaturePresence {
	return &SignaturePresence{keyring: keyring}
}

func (m *SignaturePresence) Name() models.Method {
	return models.MethodSignature
}

func (m *SignaturePresence) Evaluate(ctx context.Context, req models.Request) (models.MethodResult, error) {
	sig := req.Signature
	if sig == nil || strings.TrimSpace(sig.Value) == "" {
		return models.Failed(models.MethodSignature, "signature absent"), nil
	}

	if m.keyring != nil {
		key, err := m.keyring.PublicKey(ctx, req.Record.Issuer)
		switch {
		case err == nil:
			return m.verify(key, req)
		case errors.Is(err, sentinel.ErrNotFound):
			// no key on file; fall back to the attestation
		default:
			merr := NewMethodError(ErrorUnavailable, models.MethodSignature, "keyring unreachable", err)
			return models.Skipped(models.MethodSignature, merr.Error()), nil
		}
	}

	if !sig.Valid {
		return models.MethodResult{
			Method:  models.MethodSignature,
			Status:  models.StatusFailed,
			Details: map[string]any{"mode": "attested"},
			Error:   "signature marked invalid",
		}, nil
	}
	return models.MethodResult{
		Method:     models.MethodSignature,
		Confidence: SignatureConfidence,
		Status:     models.StatusPassed,
		Details:    map[string]any{"mode": "attested"},
	}, nil
}

func (m *SignaturePresence) verify(key ed25519.PublicKey, req models.Request) (models.MethodResult, error) {
	ok, err := signature.Verify(key, req.Record, req.Signature.Value)
	if errors.Is(err, signature.ErrMalformedSignature) {
		return models.MethodResult{
			Method:  models.MethodSignature,
			Status:  models.StatusFailed,
			Details: map[string]any{"mode": "ed25519"},
			Error:   NewMethodError(ErrorBadData, models.MethodSignature, "signature not decodable", err).Error(),
		}, nil
	}
	if err != nil {
		return models.MethodResult{}, NewMethodError(ErrorInternal, models.MethodSignature, "build signed message", err)
	}
	if !ok {
		return models.MethodResult{
			Method:  models.MethodSignature,
			Status:  models.StatusFailed,
			Details: map[string]any{"mode": "ed25519"},
			Error:   "signature does not match issuer key",
		}, nil
	}
	return models.MethodResult{
		Method:     models.MethodSignature,
		Confidence: SignatureConfidence,
		Status:     models.StatusPassed,
		Details:    map[string]any{"mode": "ed25519"},
	}, nil
}
