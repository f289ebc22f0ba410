// Package issuer looks credentials up in the registries run by their issuers.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credtrust/pkg/platform/sentinel"
)

// Status is the issuer's answer about a credential.
type Status string

const (
	StatusVerified Status = "verified"
	StatusNotFound Status = "not_found"
	StatusRevoked  Status = "revoked"
)

// Source records where a lookup result came from.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceCache    Source = "cache"
)

// LookupResult is one issuer registry answer.
type LookupResult struct {
	Issuer       string    `json:"issuer"`
	CredentialID string    `json:"credentialId"`
	Status       Status    `json:"status"`
	CheckedAt    time.Time `json:"checkedAt"`
	Source       Source    `json:"source"`
}

// Registry resolves a credential against its issuer.
type Registry interface {
	Lookup(ctx context.Context, issuer, credentialID string) (LookupResult, error)
}

var (
	// ErrUnknownIssuer means no registry endpoint is configured for the issuer.
	ErrUnknownIssuer = errors.New("issuer has no registry endpoint")

	// ErrCircuitOpen means the issuer registry failed repeatedly and calls are paused.
	ErrCircuitOpen = fmt.Errorf("issuer registry circuit open: %w", sentinel.ErrUnavailable)
)

// cacheKey is shared by every cache implementation.
func cacheKey(issuer, credentialID string) string {
	return "issuer:" + issuer + ":" + credentialID
}
