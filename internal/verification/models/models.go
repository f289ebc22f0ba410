package models

import (
	"time"

	"github.com/google/uuid"

	ledgermodels "credtrust/internal/ledger/models"
)

// Method names a verification method. Names double as weight keys and as
// the sort key for report results.
type Method string

const (
	MethodFileIntegrity Method = "file_integrity"
	MethodSignature     Method = "signature"
	MethodQRCode        Method = "qr_code"
	MethodIssuerAPI     Method = "issuer_api"
	MethodLedger        Method = "ledger"
)

// Status is the outcome of a single method.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	// StatusSkipped results are excluded from the overall score.
	StatusSkipped Status = "skipped"
)

// MethodResult is one method's contribution to a report.
type MethodResult struct {
	Method     Method         `json:"method"`
	Confidence int            `json:"confidence"`
	Status     Status         `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Scorable reports whether the result takes part in aggregation.
func (r MethodResult) Scorable() bool {
	return r.Status != StatusSkipped
}

// Skipped builds a skipped result carrying the reason.
func Skipped(method Method, reason string) MethodResult {
	return MethodResult{Method: method, Status: StatusSkipped, Error: reason}
}

// Failed builds a zero-confidence failed result.
func Failed(method Method, reason string) MethodResult {
	return MethodResult{Method: method, Status: StatusFailed, Error: reason}
}

// Artifact describes the submitted certificate file.
type Artifact struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	// Fingerprint is "<algorithm>:<hex digest>", sha256 or blake2b-256.
	Fingerprint string `json:"fingerprint"`
	// Content is optional; when present the digest is recomputed.
	Content []byte `json:"content,omitempty"`
}

// Signature is the issuer signature attached to a credential.
type Signature struct {
	// Value is the hex-encoded ed25519 signature over the record fingerprint.
	Value string `json:"value"`
	// Valid is the caller's own attestation, used when no key is known for the issuer.
	Valid bool `json:"valid"`
}

// Request is what the engine hands to every method.
type Request struct {
	Record    ledgermodels.CredentialRecord
	Artifact  *Artifact
	Signature *Signature
	QRPayload string
}

// Verdict is the qualitative band of an overall confidence.
type Verdict string

const (
	VerdictVerified          Verdict = "verified"
	VerdictPartiallyVerified Verdict = "partiallyVerified"
	VerdictQuestionable      Verdict = "questionable"
	VerdictFailed            Verdict = "failed"
)

// Report is the immutable outcome of one verification.
type Report struct {
	ReportID          uuid.UUID      `json:"reportId"`
	CredentialID      string         `json:"credentialId"`
	OverallConfidence int            `json:"overallConfidence"`
	MethodResults     []MethodResult `json:"methodResults"`
	Verdict           Verdict        `json:"verdict"`
	ProcessingTimeMs  int64          `json:"processingTimeMs"`
	Timestamp         time.Time      `json:"timestamp"`
}

// Result returns the result for a method, if present.
func (r *Report) Result(method Method) (MethodResult, bool) {
	for _, res := range r.MethodResults {
		if res.Method == method {
			return res, true
		}
	}
	return MethodResult{}, false
}
