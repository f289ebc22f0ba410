package handler

import (
	"strings"
	"time"

	ledgermodels "credtrust/internal/ledger/models"
	"credtrust/internal/verification/models"
	dErrors "credtrust/pkg/domain-errors"
)

// RecordRequest is the wire form of a credential record. IssueDate accepts
// RFC 3339 timestamps or plain dates.
type RecordRequest struct {
	CredentialID     string `json:"credentialId"`
	SubjectID        string `json:"subjectId"`
	Issuer           string `json:"issuer"`
	CourseName       string `json:"courseName"`
	IssueDate        string `json:"issueDate"`
	VerificationType string `json:"verificationType"`

	record ledgermodels.CredentialRecord
}

// Validate parses the request into a normalized record.
func (r *RecordRequest) Validate() error {
	issued, err := parseIssueDate(r.IssueDate)
	if err != nil {
		return err
	}
	vt, err := ledgermodels.ParseVerificationType(r.VerificationType)
	if err != nil {
		return err
	}
	record := ledgermodels.CredentialRecord{
		CredentialID:     r.CredentialID,
		SubjectID:        r.SubjectID,
		Issuer:           r.Issuer,
		CourseName:       r.CourseName,
		IssueDate:        issued,
		VerificationType: vt,
	}.Normalize()
	if err := record.Validate(); err != nil {
		return err
	}
	r.record = record
	return nil
}

// Record returns the parsed record. Valid only after Validate.
func (r *RecordRequest) Record() ledgermodels.CredentialRecord {
	return r.record
}

func parseIssueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "issueDate is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeValidation, "issueDate must be RFC 3339 or YYYY-MM-DD")
}

// IssueRequest is the body of POST /credentials.
type IssueRequest struct {
	RecordRequest
}

// VerifyRequest is the body of POST /credentials/{credentialID}/verify.
// Every field is optional; an empty object verifies the ledger copy.
type VerifyRequest struct {
	Record    *RecordRequest    `json:"record,omitempty"`
	Artifact  *models.Artifact  `json:"artifact,omitempty"`
	Signature *models.Signature `json:"signature,omitempty"`
	QRPayload string            `json:"qrPayload,omitempty"`
}

func (r *VerifyRequest) Validate() error {
	if r.Record != nil {
		if err := r.Record.Validate(); err != nil {
			return err
		}
	}
	if r.Artifact != nil {
		if r.Artifact.Size < 0 {
			return dErrors.New(dErrors.CodeValidation, "artifact size must not be negative")
		}
		if strings.TrimSpace(r.Artifact.Fingerprint) == "" {
			return dErrors.New(dErrors.CodeValidation, "artifact fingerprint is required")
		}
	}
	return nil
}

// ToModel builds the engine request.
func (r *VerifyRequest) ToModel() models.Request {
	req := models.Request{
		Artifact:  r.Artifact,
		Signature: r.Signature,
		QRPayload: strings.TrimSpace(r.QRPayload),
	}
	if r.Record != nil {
		req.Record = r.Record.Record()
	}
	return req
}
