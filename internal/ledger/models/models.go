package models

import (
	"strings"
	"time"
	"unicode/utf8"

	dErrors "credtrust/pkg/domain-errors"
)

// VerificationType describes how the issuer vetted a credential before issuing it.
type VerificationType string

const (
	VerificationGovernment VerificationType = "GOVERNMENT_VERIFIED"
	VerificationIndustry   VerificationType = "INDUSTRY_VERIFIED"
	VerificationPending    VerificationType = "PENDING"
)

// IsValid reports whether t is a known verification type.
func (t VerificationType) IsValid() bool {
	switch t {
	case VerificationGovernment, VerificationIndustry, VerificationPending:
		return true
	}
	return false
}

// ParseVerificationType parses a verification type, accepting any case.
func ParseVerificationType(s string) (VerificationType, error) {
	t := VerificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "verificationType must be one of GOVERNMENT_VERIFIED, INDUSTRY_VERIFIED, PENDING")
	}
	return t, nil
}

// CredentialRecord is the payload committed to the ledger on issuance.
// Records are immutable once appended.
type CredentialRecord struct {
	CredentialID     string           `json:"credentialId"`
	SubjectID        string           `json:"subjectId"`
	Issuer           string           `json:"issuer"`
	CourseName       string           `json:"courseName"`
	IssueDate        time.Time        `json:"issueDate"`
	VerificationType VerificationType `json:"verificationType"`
}

// Fields returns the record's values in fingerprint order.
func (r CredentialRecord) Fields() []any {
	return []any{
		r.CredentialID,
		r.SubjectID,
		r.Issuer,
		r.CourseName,
		r.IssueDate,
		string(r.VerificationType),
	}
}

// Validate checks the record before it is appended.
func (r CredentialRecord) Validate() error {
	if strings.TrimSpace(r.CredentialID) == "" {
		return dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}
	if strings.TrimSpace(r.SubjectID) == "" {
		return dErrors.New(dErrors.CodeValidation, "subjectId is required")
	}
	if strings.TrimSpace(r.Issuer) == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer is required")
	}
	if r.IssueDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "issueDate is required")
	}
	if !r.VerificationType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "verificationType is invalid")
	}
	for name, v := range map[string]string{
		"credentialId": r.CredentialID,
		"subjectId":    r.SubjectID,
		"issuer":       r.Issuer,
		"courseName":   r.CourseName,
	} {
		if !utf8.ValidString(v) {
			return dErrors.New(dErrors.CodeValidation, name+" is not valid UTF-8")
		}
	}
	return nil
}

// Normalize trims identifiers and converts the issue date to UTC.
func (r CredentialRecord) Normalize() CredentialRecord {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.Issuer = strings.TrimSpace(r.Issuer)
	r.CourseName = strings.TrimSpace(r.CourseName)
	r.IssueDate = r.IssueDate.UTC()
	return r
}

// Diff returns the names of fields that differ between r and other.
func (r CredentialRecord) Diff(other CredentialRecord) []string {
	var fields []string
	if r.CredentialID != other.CredentialID {
		fields = append(fields, "credentialId")
	}
	if r.SubjectID != other.SubjectID {
		fields = append(fields, "subjectId")
	}
	if r.Issuer != other.Issuer {
		fields = append(fields, "issuer")
	}
	if r.CourseName != other.CourseName {
		fields = append(fields, "courseName")
	}
	if !r.IssueDate.Equal(other.IssueDate) {
		fields = append(fields, "issueDate")
	}
	if r.VerificationType != other.VerificationType {
		fields = append(fields, "verificationType")
	}
	return fields
}

// GenesisPreviousHash is the previousHash of the first block.
const GenesisPreviousHash = "0"

// Block is one hash-linked entry in the ledger.
type Block struct {
	Index        int64            `json:"index"`
	Timestamp    time.Time        `json:"timestamp"`
	Payload      CredentialRecord `json:"payload"`
	PreviousHash string           `json:"previousHash"`
	Hash         string           `json:"hash"`
}

// IsGenesis reports whether b is the first block of a chain.
func (b Block) IsGenesis() bool {
	return b.Index == 0
}

// State is the ledger lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
)

// Stats summarizes the ledger contents.
type Stats struct {
	TotalBlocks        int                      `json:"totalBlocks"`
	ByVerificationType map[VerificationType]int `json:"byVerificationType"`
	ChainValid         bool                     `json:"chainValid"`
	HeadHash           string                   `json:"headHash"`
}
