package ledger

import (
	"errors"
	"fmt"

	"credtrust/internal/ledger/models"
)

// ErrChainIntegrity is matched by every IntegrityError.
var ErrChainIntegrity = errors.New("chain integrity violation")

// ViolationReason names the check a block failed.
type ViolationReason string

const (
	ReasonEmptyChain   ViolationReason = "empty_chain"
	ReasonIndexGap     ViolationReason = "index_mismatch"
	ReasonGenesisLink  ViolationReason = "genesis_previous_hash"
	ReasonBrokenLink   ViolationReason = "previous_hash_mismatch"
	ReasonHashMismatch ViolationReason = "hash_mismatch"
	ReasonUnhashable   ViolationReason = "unhashable_block"
)

// Violation describes one failed check.
type Violation struct {
	Index    int64           `json:"index"`
	Reason   ViolationReason `json:"reason"`
	Expected string          `json:"expected,omitempty"`
	Actual   string          `json:"actual,omitempty"`
}

// IntegrityReport is the result of a full chain validation.
type IntegrityReport struct {
	Valid       bool        `json:"valid"`
	ChainLength int         `json:"chainLength"`
	Violations  []Violation `json:"violations,omitempty"`
}

// Err returns nil for a valid chain and an *IntegrityError otherwise.
func (r IntegrityReport) Err() error {
	if r.Valid {
		return nil
	}
	return &IntegrityError{Violations: r.Violations}
}

// IntegrityError reports a chain that failed validation.
type IntegrityError struct {
	Violations []Violation
}

func (e *IntegrityError) Error() string {
	if len(e.Violations) == 0 {
		return ErrChainIntegrity.Error()
	}
	first := e.Violations[0]
	msg := fmt.Sprintf("%s at block %d: %s", ErrChainIntegrity, first.Index, first.Reason)
	if n := len(e.Violations) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrChainIntegrity
}

// validateChain recomputes every link and hash. With failFast it stops at the
// first violation.
func validateChain(blocks []models.Block, failFast bool) IntegrityReport {
	report := IntegrityReport{ChainLength: len(blocks)}
	if len(blocks) == 0 {
		report.Violations = []Violation{{Index: -1, Reason: ReasonEmptyChain}}
		return report
	}

	record := func(v Violation) bool {
		report.Violations = append(report.Violations, v)
		return failFast
	}

	for i, b := range blocks {
		if b.Index != int64(i) {
			if record(Violation{Index: int64(i), Reason: ReasonIndexGap, Expected: fmt.Sprint(i), Actual: fmt.Sprint(b.Index)}) {
				break
			}
		}

		expectedPrev := models.GenesisPreviousHash
		reason := ReasonGenesisLink
		if i > 0 {
			expectedPrev = blocks[i-1].Hash
			reason = ReasonBrokenLink
		}
		if b.PreviousHash != expectedPrev {
			if record(Violation{Index: int64(i), Reason: reason, Expected: expectedPrev, Actual: b.PreviousHash}) {
				break
			}
		}

		hash, err := BlockHash(b)
		if err != nil {
			if record(Violation{Index: int64(i), Reason: ReasonUnhashable, Actual: err.Error()}) {
				break
			}
			continue
		}
		if hash != b.Hash {
			if record(Violation{Index: int64(i), Reason: ReasonHashMismatch, Expected: hash, Actual: b.Hash}) {
				break
			}
		}
	}

	report.Valid = len(report.Violations) == 0
	return report
}
