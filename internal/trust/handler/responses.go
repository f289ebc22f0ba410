package handler

import (
	"time"

	"credtrust/internal/ledger"
	ledgermodels "credtrust/internal/ledger/models"
)

// BlockResponse is the wire form of a ledger block.
type BlockResponse struct {
	Index        int64                         `json:"index"`
	Timestamp    time.Time                     `json:"timestamp"`
	Payload      ledgermodels.CredentialRecord `json:"payload"`
	PreviousHash string                        `json:"previousHash"`
	Hash         string                        `json:"hash"`
}

func toBlockResponse(b ledgermodels.Block) BlockResponse {
	return BlockResponse{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Payload:      b.Payload,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
	}
}

// TransactionsResponse lists a subject's issuance blocks.
type TransactionsResponse struct {
	SubjectID    string          `json:"subjectId"`
	Transactions []BlockResponse `json:"transactions"`
}

func toTransactionsResponse(subjectID string, blocks []ledgermodels.Block) TransactionsResponse {
	resp := TransactionsResponse{
		SubjectID:    subjectID,
		Transactions: make([]BlockResponse, 0, len(blocks)),
	}
	for _, b := range blocks {
		resp.Transactions = append(resp.Transactions, toBlockResponse(b))
	}
	return resp
}

// StatsResponse is the wire form of ledger statistics.
type StatsResponse struct {
	TotalBlocks        int            `json:"totalBlocks"`
	ByVerificationType map[string]int `json:"byVerificationType"`
	ChainValid         bool           `json:"chainValid"`
	HeadHash           string         `json:"headHash"`
}

func toStatsResponse(s ledgermodels.Stats) StatsResponse {
	byType := make(map[string]int, len(s.ByVerificationType))
	for t, n := range s.ByVerificationType {
		byType[string(t)] = n
	}
	return StatsResponse{
		TotalBlocks:        s.TotalBlocks,
		ByVerificationType: byType,
		ChainValid:         s.ChainValid,
		HeadHash:           s.HeadHash,
	}
}

// ValidityResponse reports whether the chain validates.
type ValidityResponse struct {
	Valid       bool               `json:"valid"`
	ChainLength int                `json:"chainLength"`
	Violations  []ledger.Violation `json:"violations,omitempty"`
}

func toValidityResponse(r ledger.IntegrityReport) ValidityResponse {
	return ValidityResponse{
		Valid:       r.Valid,
		ChainLength: r.ChainLength,
		Violations:  r.Violations,
	}
}
