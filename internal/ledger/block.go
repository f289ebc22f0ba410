package ledger

import (
	"time"

	"credtrust/internal/ledger/hashchain"
	"credtrust/internal/ledger/models"
)

// genesisTime is fixed so every ledger starts from the same genesis hash.
var genesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// GenesisPayload is the synthetic record carried by block 0.
var GenesisPayload = models.CredentialRecord{
	CredentialID: "genesis",
	SubjectID:    "genesis",
	Issuer:       "credtrust",
	CourseName:   "Genesis Block",
	IssueDate:    genesisTime,
}

// BlockHash computes the fingerprint a block must carry.
func BlockHash(b models.Block) (string, error) {
	return hashchain.Fingerprint(b.Index, b.PreviousHash, b.Timestamp, b.Payload)
}

// Genesis builds the genesis block.
func Genesis() models.Block {
	g := models.Block{
		Index:        0,
		Timestamp:    genesisTime,
		Payload:      GenesisPayload,
		PreviousHash: models.GenesisPreviousHash,
	}
	g.Hash = hashchain.MustFingerprint(g.Index, g.PreviousHash, g.Timestamp, g.Payload)
	return g
}

// blockTime truncates to millisecond precision, which every store round-trips exactly.
func blockTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
