package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credtrust/internal/ledger/models"
	"credtrust/internal/ledger/store"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.InMemoryStore
	ledger *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.ledger = New(s.store, WithClock(steppingClock()))
	s.Require().NoError(s.ledger.Initialize(s.ctx))
}

// steppingClock returns a deterministic clock advancing one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func record(id, subject string) models.CredentialRecord {
	return models.CredentialRecord{
		CredentialID:     id,
		SubjectID:        subject,
		Issuer:           "University of Lagos",
		CourseName:       "Distributed Systems",
		IssueDate:        time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		VerificationType: models.VerificationGovernment,
	}
}

func (s *LedgerSuite) TestInitializeCreatesGenesis() {
	blocks, err := s.ledger.Blocks()
	s.Require().NoError(err)
	s.Require().Len(blocks, 1)

	genesis := blocks[0]
	s.Equal(int64(0), genesis.Index)
	s.Equal(models.GenesisPreviousHash, genesis.PreviousHash)
	s.Equal(Genesis().Hash, genesis.Hash)
	s.Equal(models.StateActive, s.ledger.State())
	s.True(s.ledger.IsValid())
}

func (s *LedgerSuite) TestInitializeIsIdempotent() {
	before, err := s.ledger.Head()
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.Initialize(s.ctx))

	after, err := s.ledger.Head()
	s.Require().NoError(err)
	s.Equal(before.Hash, after.Hash)

	persisted, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Len(persisted, 1, "second initialize must not write another genesis")
}

func (s *LedgerSuite) TestInitializeLoadsPersistedChain() {
	_, err := s.ledger.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().NoError(err)
	last, err := s.ledger.Append(s.ctx, record("cred-2", "learner-1"))
	s.Require().NoError(err)

	reopened := New(s.store)
	s.Require().NoError(reopened.Initialize(s.ctx))

	head, err := reopened.Head()
	s.Require().NoError(err)
	s.Equal(last.Hash, head.Hash)
	s.True(reopened.IsValid())

	found, err := reopened.FindByCredentialID("cred-1")
	s.Require().NoError(err)
	s.Equal(int64(1), found.Index)
}

func (s *LedgerSuite) TestInitializeKeepsDuplicateCredentialInSubjectHistory() {
	first, err := s.ledger.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().NoError(err)
	head, err := s.ledger.Append(s.ctx, record("cred-2", "learner-2"))
	s.Require().NoError(err)

	// Written straight to the store; Append would refuse the repeated id.
	dup := models.Block{
		Index:        head.Index + 1,
		Timestamp:    head.Timestamp.Add(time.Second),
		Payload:      record("cred-1", "learner-1"),
		PreviousHash: head.Hash,
	}
	dup.Payload.CourseName = "Advanced Distributed Systems"
	dup.Hash, err = BlockHash(dup)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, dup))

	reopened := New(s.store)
	s.Require().NoError(reopened.Initialize(s.ctx))
	s.True(reopened.IsValid())

	history, err := reopened.BlocksForSubject("learner-1")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(first.Hash, history[0].Hash)
	s.Equal(dup.Hash, history[1].Hash)

	found, err := reopened.FindByCredentialID("cred-1")
	s.Require().NoError(err)
	s.Equal(first.Index, found.Index, "lookup resolves to the earliest block")

	others, err := reopened.BlocksForSubject("learner-2")
	s.Require().NoError(err)
	s.Len(others, 1)
}

func (s *LedgerSuite) TestAppendRejectsInvalidUTF8() {
	rec := record("cred-\xff", "learner-1")

	_, err := s.ledger.Append(s.ctx, rec)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	blocks, err := s.ledger.Blocks()
	s.Require().NoError(err)
	s.Len(blocks, 1, "rejected record must not reach the chain")
}

func (s *LedgerSuite) TestUninitializedLedgerRejectsOperations() {
	l := New(store.NewInMemory())
	s.Equal(models.StateUninitialized, l.State())

	_, err := l.Append(s.ctx, record("cred-1", "learner-1"))
	s.ErrorIs(err, ErrNotInitialized)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	_, err = l.FindByCredentialID("cred-1")
	s.ErrorIs(err, ErrNotInitialized)
	_, err = l.BlocksForSubject("learner-1")
	s.ErrorIs(err, ErrNotInitialized)
	_, err = l.Stats()
	s.ErrorIs(err, ErrNotInitialized)
	_, err = l.Validate()
	s.ErrorIs(err, ErrNotInitialized)
	s.False(l.IsValid())
}

func (s *LedgerSuite) TestIssueOnFreshLedger() {
	genesis, err := s.ledger.Head()
	s.Require().NoError(err)

	block, err := s.ledger.Append(s.ctx, models.CredentialRecord{
		CredentialID:     "C-1",
		SubjectID:        "L-1",
		Issuer:           "Federal Polytechnic",
		CourseName:       "Data Engineering",
		IssueDate:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		VerificationType: models.VerificationGovernment,
	})
	s.Require().NoError(err)

	s.Equal(int64(1), block.Index)
	s.Equal(genesis.Hash, block.PreviousHash)
	s.True(s.ledger.IsValid())

	stats, err := s.ledger.Stats()
	s.Require().NoError(err)
	s.Equal(2, stats.TotalBlocks)
	s.Equal(1, stats.ByVerificationType[models.VerificationGovernment])
	s.True(stats.ChainValid)
	s.Equal(block.Hash, stats.HeadHash)
}

func (s *LedgerSuite) TestAppendRejectsDuplicateCredential() {
	_, err := s.ledger.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().NoError(err)

	_, err = s.ledger.Append(s.ctx, record("cred-1", "learner-2"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.ErrorIs(err, sentinel.ErrConflict)

	blocks, err := s.ledger.Blocks()
	s.Require().NoError(err)
	s.Len(blocks, 2)
}

func (s *LedgerSuite) TestAppendValidatesRecord() {
	invalid := record("", "learner-1")
	_, err := s.ledger.Append(s.ctx, invalid)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	invalid = record("cred-1", "learner-1")
	invalid.VerificationType = "SELF_ASSERTED"
	_, err = s.ledger.Append(s.ctx, invalid)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LedgerSuite) TestAppendNormalizesRecord() {
	r := record("  cred-9 ", " learner-9")
	r.IssueDate = time.Date(2025, 5, 20, 1, 0, 0, 0, time.FixedZone("WAT", 3600))

	block, err := s.ledger.Append(s.ctx, r)
	s.Require().NoError(err)
	s.Equal("cred-9", block.Payload.CredentialID)
	s.Equal("learner-9", block.Payload.SubjectID)
	s.Equal(time.UTC, block.Payload.IssueDate.Location())
}

type failingStore struct {
	*store.InMemoryStore
	fail bool
}

func (f *failingStore) Append(ctx context.Context, b models.Block) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.InMemoryStore.Append(ctx, b)
}

func (s *LedgerSuite) TestAppendPersistFailureLeavesLedgerUnchanged() {
	fs := &failingStore{InMemoryStore: store.NewInMemory()}
	l := New(fs)
	s.Require().NoError(l.Initialize(s.ctx))

	fs.fail = true
	_, err := l.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	blocks, err := l.Blocks()
	s.Require().NoError(err)
	s.Len(blocks, 1)
	_, err = l.FindByCredentialID("cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	fs.fail = false
	block, err := l.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().NoError(err)
	s.Equal(int64(1), block.Index)
}

func (s *LedgerSuite) TestChainDeterminism() {
	build := func() string {
		l := New(store.NewInMemory(), WithClock(steppingClock()))
		s.Require().NoError(l.Initialize(s.ctx))
		for i := range 5 {
			_, err := l.Append(s.ctx, record(fmt.Sprintf("cred-%d", i), "learner-1"))
			s.Require().NoError(err)
		}
		head, err := l.Head()
		s.Require().NoError(err)
		return head.Hash
	}

	s.Equal(build(), build())
}

func (s *LedgerSuite) TestTamperDetection() {
	for i := range 3 {
		_, err := s.ledger.Append(s.ctx, record(fmt.Sprintf("cred-%d", i), "learner-1"))
		s.Require().NoError(err)
	}
	s.Require().True(s.ledger.IsValid())

	mutations := map[string]func(b *models.Block){
		"course name":       func(b *models.Block) { b.Payload.CourseName = "Forged Course" },
		"issuer":            func(b *models.Block) { b.Payload.Issuer = "Diploma Mill" },
		"subject":           func(b *models.Block) { b.Payload.SubjectID = "someone-else" },
		"issue date":        func(b *models.Block) { b.Payload.IssueDate = b.Payload.IssueDate.Add(24 * time.Hour) },
		"verification type": func(b *models.Block) { b.Payload.VerificationType = models.VerificationPending },
		"timestamp":         func(b *models.Block) { b.Timestamp = b.Timestamp.Add(time.Millisecond) },
		"previous hash":     func(b *models.Block) { b.PreviousHash = Genesis().Hash },
		"hash":              func(b *models.Block) { b.Hash = Genesis().Hash },
		"index":             func(b *models.Block) { b.Index = 7 },
	}

	for name, mutate := range mutations {
		s.Run(name, func() {
			original := s.ledger.blocks[2]
			defer func() { s.ledger.blocks[2] = original }()

			tampered := original
			mutate(&tampered)
			s.ledger.blocks[2] = tampered

			s.False(s.ledger.IsValid())
			report, err := s.ledger.Validate()
			s.Require().NoError(err)
			s.False(report.Valid)
			s.NotEmpty(report.Violations)
			s.ErrorIs(report.Err(), ErrChainIntegrity)
		})
	}
	s.True(s.ledger.IsValid(), "restored chain validates again")
}

func (s *LedgerSuite) TestValidateCollectsEveryViolation() {
	for i := range 4 {
		_, err := s.ledger.Append(s.ctx, record(fmt.Sprintf("cred-%d", i), "learner-1"))
		s.Require().NoError(err)
	}
	s.ledger.blocks[1].Payload.CourseName = "Forged"
	s.ledger.blocks[3].Payload.Issuer = "Forged"

	report, err := s.ledger.Validate()
	s.Require().NoError(err)
	s.False(report.Valid)
	s.Equal(5, report.ChainLength)

	var tamperedIndexes []int64
	for _, v := range report.Violations {
		if v.Reason == ReasonHashMismatch {
			tamperedIndexes = append(tamperedIndexes, v.Index)
		}
	}
	s.Equal([]int64{1, 3}, tamperedIndexes)

	var integrityErr *IntegrityError
	s.Require().ErrorAs(report.Err(), &integrityErr)
	s.Contains(integrityErr.Error(), "block 1")

	stats, err := s.ledger.Stats()
	s.Require().NoError(err)
	s.False(stats.ChainValid)
}

func (s *LedgerSuite) TestConcurrentAppends() {
	l := New(store.NewInMemory())
	s.Require().NoError(l.Initialize(s.ctx))

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(s.ctx, record(fmt.Sprintf("cred-%03d", i), fmt.Sprintf("learner-%d", i%7))); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	blocks, err := l.Blocks()
	s.Require().NoError(err)
	s.Len(blocks, 101)
	for i, b := range blocks {
		s.Equal(int64(i), b.Index)
	}
	s.True(l.IsValid())
}

func (s *LedgerSuite) TestFindByCredentialID() {
	_, err := s.ledger.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().NoError(err)

	found, err := s.ledger.FindByCredentialID("cred-1")
	s.Require().NoError(err)
	s.Equal("learner-1", found.Payload.SubjectID)

	_, err = s.ledger.FindByCredentialID("missing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.ledger.FindByCredentialID(GenesisPayload.CredentialID)
	s.ErrorIs(err, sentinel.ErrNotFound, "genesis is never a credential")
}

func (s *LedgerSuite) TestBlocksForSubject() {
	_, err := s.ledger.Append(s.ctx, record("cred-1", "learner-1"))
	s.Require().NoError(err)
	_, err = s.ledger.Append(s.ctx, record("cred-2", "learner-2"))
	s.Require().NoError(err)
	_, err = s.ledger.Append(s.ctx, record("cred-3", "learner-1"))
	s.Require().NoError(err)

	blocks, err := s.ledger.BlocksForSubject("learner-1")
	s.Require().NoError(err)
	s.Require().Len(blocks, 2)
	s.Equal("cred-1", blocks[0].Payload.CredentialID)
	s.Equal("cred-3", blocks[1].Payload.CredentialID)

	none, err := s.ledger.BlocksForSubject("unknown-learner")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *LedgerSuite) TestStatsByVerificationType() {
	industry := record("cred-2", "learner-1")
	industry.VerificationType = models.VerificationIndustry
	pending := record("cred-3", "learner-1")
	pending.VerificationType = models.VerificationPending

	for _, r := range []models.CredentialRecord{record("cred-1", "learner-1"), industry, pending} {
		_, err := s.ledger.Append(s.ctx, r)
		s.Require().NoError(err)
	}

	stats, err := s.ledger.Stats()
	s.Require().NoError(err)
	s.Equal(4, stats.TotalBlocks)
	s.Equal(map[models.VerificationType]int{
		models.VerificationGovernment: 1,
		models.VerificationIndustry:   1,
		models.VerificationPending:    1,
	}, stats.ByVerificationType)
}

func (s *LedgerSuite) TestShutdown() {
	s.Require().NoError(s.ledger.Shutdown(s.ctx))
	s.Equal(models.StateUninitialized, s.ledger.State())

	_, err := s.ledger.Append(s.ctx, record("cred-1", "learner-1"))
	s.ErrorIs(err, ErrNotInitialized)
}
