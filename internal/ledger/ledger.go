// Package ledger maintains the append-only, hash-linked sequence of credential
// issuance blocks.
//
// A Ledger starts Uninitialized. Initialize loads the persisted chain (or
// creates the genesis block) and moves it to Active. Appends are serialized
// and each block is persisted before it becomes visible to readers, so readers
// only ever observe fully built, durable blocks. The ledger never repairs a
// chain that fails validation; it reports it.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"credtrust/internal/ledger/metrics"
	"credtrust/internal/ledger/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
)

// ErrNotInitialized is returned by operations on a ledger that is not Active.
var ErrNotInitialized = fmt.Errorf("ledger not initialized: %w", sentinel.ErrInvalidState)

// Store persists blocks. Append must be durable before it returns.
type Store interface {
	Load(ctx context.Context) ([]models.Block, error)
	Append(ctx context.Context, block models.Block) error
	Close() error
}

// Ledger is the credential issuance chain.
type Ledger struct {
	store   Store
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	// appendMu serializes writers so block construction, persistence and
	// publication happen as one step per block.
	appendMu sync.Mutex

	mu           sync.RWMutex
	state        models.State
	blocks       []models.Block
	byCredential map[string]int
	bySubject    map[string][]int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the block timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New creates an Uninitialized ledger backed by store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		clock:  time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:  models.StateUninitialized,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize loads the persisted chain, creating the genesis block for an
// empty store. Calling it again reloads from the store.
func (l *Ledger) Initialize(ctx context.Context) error {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	blocks, err := l.store.Load(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger")
	}

	if len(blocks) == 0 {
		genesis := Genesis()
		if err := l.store.Append(ctx, genesis); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist genesis block")
		}
		blocks = []models.Block{genesis}
		l.logger.InfoContext(ctx, "ledger created", "genesis_hash", genesis.Hash)
	}

	byCredential := make(map[string]int, len(blocks))
	bySubject := make(map[string][]int)
	for i, b := range blocks {
		if i == 0 {
			continue
		}
		// Every persisted block stays in the subject history, duplicates included.
		bySubject[b.Payload.SubjectID] = append(bySubject[b.Payload.SubjectID], i)
		if _, dup := byCredential[b.Payload.CredentialID]; dup {
			l.logger.WarnContext(ctx, "duplicate credential id in persisted ledger",
				"credential_id", b.Payload.CredentialID,
				"index", b.Index,
			)
			continue
		}
		byCredential[b.Payload.CredentialID] = i
	}

	report := validateChain(blocks, false)
	if !report.Valid {
		l.metrics.AddIntegrityViolations(len(report.Violations))
		l.logger.ErrorContext(ctx, "persisted ledger failed validation",
			"violations", len(report.Violations),
			"error", report.Err(),
		)
	}

	l.mu.Lock()
	l.blocks = blocks
	l.byCredential = byCredential
	l.bySubject = bySubject
	l.state = models.StateActive
	l.mu.Unlock()

	l.metrics.SetHeight(len(blocks))
	l.logger.InfoContext(ctx, "ledger initialized",
		"blocks", len(blocks),
		"head_hash", blocks[len(blocks)-1].Hash,
		"chain_valid", report.Valid,
	)
	return nil
}

// State returns the lifecycle state.
func (l *Ledger) State() models.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Append commits record as a new block and returns it once persisted.
func (l *Ledger) Append(ctx context.Context, record models.CredentialRecord) (models.Block, error) {
	start := time.Now()
	record = record.Normalize()
	if err := record.Validate(); err != nil {
		l.metrics.IncAppendFailure()
		return models.Block{}, err
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	l.mu.RLock()
	if l.state != models.StateActive {
		l.mu.RUnlock()
		return models.Block{}, ErrNotInitialized
	}
	last := l.blocks[len(l.blocks)-1]
	_, exists := l.byCredential[record.CredentialID]
	l.mu.RUnlock()

	if exists {
		l.metrics.IncAppendFailure()
		return models.Block{}, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "credential already issued")
	}

	block := models.Block{
		Index:        last.Index + 1,
		Timestamp:    blockTime(l.clock()),
		Payload:      record,
		PreviousHash: last.Hash,
	}
	hash, err := BlockHash(block)
	if err != nil {
		l.metrics.IncAppendFailure()
		return models.Block{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint block")
	}
	block.Hash = hash

	if err := l.store.Append(ctx, block); err != nil {
		l.metrics.IncAppendFailure()
		return models.Block{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist block")
	}

	l.mu.Lock()
	pos := len(l.blocks)
	l.blocks = append(l.blocks, block)
	l.byCredential[record.CredentialID] = pos
	l.bySubject[record.SubjectID] = append(l.bySubject[record.SubjectID], pos)
	height := len(l.blocks)
	l.mu.Unlock()

	l.metrics.SetHeight(height)
	l.metrics.ObserveAppend(time.Since(start))
	l.logger.DebugContext(ctx, "block appended",
		"index", block.Index,
		"credential_id", record.CredentialID,
		"hash", block.Hash,
	)
	return block, nil
}

// FindByCredentialID returns the block carrying credentialID.
// Genesis is never matched. Returns sentinel.ErrNotFound when absent.
func (l *Ledger) FindByCredentialID(credentialID string) (models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != models.StateActive {
		return models.Block{}, ErrNotInitialized
	}
	pos, ok := l.byCredential[credentialID]
	if !ok {
		return models.Block{}, sentinel.ErrNotFound
	}
	return l.blocks[pos], nil
}

// BlocksForSubject returns the subject's blocks in chain order.
func (l *Ledger) BlocksForSubject(subjectID string) ([]models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != models.StateActive {
		return nil, ErrNotInitialized
	}
	positions := l.bySubject[subjectID]
	out := make([]models.Block, 0, len(positions))
	for _, pos := range positions {
		out = append(out, l.blocks[pos])
	}
	return out, nil
}

// Blocks returns a copy of the whole chain.
func (l *Ledger) Blocks() ([]models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != models.StateActive {
		return nil, ErrNotInitialized
	}
	out := make([]models.Block, len(l.blocks))
	copy(out, l.blocks)
	return out, nil
}

// Head returns the most recent block.
func (l *Ledger) Head() (models.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != models.StateActive {
		return models.Block{}, ErrNotInitialized
	}
	return l.blocks[len(l.blocks)-1], nil
}

// IsValid reports whether every link and hash in the chain checks out.
// It stops at the first mismatch. An uninitialized ledger is not valid.
func (l *Ledger) IsValid() bool {
	blocks, ok := l.snapshot()
	if !ok {
		return false
	}
	return validateChain(blocks, true).Valid
}

// Validate checks the whole chain and collects every violation.
func (l *Ledger) Validate() (IntegrityReport, error) {
	blocks, ok := l.snapshot()
	if !ok {
		return IntegrityReport{}, ErrNotInitialized
	}
	report := validateChain(blocks, false)
	l.metrics.AddIntegrityViolations(len(report.Violations))
	return report, nil
}

// Stats summarizes the chain.
func (l *Ledger) Stats() (models.Stats, error) {
	blocks, ok := l.snapshot()
	if !ok {
		return models.Stats{}, ErrNotInitialized
	}
	stats := models.Stats{
		TotalBlocks:        len(blocks),
		ByVerificationType: make(map[models.VerificationType]int),
		ChainValid:         validateChain(blocks, true).Valid,
		HeadHash:           blocks[len(blocks)-1].Hash,
	}
	for _, b := range blocks[1:] {
		stats.ByVerificationType[b.Payload.VerificationType]++
	}
	return stats, nil
}

// Shutdown closes the store and returns the ledger to Uninitialized.
func (l *Ledger) Shutdown(ctx context.Context) error {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	l.mu.Lock()
	l.state = models.StateUninitialized
	l.blocks = nil
	l.byCredential = nil
	l.bySubject = nil
	l.mu.Unlock()

	if err := l.store.Close(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close ledger store")
	}
	l.logger.InfoContext(ctx, "ledger shut down")
	return nil
}

// snapshot returns the current chain. Blocks are never mutated after
// publication, so the returned slice is safe to read without the lock.
func (l *Ledger) snapshot() ([]models.Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != models.StateActive {
		return nil, false
	}
	return l.blocks[:len(l.blocks):len(l.blocks)], true
}
