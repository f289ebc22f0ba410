package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"credtrust/internal/ledger/models"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/platform/tx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_blocks (
	idx               BIGINT PRIMARY KEY,
	ts                TIMESTAMPTZ NOT NULL,
	payload           JSONB NOT NULL,
	previous_hash     TEXT NOT NULL,
	hash              TEXT NOT NULL UNIQUE,
	credential_id     TEXT NOT NULL,
	subject_id        TEXT NOT NULL,
	verification_type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_blocks_subject_idx ON ledger_blocks (subject_id);
`

const uniqueViolation = "23505"

// PostgresStore persists blocks in PostgreSQL, one row per block.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed block store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]models.Block, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT idx, ts, payload, previous_hash, hash
		FROM ledger_blocks
		ORDER BY idx
	`)
	if err != nil {
		return nil, fmt.Errorf("query ledger blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		var (
			b       models.Block
			payload []byte
		)
		if err := rows.Scan(&b.Index, &b.Timestamp, &payload, &b.PreviousHash, &b.Hash); err != nil {
			return nil, fmt.Errorf("scan ledger block: %w", err)
		}
		if err := json.Unmarshal(payload, &b.Payload); err != nil {
			return nil, fmt.Errorf("decode block %d payload: %w", b.Index, err)
		}
		b.Timestamp = b.Timestamp.UTC()
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger blocks: %w", err)
	}
	return blocks, nil
}

func (s *PostgresStore) Append(ctx context.Context, block models.Block) error {
	payload, err := json.Marshal(block.Payload)
	if err != nil {
		return fmt.Errorf("encode block payload: %w", err)
	}
	_, err = tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ledger_blocks (idx, ts, payload, previous_hash, hash, credential_id, subject_id, verification_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		block.Index,
		block.Timestamp,
		payload,
		block.PreviousHash,
		block.Hash,
		block.Payload.CredentialID,
		block.Payload.SubjectID,
		string(block.Payload.VerificationType),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert block %d: %w", block.Index, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert block %d: %w", block.Index, err)
	}
	return nil
}

// Import writes blocks in a single round trip. The target table must be
// empty; the emptiness check and the insert share one transaction.
func (s *PostgresStore) Import(ctx context.Context, blocks []models.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		return s.importBlocks(ctx, blocks)
	})
}

func (s *PostgresStore) importBlocks(ctx context.Context, blocks []models.Block) error {
	exec := tx.Executor(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `LOCK TABLE ledger_blocks IN EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock ledger table: %w", err)
	}

	var existing int
	if err := exec.QueryRowContext(ctx, `SELECT count(*) FROM ledger_blocks`).Scan(&existing); err != nil {
		return fmt.Errorf("count ledger blocks: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("import into non-empty ledger (%d blocks): %w", existing, sentinel.ErrConflict)
	}

	n := len(blocks)
	indexes := make([]int64, n)
	timestamps := make([]string, n)
	payloads := make([]string, n)
	prevHashes := make([]string, n)
	hashes := make([]string, n)
	credentialIDs := make([]string, n)
	subjectIDs := make([]string, n)
	verificationTypes := make([]string, n)
	for i, b := range blocks {
		payload, err := json.Marshal(b.Payload)
		if err != nil {
			return fmt.Errorf("encode block %d payload: %w", b.Index, err)
		}
		indexes[i] = b.Index
		timestamps[i] = b.Timestamp.UTC().Format(time.RFC3339Nano)
		payloads[i] = string(payload)
		prevHashes[i] = b.PreviousHash
		hashes[i] = b.Hash
		credentialIDs[i] = b.Payload.CredentialID
		subjectIDs[i] = b.Payload.SubjectID
		verificationTypes[i] = string(b.Payload.VerificationType)
	}

	// Batch insert using unnest for O(1) round trips instead of O(n)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO ledger_blocks (idx, ts, payload, previous_hash, hash, credential_id, subject_id, verification_type)
		SELECT * FROM unnest(
			$1::bigint[], $2::timestamptz[], $3::jsonb[], $4::text[],
			$5::text[], $6::text[], $7::text[], $8::text[]
		)
	`,
		pq.Array(indexes),
		pq.Array(timestamps),
		pq.Array(payloads),
		pq.Array(prevHashes),
		pq.Array(hashes),
		pq.Array(credentialIDs),
		pq.Array(subjectIDs),
		pq.Array(verificationTypes),
	)
	if err != nil {
		return fmt.Errorf("import ledger blocks: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
