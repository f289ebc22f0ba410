package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"credtrust/internal/ledger/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_blocks (
	idx               INTEGER PRIMARY KEY,
	ts                TEXT NOT NULL,
	payload           TEXT NOT NULL,
	previous_hash     TEXT NOT NULL,
	hash              TEXT NOT NULL UNIQUE,
	credential_id     TEXT NOT NULL,
	subject_id        TEXT NOT NULL,
	verification_type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_blocks_subject_idx ON ledger_blocks (subject_id);
`

// SQLiteStore persists blocks in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	// SQLite allows a single writer; one connection keeps appends ordered.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
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
			ts      string
			payload string
		)
		if err := rows.Scan(&b.Index, &ts, &payload, &b.PreviousHash, &b.Hash); err != nil {
			return nil, fmt.Errorf("scan ledger block: %w", err)
		}
		b.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse block %d timestamp: %w", b.Index, err)
		}
		if err := json.Unmarshal([]byte(payload), &b.Payload); err != nil {
			return nil, fmt.Errorf("decode block %d payload: %w", b.Index, err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger blocks: %w", err)
	}
	return blocks, nil
}

func (s *SQLiteStore) Append(ctx context.Context, block models.Block) error {
	payload, err := json.Marshal(block.Payload)
	if err != nil {
		return fmt.Errorf("encode block payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_blocks (idx, ts, payload, previous_hash, hash, credential_id, subject_id, verification_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		block.Index,
		block.Timestamp.UTC().Format(time.RFC3339Nano),
		string(payload),
		block.PreviousHash,
		block.Hash,
		block.Payload.CredentialID,
		block.Payload.SubjectID,
		string(block.Payload.VerificationType),
	)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", block.Index, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
