package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"credtrust/internal/ledger/models"
)

const fileFormatVersion = 1

type ledgerFile struct {
	Version int            `json:"version"`
	Blocks  []models.Block `json:"blocks"`
}

// FileStore persists the full block sequence as one JSON document. Every
// append rewrites the document through a synced temp file and an atomic rename,
// so the file on disk is always a complete chain.
type FileStore struct {
	path string

	mu     sync.Mutex
	blocks []models.Block
	loaded bool
}

// NewFile creates a file store at path. The parent directory is created on first write.
func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the ledger file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) ([]models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.blocks = nil
		s.loaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var doc ledgerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger file: %w", err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("unsupported ledger file version %d", doc.Version)
	}

	s.blocks = doc.Blocks
	s.loaded = true
	return append([]models.Block(nil), doc.Blocks...), nil
}

func (s *FileStore) Append(ctx context.Context, block models.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("append to %s before load", s.path)
	}

	next := append(s.blocks[:len(s.blocks):len(s.blocks)], block)
	if err := s.writeAtomic(next); err != nil {
		return err
	}
	s.blocks = next
	return nil
}

// Replace overwrites the file with blocks. Used by import tooling.
func (s *FileStore) Replace(blocks []models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeAtomic(blocks); err != nil {
		return err
	}
	s.blocks = append([]models.Block(nil), blocks...)
	s.loaded = true
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) writeAtomic(blocks []models.Block) error {
	data, err := json.MarshalIndent(ledgerFile{Version: fileFormatVersion, Blocks: blocks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename ledger file: %w", err)
	}
	return nil
}
