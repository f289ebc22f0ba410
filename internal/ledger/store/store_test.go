package store_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credtrust/internal/ledger"
	"credtrust/internal/ledger/models"
	"credtrust/internal/ledger/store"
)

func sampleRecord(id string) models.CredentialRecord {
	return models.CredentialRecord{
		CredentialID:     id,
		SubjectID:        "learner-42",
		Issuer:           "Covenant University",
		CourseName:       "Applied Cryptography",
		IssueDate:        time.Date(2025, 2, 3, 4, 5, 6, 789_123_456, time.UTC),
		VerificationType: models.VerificationIndustry,
	}
}

// roundTrip appends records through a ledger, reopens the store and checks the
// reloaded chain is byte-for-byte the same.
func roundTrip(t *testing.T, open func() ledger.Store) {
	t.Helper()
	ctx := context.Background()

	l := ledger.New(open())
	require.NoError(t, l.Initialize(ctx))
	for _, id := range []string{"cred-a", "cred-b", "cred-c"} {
		_, err := l.Append(ctx, sampleRecord(id))
		require.NoError(t, err)
	}
	want, err := l.Blocks()
	require.NoError(t, err)
	require.NoError(t, l.Shutdown(ctx))

	reopened := ledger.New(open())
	require.NoError(t, reopened.Initialize(ctx))
	got, err := reopened.Blocks()
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Hash, got[i].Hash)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		assert.True(t, want[i].Payload.IssueDate.Equal(got[i].Payload.IssueDate))
	}
	assert.True(t, reopened.IsValid())
	require.NoError(t, reopened.Shutdown(ctx))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.json")
	roundTrip(t, func() ledger.Store { return store.NewFile(path) })

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are renamed away")
}

func TestFileStoreDetectsTamperedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	l := ledger.New(store.NewFile(path))
	require.NoError(t, l.Initialize(ctx))
	_, err := l.Append(ctx, sampleRecord("cred-a"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	forged := strings.Replace(string(data), "Applied Cryptography", "Brain Surgery", 1)
	require.NotEqual(t, string(data), forged)
	require.NoError(t, os.WriteFile(path, []byte(forged), 0o644))

	reopened := ledger.New(store.NewFile(path))
	require.NoError(t, reopened.Initialize(ctx), "tampered chains load but are never repaired")
	assert.False(t, reopened.IsValid())

	report, err := reopened.Validate()
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, int64(1), report.Violations[0].Index)
	assert.Equal(t, ledger.ReasonHashMismatch, report.Violations[0].Reason)
}

func TestFileStoreRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"blocks":[]}`), 0o644))

	_, err := store.NewFile(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 99")
}

func TestFileStoreAppendRequiresLoad(t *testing.T) {
	s := store.NewFile(filepath.Join(t.TempDir(), "ledger.json"))
	err := s.Append(context.Background(), ledger.Genesis())
	require.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	roundTrip(t, func() ledger.Store {
		s, err := store.OpenSQLite(context.Background(), path)
		require.NoError(t, err)
		return s
	})
}

func TestInMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemory()
	require.NoError(t, s.Append(ctx, ledger.Genesis()))

	blocks, err := s.Load(ctx)
	require.NoError(t, err)
	blocks[0].Hash = "mutated"

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.Genesis().Hash, again[0].Hash)
}
