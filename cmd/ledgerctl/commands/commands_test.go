package commands

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "credtrust/internal/jwt_token"
	"credtrust/internal/ledger"
	"credtrust/internal/ledger/models"
	ledgerstore "credtrust/internal/ledger/store"
	"credtrust/internal/verification/signature"
)

func record(id, subject string) models.CredentialRecord {
	return models.CredentialRecord{
		CredentialID:     id,
		SubjectID:        subject,
		Issuer:           "ACME",
		CourseName:       "Applied Cryptography",
		IssueDate:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		VerificationType: models.VerificationGovernment,
	}
}

// seedLedger writes a file ledger holding the given records.
func seedLedger(t *testing.T, records ...models.CredentialRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()
	l := ledger.New(ledgerstore.NewFile(path))
	require.NoError(t, l.Initialize(ctx))
	for _, r := range records {
		_, err := l.Append(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, l.Shutdown(ctx))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVerify(t *testing.T) {
	path := seedLedger(t, record("C-1", "learner-1"), record("C-2", "learner-1"))

	out, err := run(t, "verify", "--backend", "file", "--path", path)
	require.NoError(t, err)
	assert.Equal(t, "chain valid: 3 blocks\n", out)

	t.Run("tampered file", func(t *testing.T) {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, bytes.Replace(raw, []byte("C-2"), []byte("C-9"), 1), 0o600))

		out, err := run(t, "verify", "--backend", "file", "--path", path)
		require.ErrorIs(t, err, ErrChainInvalid)
		assert.Contains(t, out, "chain INVALID")
		assert.Contains(t, out, "block 2: hash_mismatch")
	})
}

func TestStatsJSON(t *testing.T) {
	path := seedLedger(t, record("C-1", "learner-1"))

	out, err := run(t, "stats", "--backend", "file", "--path", path, "--json")
	require.NoError(t, err)

	var stats models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.TotalBlocks)
	assert.True(t, stats.ChainValid)
	assert.Equal(t, 1, stats.ByVerificationType[models.VerificationGovernment])
}

func TestShowAndHistory(t *testing.T) {
	path := seedLedger(t,
		record("C-1", "learner-1"),
		record("C-2", "learner-2"),
		record("C-3", "learner-1"),
	)

	out, err := run(t, "show", "C-3", "--backend", "file", "--path", path)
	require.NoError(t, err)
	var block models.Block
	require.NoError(t, json.Unmarshal([]byte(out), &block))
	assert.EqualValues(t, 3, block.Index)
	assert.Equal(t, "learner-1", block.Payload.SubjectID)

	_, err = run(t, "show", "C-404", "--backend", "file", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the ledger")

	out, err = run(t, "history", "learner-1", "--backend", "file", "--path", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "C-1")
	assert.Contains(t, lines[1], "C-3")

	out, err = run(t, "history", "nobody", "--backend", "file", "--path", path)
	require.NoError(t, err)
	assert.Equal(t, "no credentials for nobody\n", out)
}

func TestMigrateRequiresTarget(t *testing.T) {
	path := seedLedger(t)
	_, err := run(t, "migrate", "--backend", "file", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--to-dsn")
}

func TestKeygenAndSign(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)

	keys := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		name, value, ok := strings.Cut(line, ":")
		require.True(t, ok)
		keys[name] = strings.TrimSpace(value)
	}
	pub, err := hex.DecodeString(keys["public"])
	require.NoError(t, err)

	rec := record("C-1", "learner-1")
	doc, err := json.Marshal(rec)
	require.NoError(t, err)
	recordPath := filepath.Join(t.TempDir(), "credential.json")
	require.NoError(t, os.WriteFile(recordPath, doc, 0o600))

	out, err = run(t, "sign", "--key", keys["private"], recordPath)
	require.NoError(t, err)

	ok, err := signature.Verify(ed25519.PublicKey(pub), rec, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = run(t, "sign", "--key", "abcd", recordPath)
	require.Error(t, err)
}

func TestToken(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("JWT_SIGNING_KEY", "cli-test-key")
	t.Setenv("JWT_ISSUER", "credtrust")
	t.Setenv("JWT_AUDIENCE", "credtrust-api")

	out, err := run(t, "token", "--issuer", "ACME", "--ttl", "10m")
	require.NoError(t, err)

	claims, err := jwttoken.NewJWTService("cli-test-key", "credtrust", "credtrust-api").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ACME", claims.IssuerID)
	assert.Equal(t, jwttoken.RoleIssuer, claims.Role)

	_, err = run(t, "token", "--issuer", "ACME", "--role", "admin")
	require.Error(t, err)
}
