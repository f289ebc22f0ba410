package signature

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credtrust/internal/ledger/models"
	"credtrust/pkg/platform/sentinel"
)

func testRecord() models.CredentialRecord {
	return models.CredentialRecord{
		CredentialID:     "C-1",
		SubjectID:        "learner-1",
		Issuer:           "State Board",
		CourseName:       "Applied Cryptography",
		IssueDate:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		VerificationType: models.VerificationGovernment,
	}
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sig, err := Sign(priv, testRecord())
	require.NoError(t, err)

	ok, err := Verify(pub, testRecord(), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("any field change breaks the signature", func(t *testing.T) {
		tampered := testRecord()
		tampered.CourseName = "Applied Cryptography II"
		ok, err := Verify(pub, tampered, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed signature", func(t *testing.T) {
		_, err := Verify(pub, testRecord(), "zz")
		require.ErrorIs(t, err, ErrMalformedSignature)
	})
}

func TestStaticKeyring(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	keyring, err := NewStaticKeyring(map[string]string{"State Board": hex.EncodeToString(pub)})
	require.NoError(t, err)
	assert.Equal(t, 1, keyring.Len())

	got, err := keyring.PublicKey(context.Background(), "State Board")
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = keyring.PublicKey(context.Background(), "Unknown Academy")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = NewStaticKeyring(map[string]string{"Bad": "abcd"})
	require.Error(t, err)
}
