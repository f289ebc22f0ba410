// Package signature signs and checks issuer signatures over credential
// records. The signed message is the record's ledger fingerprint, so a
// signature binds every field the ledger hashes.
package signature

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"credtrust/internal/ledger/hashchain"
	"credtrust/internal/ledger/models"
	"credtrust/pkg/platform/sentinel"
)

// ErrMalformedSignature is returned when a signature is not hex-encoded ed25519.
var ErrMalformedSignature = errors.New("malformed signature")

// Message returns the bytes an issuer signs for record.
func Message(record models.CredentialRecord) ([]byte, error) {
	fp, err := hashchain.Fingerprint(record.Normalize())
	if err != nil {
		return nil, err
	}
	return []byte(fp), nil
}

// Sign produces the hex signature an issuer attaches to record.
func Sign(key ed25519.PrivateKey, record models.CredentialRecord) (string, error) {
	msg, err := Message(record)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(key, msg)), nil
}

// Verify checks a hex signature against record.
func Verify(key ed25519.PublicKey, record models.CredentialRecord, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(strings.TrimSpace(sigHex))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, ErrMalformedSignature
	}
	msg, err := Message(record)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(key, msg, sig), nil
}

// StaticKeyring serves issuer public keys from configuration.
type StaticKeyring struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewStaticKeyring parses hex-encoded public keys keyed by issuer name.
func NewStaticKeyring(hexKeys map[string]string) (*StaticKeyring, error) {
	k := &StaticKeyring{keys: make(map[string]ed25519.PublicKey, len(hexKeys))}
	for issuer, raw := range hexKeys {
		if err := k.Add(issuer, raw); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Add registers or replaces an issuer key.
func (k *StaticKeyring) Add(issuer, hexKey string) error {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("issuer %q: public key must be %d hex-encoded bytes", issuer, ed25519.PublicKeySize)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[issuer] = ed25519.PublicKey(key)
	return nil
}

// PublicKey returns the issuer's key or sentinel.ErrNotFound.
func (k *StaticKeyring) PublicKey(_ context.Context, issuer string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[issuer]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return key, nil
}

// Len reports how many issuers have keys.
func (k *StaticKeyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
