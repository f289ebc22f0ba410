// Package hashchain computes the deterministic block fingerprints that link
// the ledger together.
//
// A fingerprint is SHA-256 over the RFC 8785 canonical JSON encoding of the
// ordered field tuple. Only value types with an unambiguous canonical form are
// accepted; everything else fails with a SerializationError. That excludes
// strings that are not valid UTF-8 and integers outside the IEEE 754 safe
// range, since JSON encoding would coerce both.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
)

// DigestSize is the fingerprint length in hex characters.
const DigestSize = sha256.Size * 2

// ErrSerialization is matched by every SerializationError.
var ErrSerialization = errors.New("fingerprint serialization failed")

// SerializationError reports a field that has no canonical encoding.
type SerializationError struct {
	Position int
	Type     string
	Reason   string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("fingerprint field %d (%s): %s", e.Position, e.Type, e.Reason)
}

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

// Fielder is implemented by composite values that fingerprint as an ordered tuple.
type Fielder interface {
	Fields() []any
}

// Fingerprint returns the hex SHA-256 digest of the canonical encoding of fields.
// Equal inputs always yield equal digests.
func Fingerprint(fields ...any) (string, error) {
	values := make([]any, len(fields))
	for i, f := range fields {
		v, err := canonicalValue(i, f, 0)
		if err != nil {
			return "", err
		}
		values[i] = v
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return "", &SerializationError{Position: -1, Type: "tuple", Reason: err.Error()}
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", &SerializationError{Position: -1, Type: "tuple", Reason: err.Error()}
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustFingerprint is Fingerprint for static inputs; it panics on error.
func MustFingerprint(fields ...any) string {
	digest, err := Fingerprint(fields...)
	if err != nil {
		panic(err)
	}
	return digest
}

// IsDigest reports whether s looks like a fingerprint.
func IsDigest(s string) bool {
	if len(s) != DigestSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

const maxDepth = 8

func canonicalValue(pos int, v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, &SerializationError{Position: pos, Type: fmt.Sprintf("%T", v), Reason: "nesting too deep"}
	}

	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if !utf8.ValidString(x) {
			return nil, &SerializationError{Position: pos, Type: "string", Reason: "invalid UTF-8"}
		}
		return x, nil
	case bool:
		return x, nil
	case int:
		return canonicalInt(pos, int64(x))
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return canonicalInt(pos, x)
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint:
		return canonicalUint(pos, uint64(x))
	case uint64:
		return canonicalUint(pos, x)
	case float32:
		return canonicalFloat(pos, float64(x))
	case float64:
		return canonicalFloat(pos, x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, err := canonicalValue(pos, e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case Fielder:
		return canonicalValue(pos, x.Fields(), depth+1)
	default:
		return nil, &SerializationError{Position: pos, Type: fmt.Sprintf("%T", v), Reason: "unsupported field type"}
	}
}

// maxSafeInt is the largest integer every JSON number parser keeps exact.
const maxSafeInt = 1<<53 - 1

func canonicalInt(pos int, n int64) (any, error) {
	if n > maxSafeInt || n < -maxSafeInt {
		return nil, &SerializationError{Position: pos, Type: "int", Reason: "magnitude exceeds 2^53-1"}
	}
	return n, nil
}

func canonicalUint(pos int, n uint64) (any, error) {
	if n > maxSafeInt {
		return nil, &SerializationError{Position: pos, Type: "uint", Reason: "magnitude exceeds 2^53-1"}
	}
	return n, nil
}

func canonicalFloat(pos int, f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &SerializationError{Position: pos, Type: "float", Reason: "NaN and Inf have no canonical form"}
	}
	return f, nil
}
