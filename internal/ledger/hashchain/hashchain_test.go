package hashchain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	a string
	b int
}

func (p pair) Fields() []any { return []any{p.a, p.b} }

func TestFingerprintDeterministic(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	first, err := Fingerprint(int64(1), "0", ts, pair{"x", 2})
	require.NoError(t, err)
	second, err := Fingerprint(int64(1), "0", ts, pair{"x", 2})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, DigestSize)
	assert.True(t, IsDigest(first))
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	ts := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	base := MustFingerprint(int64(1), "prev", ts, pair{"x", 2})

	variants := [][]any{
		{int64(2), "prev", ts, pair{"x", 2}},
		{int64(1), "prev2", ts, pair{"x", 2}},
		{int64(1), "prev", ts.Add(time.Millisecond), pair{"x", 2}},
		{int64(1), "prev", ts, pair{"y", 2}},
		{int64(1), "prev", ts, pair{"x", 3}},
	}
	for i, fields := range variants {
		got := MustFingerprint(fields...)
		assert.NotEqual(t, base, got, "variant %d should change the digest", i)
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Tuple encoding keeps "ab"+"c" distinct from "a"+"bc".
	assert.NotEqual(t, MustFingerprint("ab", "c"), MustFingerprint("a", "bc"))
}

func TestFingerprintNormalizesTimeZone(t *testing.T) {
	utc := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lagos := utc.In(time.FixedZone("WAT", 3600))

	assert.Equal(t, MustFingerprint(utc), MustFingerprint(lagos))
}

func TestFingerprintNumericWidths(t *testing.T) {
	assert.Equal(t, MustFingerprint(int64(7)), MustFingerprint(7))
	assert.Equal(t, MustFingerprint(uint8(7)), MustFingerprint(int32(7)))

	const safe = maxSafeInt
	assert.NotEqual(t, MustFingerprint(int64(safe)), MustFingerprint(int64(safe-1)))
	assert.NotEqual(t, MustFingerprint(int64(-safe)), MustFingerprint(int64(safe)))
	assert.Equal(t, MustFingerprint(int64(safe)), MustFingerprint(uint64(safe)))

	// Above 2^53 float64 round-tripping would merge neighbours, so these fail.
	for name, v := range map[string]any{
		"int64 2^53+1":  int64(1<<53 + 1),
		"int64 -2^53-1": int64(-safe - 2),
		"int64 2^60":    int64(1 << 60),
		"uint64 2^63":   uint64(1 << 63),
		"uint64 2^63+1": uint64(1<<63 + 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Fingerprint("C-1", v)
			require.ErrorIs(t, err, ErrSerialization)
			var serr *SerializationError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, 1, serr.Position)
		})
	}
}

func TestFingerprintRejectsInvalidUTF8(t *testing.T) {
	for _, s := range []string{"C-\xff", "C-\xfe", "\xc3\x28"} {
		_, err := Fingerprint("ok", s)
		require.ErrorIs(t, err, ErrSerialization, "%q", s)
		var serr *SerializationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "string", serr.Type)
		assert.Equal(t, 1, serr.Position)
	}

	_, err := Fingerprint([]any{"ok", "bad \xff"})
	require.ErrorIs(t, err, ErrSerialization)

	assert.NotEqual(t, MustFingerprint("C-é"), MustFingerprint("C-e"))
}

func TestFingerprintRejectsUnsupportedTypes(t *testing.T) {
	cases := map[string]any{
		"map":     map[string]string{"a": "b"},
		"channel": make(chan int),
		"func":    func() {},
		"struct":  struct{ A string }{"a"},
		"pointer": new(string),
		"nan":     math.NaN(),
		"inf":     math.Inf(1),
		"nested":  []any{"ok", make(chan int)},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Fingerprint("ok", v)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSerialization))

			var serr *SerializationError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, 1, serr.Position)
		})
	}
}

func TestMustFingerprintPanicsOnUnsupported(t *testing.T) {
	assert.Panics(t, func() { MustFingerprint(make(chan int)) })
}

func TestIsDigest(t *testing.T) {
	assert.False(t, IsDigest(""))
	assert.False(t, IsDigest("0"))
	assert.False(t, IsDigest("zz"+MustFingerprint("x")[2:]))
}
