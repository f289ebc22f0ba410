package methods

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"credtrust/internal/verification/models"
)

// DefaultMaxArtifactSize bounds accepted certificate files.
const DefaultMaxArtifactSize int64 = 10 << 20

// Digest algorithms accepted in artifact fingerprints.
const (
	AlgorithmSHA256     = "sha256"
	AlgorithmBlake2b256 = "blake2b-256"
)

// defaultMimeTypes maps each accepted MIME type to its file extensions.
var defaultMimeTypes = map[string][]string{
	"application/pdf": {".pdf"},
	"image/png":       {".png"},
	"image/jpeg":      {".jpg", ".jpeg"},
}

// FileIntegrity scores the structural soundness of the submitted artifact.
// Confidence is the share of sub-checks that passed.
type FileIntegrity struct {
	maxSize   int64
	mimeTypes map[string][]string
}

// FileIntegrityOption configures FileIntegrity.
type FileIntegrityOption func(*FileIntegrity)

// WithMaxArtifactSize overrides DefaultMaxArtifactSize.
func WithMaxArtifactSize(n int64) FileIntegrityOption {
	return func(f *FileIntegrity) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithMimeType accepts an additional MIME type with the given extensions.
func WithMimeType(mimeType string, extensions ...string) FileIntegrityOption {
	return func(f *FileIntegrity) {
		f.mimeTypes[strings.ToLower(mimeType)] = extensions
	}
}

// NewFileIntegrity builds the method with pdf, png and jpeg accepted.
func NewFileIntegrity(opts ...FileIntegrityOption) *FileIntegrity {
	f := &FileIntegrity{
		maxSize:   DefaultMaxArtifactSize,
		mimeTypes: make(map[string][]string, len(defaultMimeTypes)),
	}
	for mt, exts := range defaultMimeTypes {
		f.mimeTypes[mt] = exts
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FileIntegrity) Name() models.Method {
	return models.MethodFileIntegrity
}

func (f *FileIntegrity) Evaluate(_ context.Context, req models.Request) (models.MethodResult, error) {
	a := req.Artifact
	if a == nil {
		return models.Skipped(models.MethodFileIntegrity, "no artifact submitted"), nil
	}

	mimeType := strings.ToLower(strings.TrimSpace(a.MimeType))
	extensions, mimeAllowed := f.mimeTypes[mimeType]
	algorithm, digest, fingerprintOK := ParseArtifactFingerprint(a.Fingerprint)

	checks := map[string]bool{
		"size":        a.Size > 0 && a.Size <= f.maxSize,
		"mime_type":   mimeAllowed,
		"fingerprint": fingerprintOK,
		"extension":   mimeAllowed && hasExtension(a.FileName, extensions),
	}
	if len(a.Content) > 0 {
		checks["content_digest"] = fingerprintOK &&
			int64(len(a.Content)) == a.Size &&
			artifactDigest(algorithm, a.Content) == digest
	}

	passed := 0
	details := make(map[string]any, len(checks)+2)
	for name, ok := range checks {
		details[name] = ok
		if ok {
			passed++
		}
	}
	details["passed"] = passed
	details["total"] = len(checks)

	confidence := int(math.Round(float64(passed) / float64(len(checks)) * 100))
	status := models.StatusFailed
	switch {
	case confidence == 100:
		status = models.StatusPassed
	case confidence >= 50:
		status = models.StatusWarning
	}

	return models.MethodResult{
		Method:     models.MethodFileIntegrity,
		Confidence: confidence,
		Status:     status,
		Details:    details,
	}, nil
}

// ParseArtifactFingerprint splits "<algorithm>:<hex>" and checks the digest shape.
func ParseArtifactFingerprint(fp string) (algorithm, digest string, ok bool) {
	algorithm, digest, found := strings.Cut(strings.TrimSpace(fp), ":")
	if !found {
		return "", "", false
	}
	algorithm = strings.ToLower(algorithm)
	if algorithm != AlgorithmSHA256 && algorithm != AlgorithmBlake2b256 {
		return "", "", false
	}
	if len(digest) != 64 {
		return "", "", false
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", false
	}
	return algorithm, strings.ToLower(digest), true
}

// ArtifactFingerprint renders the fingerprint of content under algorithm.
func ArtifactFingerprint(algorithm string, content []byte) string {
	return algorithm + ":" + artifactDigest(algorithm, content)
}

func artifactDigest(algorithm string, content []byte) string {
	switch algorithm {
	case AlgorithmBlake2b256:
		sum := blake2b.Sum256(content)
		return hex.EncodeToString(sum[:])
	case AlgorithmSHA256:
		sum := sha256.Sum256(content)
		return hex.EncodeToString(sum[:])
	}
	return ""
}

func hasExtension(fileName string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
