package testutil

import (
	"net/http"

	"credtrust/pkg/requestcontext"
)

// WithClient attaches client metadata the way the metadata middleware would.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

