package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"credtrust/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seenActor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenActor = requestcontext.ActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		want      int
		wantActor string
	}{
		{name: "missing header", validator: stubValidator{}, want: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", validator: stubValidator{err: errors.New("bad")}, want: http.StatusUnauthorized},
		{
			name:      "wrong role",
			header:    "Bearer t",
			validator: stubValidator{claims: &JWTClaims{ActorID: "viewer", Role: "viewer"}},
			want:      http.StatusForbidden,
		},
		{
			name:      "issuer allowed",
			header:    "Bearer t",
			validator: stubValidator{claims: &JWTClaims{ActorID: "uni-lagos", Role: "issuer"}},
			want:      http.StatusNoContent,
			wantActor: "uni-lagos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenActor = ""
			h := RequireAuth(tt.validator, logger, "issuer", "operator")(next)
			r := httptest.NewRequest(http.MethodPost, "/credentials", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.wantActor, seenActor)
		})
	}
}
