package issuer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"credtrust/internal/verification/metrics"
	"credtrust/pkg/platform/circuit"
	"credtrust/pkg/platform/sentinel"
)

const maxResponseBytes = 64 << 10

// HTTPRegistry queries issuer registries over HTTP at
// GET {endpoint}/credentials/{credentialID}. A 404 means the issuer never
// issued the credential. Each issuer gets its own circuit breaker; all
// issuers share one outbound rate limit.
type HTTPRegistry struct {
	endpoints   map[string]string
	client      *http.Client
	limiter     *rate.Limiter
	breakerOpts []circuit.Option
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// HTTPOption configures HTTPRegistry.
type HTTPOption func(*HTTPRegistry)

// WithHTTPClient replaces the default client (2s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRegistry) {
		if c != nil {
			r.client = c
		}
	}
}

// WithRateLimit caps outbound calls per second across all issuers.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(r *HTTPRegistry) {
		if perSecond > 0 && burst > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithBreakerOptions configures every per-issuer breaker.
func WithBreakerOptions(opts ...circuit.Option) HTTPOption {
	return func(r *HTTPRegistry) {
		r.breakerOpts = append(r.breakerOpts, opts...)
	}
}

func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(r *HTTPRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithHTTPMetrics(m *metrics.Metrics) HTTPOption {
	return func(r *HTTPRegistry) {
		r.metrics = m
	}
}

// NewHTTPRegistry builds a registry client over issuer base URLs.
func NewHTTPRegistry(endpoints map[string]string, opts ...HTTPOption) *HTTPRegistry {
	r := &HTTPRegistry{
		endpoints: make(map[string]string, len(endpoints)),
		client:    &http.Client{Timeout: 2 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 0),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		breakers:  make(map[string]*circuit.Breaker),
	}
	for issuer, base := range endpoints {
		r.endpoints[issuer] = strings.TrimRight(base, "/")
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type lookupResponse struct {
	CredentialID string `json:"credentialId"`
	Status       string `json:"status"`
}

// Lookup asks the issuer's registry about credentialID.
func (r *HTTPRegistry) Lookup(ctx context.Context, issuer, credentialID string) (LookupResult, error) {
	base, ok := r.endpoints[issuer]
	if !ok {
		return LookupResult{}, ErrUnknownIssuer
	}

	breaker := r.breaker(issuer)
	if !breaker.Allow() {
		r.metrics.IncRegistryCall("rejected")
		return LookupResult{}, ErrCircuitOpen
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return LookupResult{}, fmt.Errorf("issuer registry rate limit: %w", err)
	}

	result, err := r.call(ctx, base, issuer, credentialID)
	if err != nil {
		r.metrics.IncRegistryCall("error")
		if _, change := breaker.RecordFailure(); change.Opened {
			r.logger.WarnContext(ctx, "issuer registry circuit opened", "issuer", issuer, "error", err)
		}
		return LookupResult{}, err
	}

	if _, change := breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "issuer registry circuit closed", "issuer", issuer)
	}
	r.metrics.IncRegistryCall(string(result.Status))
	return result, nil
}

func (r *HTTPRegistry) call(ctx context.Context, base, issuer, credentialID string) (LookupResult, error) {
	endpoint := base + "/credentials/" + url.PathEscape(credentialID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LookupResult{}, fmt.Errorf("build issuer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return LookupResult{}, fmt.Errorf("issuer registry %s: %w: %w", issuer, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	result := LookupResult{
		Issuer:       issuer,
		CredentialID: credentialID,
		CheckedAt:    r.now().UTC(),
		Source:       SourceRegistry,
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		result.Status = StatusNotFound
		return result, nil
	case resp.StatusCode != http.StatusOK:
		return LookupResult{}, fmt.Errorf("issuer registry %s returned %d: %w", issuer, resp.StatusCode, sentinel.ErrUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return LookupResult{}, fmt.Errorf("read issuer response: %w: %w", sentinel.ErrUnavailable, err)
	}
	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return LookupResult{}, fmt.Errorf("decode issuer response: %w", err)
	}
	if payload.CredentialID != "" && payload.CredentialID != credentialID {
		return LookupResult{}, fmt.Errorf("issuer response names credential %q, asked for %q", payload.CredentialID, credentialID)
	}

	switch strings.ToLower(payload.Status) {
	case "valid", "active", "verified":
		result.Status = StatusVerified
	case "revoked":
		result.Status = StatusRevoked
	default:
		return LookupResult{}, fmt.Errorf("issuer response status %q not recognized", payload.Status)
	}
	return result, nil
}

// BreakerState reports the circuit state for issuer.
func (r *HTTPRegistry) BreakerState(issuer string) circuit.State {
	return r.breaker(issuer).State()
}

func (r *HTTPRegistry) breaker(issuer string) *circuit.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[issuer]
	if !ok {
		b = circuit.New("issuer:"+issuer, r.breakerOpts...)
		r.breakers[issuer] = b
	}
	return b
}
