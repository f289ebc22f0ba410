package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	jwttoken "credtrust/internal/jwt_token"
	"credtrust/internal/ledger"
	ledgermodels "credtrust/internal/ledger/models"
	"credtrust/internal/verification/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/httputil"
	authmw "credtrust/pkg/platform/middleware/auth"
	"credtrust/pkg/requestcontext"
)

// Service defines the trust operations exposed over HTTP.
type Service interface {
	Issue(ctx context.Context, record ledgermodels.CredentialRecord) (ledgermodels.Block, error)
	Verify(ctx context.Context, credentialID string, req models.Request) (*models.Report, error)
	LedgerStats(ctx context.Context) (ledgermodels.Stats, error)
	ChainValid(ctx context.Context) (ledger.IntegrityReport, error)
	TransactionsFor(ctx context.Context, subjectID string) ([]ledgermodels.Block, error)
}

// Handler serves the credential and ledger endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator authmw.JWTValidator
	verifyMW     []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithVerifyMiddleware wraps the public verify route, typically with a rate limiter.
func WithVerifyMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.verifyMW = append(h.verifyMW, mw...)
	}
}

// New creates a Handler. Issuance requires a bearer token accepted by jwtValidator.
func New(service Service, logger *slog.Logger, jwtValidator authmw.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the trust routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.With(authmw.RequireAuth(h.jwtValidator, h.logger, jwttoken.RoleIssuer, jwttoken.RoleOperator)).
		Post("/credentials", h.HandleIssue)
	r.With(h.verifyMW...).Post("/credentials/{credentialID}/verify", h.HandleVerify)
	r.Get("/ledger/stats", h.HandleStats)
	r.Get("/ledger/valid", h.HandleValid)
	r.Get("/subjects/{subjectID}/transactions", h.HandleTransactions)
}

// HandleIssue appends a credential to the ledger. Issuer tokens may only
// issue under their own issuer name; operators may issue for anyone.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	record := req.Record()

	if requestcontext.ActorRole(ctx) == jwttoken.RoleIssuer && record.Issuer != requestcontext.ActorID(ctx) {
		h.logger.WarnContext(ctx, "issuer token used for foreign issuer",
			"request_id", requestID,
			"actor_id", requestcontext.ActorID(ctx),
			"issuer", record.Issuer,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token does not permit issuing for this issuer"))
		return
	}

	block, err := h.service.Issue(ctx, record)
	if err != nil {
		h.logFailure(ctx, "failed to issue credential", err, "credential_id", record.CredentialID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toBlockResponse(block))
}

// HandleVerify scores a credential and returns the verification report.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	credentialID := strings.TrimSpace(chi.URLParam(r, "credentialID"))

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	report, err := h.service.Verify(ctx, credentialID, req.ToModel())
	if err != nil {
		h.logFailure(ctx, "failed to verify credential", err, "credential_id", credentialID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.LedgerStats(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to read ledger stats", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatsResponse(stats))
}

// HandleValid reports chain validity. An invalid chain is still a 200; the
// body carries the violations.
func (h *Handler) HandleValid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.ChainValid(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to validate ledger", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toValidityResponse(report))
}

func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := strings.TrimSpace(chi.URLParam(r, "subjectID"))

	blocks, err := h.service.TransactionsFor(ctx, subjectID)
	if err != nil {
		h.logFailure(ctx, "failed to list transactions", err, "subject_id", subjectID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionsResponse(subjectID, blocks))
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
}
