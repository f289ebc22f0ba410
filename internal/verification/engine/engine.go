// Package engine runs the verification methods against a credential and
// folds their results into a scored report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"credtrust/internal/verification/methods"
	"credtrust/internal/verification/metrics"
	"credtrust/internal/verification/models"
	"credtrust/pkg/requestcontext"
)

// ErrNoMethodsAvailable is returned when no method produced a scorable result.
var ErrNoMethodsAvailable = errors.New("no verification methods available")

var (
	attrCredentialID = attribute.Key("credtrust.credential.id")
	attrMethod       = attribute.Key("credtrust.verification.method")
	attrStatus       = attribute.Key("credtrust.verification.status")
	attrConfidence   = attribute.Key("credtrust.verification.confidence")
	attrVerdict      = attribute.Key("credtrust.verification.verdict")
)

// Engine scores credentials. It is safe for concurrent use.
type Engine struct {
	methods []methods.Method
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New builds an engine over the methods that have a configured weight.
func New(ms []methods.Method, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer("credtrust/verification"),
	}
	seen := make(map[models.Method]bool, len(ms))
	for _, m := range ms {
		name := m.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: method %s registered twice", ErrInvalidConfig, name)
		}
		seen[name] = true
		if _, weighted := cfg.Weights[name]; weighted {
			e.methods = append(e.methods, m)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Methods lists the active method names in report order.
func (e *Engine) Methods() []models.Method {
	names := make([]models.Method, len(e.methods))
	for i, m := range e.methods {
		names[i] = m.Name()
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Verify runs every active method concurrently and scores the outcome.
// Cancelling ctx abandons the run: the context error is returned and no
// partial report is produced.
func (e *Engine) Verify(ctx context.Context, req models.Request) (*models.Report, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Verify",
		trace.WithAttributes(attrCredentialID.String(req.Record.CredentialID)))
	defer span.End()

	if len(e.methods) == 0 {
		span.SetStatus(codes.Error, ErrNoMethodsAvailable.Error())
		return nil, ErrNoMethodsAvailable
	}

	results := make([]models.MethodResult, len(e.methods))
	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.MaxConcurrency
	if limit <= 0 {
		limit = -1
	}
	g.SetLimit(limit)
	for i, m := range e.methods {
		g.Go(func() error {
			results[i] = e.run(gctx, m, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Method < results[j].Method })

	overall, ok := Aggregate(results, e.cfg.Weights)
	if !ok {
		e.logger.WarnContext(ctx, "no scorable verification results",
			"credential_id", req.Record.CredentialID,
			"request_id", requestcontext.RequestID(ctx),
		)
		span.SetStatus(codes.Error, ErrNoMethodsAvailable.Error())
		return nil, ErrNoMethodsAvailable
	}
	verdict := Classify(overall, e.cfg.Thresholds)

	report := &models.Report{
		ReportID:          uuid.New(),
		CredentialID:      req.Record.CredentialID,
		OverallConfidence: overall,
		MethodResults:     results,
		Verdict:           verdict,
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
		Timestamp:         requestcontext.Now(ctx).UTC(),
	}

	e.metrics.ObserveReport(string(verdict), overall)
	span.SetAttributes(attrConfidence.Int(overall), attrVerdict.String(string(verdict)))
	e.logger.InfoContext(ctx, "credential verified",
		"credential_id", report.CredentialID,
		"report_id", report.ReportID.String(),
		"overall_confidence", overall,
		"verdict", string(verdict),
		"processing_ms", report.ProcessingTimeMs,
		"request_id", requestcontext.RequestID(ctx),
	)
	return report, nil
}

type outcome struct {
	result models.MethodResult
	err    error
}

// run evaluates one method under its own timeout. The method runs on its
// own goroutine so a method that ignores its context still times out.
func (e *Engine) run(ctx context.Context, m methods.Method, req models.Request) models.MethodResult {
	name := m.Name()
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "method."+string(name), trace.WithAttributes(attrMethod.String(string(name))))
	defer span.End()

	mctx, cancel := context.WithTimeout(ctx, e.cfg.MethodTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: methods.NewMethodError(methods.ErrorInternal, name, "method panicked", fmt.Errorf("%v", r))}
			}
		}()
		res, err := m.Evaluate(mctx, req)
		done <- outcome{result: res, err: err}
	}()

	var res models.MethodResult
	select {
	case o := <-done:
		res = e.settle(mctx, name, o)
	case <-mctx.Done():
		res = e.timedOut(ctx, name, mctx.Err())
	}

	e.metrics.ObserveMethod(string(name), string(res.Status), time.Since(start))
	span.SetAttributes(attrStatus.String(string(res.Status)), attrConfidence.Int(res.Confidence))
	if res.Status == models.StatusFailed && res.Error != "" {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (e *Engine) settle(mctx context.Context, name models.Method, o outcome) models.MethodResult {
	if o.err != nil {
		if mctx.Err() != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return e.timedOut(mctx, name, o.err)
		}
		if methods.Contained(o.err) {
			return models.Skipped(name, o.err.Error())
		}
		e.logger.ErrorContext(mctx, "verification method failed", "method", string(name), "error", o.err)
		return models.Failed(name, o.err.Error())
	}

	res := o.result
	res.Method = name
	switch {
	case res.Status == models.StatusSkipped:
		res.Confidence = 0
	case res.Confidence < 0:
		res.Confidence = 0
	case res.Confidence > 100:
		res.Confidence = 100
	}
	return res
}

func (e *Engine) timedOut(ctx context.Context, name models.Method, cause error) models.MethodResult {
	merr := methods.NewMethodError(methods.ErrorTimeout, name, fmt.Sprintf("no result within %s", e.cfg.MethodTimeout), cause)
	e.logger.WarnContext(ctx, "verification method timed out", "method", string(name), "timeout", e.cfg.MethodTimeout.String())
	return models.Skipped(name, merr.Error())
}
