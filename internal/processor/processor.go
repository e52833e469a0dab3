package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/enrich"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/rowstore"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Enricher extracts structured fields from a row's raw text.
type Enricher interface {
	Enrich(ctx context.Context, rowText, instruction string) (rows.Fields, error)
}

// Instructions supplies the instruction text at the moment a call is issued.
type Instructions interface {
	Get() string
}

// Poster schedules a function back onto the goroutine that owns the store.
type Poster interface {
	Post(fn func())
}

type inflight struct {
	attempt uint64
	cancel  context.CancelFunc
}

// Processor drives each row through enrichment and the submission transitions.
// Every method must be called on the goroutine that owns the store.
type Processor struct {
	base     context.Context
	store    *rowstore.Store
	enricher Enricher
	instr    Instructions
	poster   Poster
	metrics  *metrics.Metrics
	logger   *slog.Logger

	calls map[uuid.UUID]inflight
}

// New creates a processor. Canceling base aborts every in-flight call.
func New(base context.Context, s *rowstore.Store, e Enricher, instr Instructions, poster Poster, m *metrics.Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		base:     base,
		store:    s,
		enricher: e,
		instr:    instr,
		poster:   poster,
		metrics:  m,
		logger:   logger.With("component", "processor"),
		calls:    make(map[uuid.UUID]inflight),
	}
}

// CurrentChanged starts enrichment when the current row is still pending.
func (p *Processor) CurrentChanged() {
	cur, ok := p.store.Current()
	if !ok || cur.Status != rows.StatusPending {
		return
	}
	if err := p.issue(cur); err != nil {
		p.logger.Error("failed to start enrichment", "row_id", cur.ID, "error", err)
	}
}

// Retry re-issues enrichment for a failed row. It is a no-op while a call is in flight.
func (p *Processor) Retry(id uuid.UUID) error {
	r, ok := p.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", rowstore.ErrNotFound, id)
	}
	switch r.Status {
	case rows.StatusFailed:
		return p.issue(r)
	case rows.StatusEnriching:
		return nil
	default:
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, r.Status)
	}
}

// Reenrich supersedes any in-flight call with a fresh attempt. The older
// result, if it ever arrives, is discarded.
func (p *Processor) Reenrich(id uuid.UUID) error {
	r, ok := p.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", rowstore.ErrNotFound, id)
	}
	switch r.Status {
	case rows.StatusEnriching, rows.StatusFailed:
		return p.issue(r)
	default:
		return fmt.Errorf("%w: re-enrich from %s", ErrInvalidTransition, r.Status)
	}
}

// Attempt returns the row's current attempt generation, 0 if never issued.
func (p *Processor) Attempt(id uuid.UUID) uint64 {
	r, _ := p.store.Get(id)
	return r.Attempt
}

func (p *Processor) issue(r rows.Row) error {
	attempt := r.Attempt + 1
	if _, err := p.store.Update(r.ID, rows.Patch{
		Status:    rows.Ptr(rows.StatusEnriching),
		LastError: rows.Ptr(""),
		Attempt:   rows.Ptr(attempt),
	}); err != nil {
		return err
	}

	if prev, ok := p.calls[r.ID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(p.base)
	p.calls[r.ID] = inflight{attempt: attempt, cancel: cancel}

	instruction := p.instr.Get()
	id, text := r.ID, r.RawText

	p.logger.Info("enrichment started", "row_id", id, "index", r.Index, "attempt", attempt)

	go func() {
		start := time.Now()
		fields, err := p.enricher.Enrich(ctx, text, instruction)
		elapsed := time.Since(start)
		p.poster.Post(func() {
			p.complete(id, attempt, fields, err, elapsed)
		})
	}()
	return nil
}

func (p *Processor) complete(id uuid.UUID, attempt uint64, fields rows.Fields, callErr error, elapsed time.Duration) {
	if c, ok := p.calls[id]; ok && c.attempt == attempt {
		c.cancel()
		delete(p.calls, id)
	}

	r, ok := p.store.Get(id)
	if !ok || r.Attempt != attempt || r.Status != rows.StatusEnriching {
		p.metrics.StaleResult()
		p.logger.Debug("discarding stale enrichment result",
			"row_id", id,
			"attempt", attempt,
			"current_attempt", r.Attempt,
		)
		return
	}

	if callErr != nil {
		p.metrics.EnrichmentFinished(outcomeOf(callErr))
		p.logger.Warn("enrichment failed",
			"row_id", id,
			"attempt", attempt,
			"elapsed_ms", elapsed.Milliseconds(),
			"error", callErr,
		)
		if _, err := p.store.Update(id, rows.Patch{
			Status:    rows.Ptr(rows.StatusFailed),
			LastError: rows.Ptr(callErr.Error()),
		}); err != nil {
			p.logger.Error("failed to record enrichment failure", "row_id", id, "error", err)
		}
		return
	}

	p.metrics.EnrichmentFinished(metrics.OutcomeSuccess)
	if _, err := p.store.Update(id, rows.Patch{
		Status: rows.Ptr(rows.StatusAwaitingReview),
		Fields: &fields,
	}); err != nil {
		p.logger.Error("failed to record enrichment result", "row_id", id, "error", err)
		return
	}
	p.logger.Info("row awaiting review",
		"row_id", id,
		"attempt", attempt,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// MarkSubmitting moves a reviewed row into Submitting.
func (p *Processor) MarkSubmitting(id uuid.UUID) (rows.Row, error) {
	return p.transition(id, rows.StatusAwaitingReview, rows.Patch{
		Status:      rows.Ptr(rows.StatusSubmitting),
		SubmitError: rows.Ptr(""),
	})
}

// MarkProcessed records a backend acknowledgement.
func (p *Processor) MarkProcessed(id uuid.UUID) (rows.Row, error) {
	return p.transition(id, rows.StatusSubmitting, rows.Patch{
		Status: rows.Ptr(rows.StatusProcessed),
	})
}

// RevertSubmission returns a row to review after the backend rejected it.
func (p *Processor) RevertSubmission(id uuid.UUID, cause error) (rows.Row, error) {
	msg := "submission failed"
	if cause != nil {
		msg = cause.Error()
	}
	return p.transition(id, rows.StatusSubmitting, rows.Patch{
		Status:      rows.Ptr(rows.StatusAwaitingReview),
		SubmitError: rows.Ptr(msg),
	})
}

func (p *Processor) transition(id uuid.UUID, from rows.Status, patch rows.Patch) (rows.Row, error) {
	r, ok := p.store.Get(id)
	if !ok {
		return rows.Row{}, fmt.Errorf("%w: %s", rowstore.ErrNotFound, id)
	}
	if r.Status != from {
		return r, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, *patch.Status)
	}
	return p.store.Update(id, patch)
}

func outcomeOf(err error) string {
	var pe *enrich.ParseError
	if errors.As(err, &pe) {
		return metrics.OutcomeParseError
	}
	return metrics.OutcomeTransportError
}
