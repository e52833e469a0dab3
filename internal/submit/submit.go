// Package submit defines the submission backend contract and a few
// composable implementations.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
)

// Submission is the reviewed record handed to a backend.
type Submission struct {
	RowID       uuid.UUID   `json:"row_id"`
	Index       int         `json:"index"`
	RawText     string      `json:"raw_text"`
	Fields      rows.Fields `json:"fields"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// Func adapts a plain function to Submitter.
type Func func(ctx context.Context, s Submission) error

func (f Func) Submit(ctx context.Context, s Submission) error { return f(ctx, s) }

// Error is a backend failure for a single row.
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("submit to %s: %v", e.Sink, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Simulated acknowledges every submission after Delay.
type Simulated struct {
	Delay  time.Duration
	Logger *slog.Logger
}

func (s Simulated) Submit(ctx context.Context, sub Submission) error {
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return &Error{Sink: "simulated", Err: ctx.Err()}
	case <-t.C:
	}
	if s.Logger != nil {
		s.Logger.Info("submitted row", "row_id", sub.RowID, "index", sub.Index, "make", sub.Fields.Make, "model", sub.Fields.Model)
	}
	return nil
}

// Named tags errors from a sink with its name.
func Named(name string, next Submitter) Submitter {
	return Func(func(ctx context.Context, s Submission) error {
		if err := next.Submit(ctx, s); err != nil {
			var se *Error
			if errors.As(err, &se) {
				return err
			}
			return &Error{Sink: name, Err: err}
		}
		return nil
	})
}

// Fanout calls every sink in order and joins their errors. The submission
// fails if any sink fails.
type Fanout []Submitter

func (f Fanout) Submit(ctx context.Context, s Submission) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Submit(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retrying retries Next up to Attempts times with linear backoff.
type Retrying struct {
	Next     Submitter
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

func (r Retrying) Submit(ctx context.Context, s Submission) error {
	attempts := max(r.Attempts, 1)

	var err error
	for i := 1; i <= attempts; i++ {
		if err = r.Next.Submit(ctx, s); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if r.Logger != nil {
			r.Logger.Warn("submission attempt failed", "row_id", s.RowID, "attempt", i, "error", err)
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(i) * r.Backoff):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
