// Package review implements cursor navigation, field editing and submission
// for the current row.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/processor"
	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/rowstore"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

const minYear = 1900

var (
	ErrNoCurrentRow = errors.New("no current row")
	ErrUnknownField = errors.New("unknown field")
)

// Controller must be used from the goroutine that owns the store.
type Controller struct {
	base      context.Context
	store     *rowstore.Store
	proc      *processor.Processor
	submitter submit.Submitter
	poster    processor.Poster
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Controller)

// WithClock overrides the clock used for year validation and submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(base context.Context, s *rowstore.Store, p *processor.Processor, sub submit.Submitter, poster processor.Poster, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Controller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Controller{
		base:      base,
		store:     s,
		proc:      p,
		submitter: sub,
		poster:    poster,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With("component", "review"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Navigate moves the cursor by delta, clamped to the list bounds. It reports
// whether the cursor moved.
func (c *Controller) Navigate(delta int) (rows.Row, bool) {
	n := c.store.Len()
	if n == 0 {
		return rows.Row{}, false
	}
	from := c.store.Cursor()
	to := min(max(from+delta, 0), n-1)
	if to == from {
		cur, _ := c.store.Current()
		return cur, false
	}
	c.store.SetCursor(to)
	c.proc.CurrentChanged()
	cur, _ := c.store.Current()
	return cur, true
}

// EditField changes one structured field of the current row. Edits that do not
// pass validation, or rows that are not under review, are ignored with applied=false.
func (c *Controller) EditField(name, value string) (rows.Row, bool, error) {
	cur, ok := c.store.Current()
	if !ok {
		return rows.Row{}, false, ErrNoCurrentRow
	}
	if !validField(name) {
		return cur, false, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if !cur.Status.Editable() || cur.Fields == nil {
		return cur, false, nil
	}

	fields := *cur.Fields
	switch name {
	case "make":
		fields.Make = value
	case "model":
		fields.Model = value
	case "color":
		fields.Color = value
	case "status":
		fields.Condition = value
	case "year":
		year, ok := c.normalizeYear(value)
		if !ok {
			return cur, false, nil
		}
		fields.Year = year
	}

	next, err := c.store.Update(cur.ID, rows.Patch{Fields: &fields})
	if err != nil {
		return cur, false, err
	}
	return next, true, nil
}

func validField(name string) bool {
	switch name {
	case "make", "model", "year", "color", "status":
		return true
	}
	return false
}

// normalizeYear accepts an integer between 1900 and the current year, or an
// empty value which clears the field.
func (c *Controller) normalizeYear(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true
	}
	y, err := strconv.Atoi(value)
	if err != nil {
		return "", false
	}
	if y < minYear || y > c.now().Year() {
		return "", false
	}
	return strconv.Itoa(y), true
}

// Submit hands the current row to the submitter. The call returns as soon as
// the row is Submitting; the outcome is applied when the backend answers.
func (c *Controller) Submit() (rows.Row, error) {
	cur, ok := c.store.Current()
	if !ok {
		return rows.Row{}, ErrNoCurrentRow
	}
	r, err := c.proc.MarkSubmitting(cur.ID)
	if err != nil {
		return r, err
	}

	sub := submit.Submission{
		RowID:       r.ID,
		Index:       r.Index,
		RawText:     r.RawText,
		Fields:      *r.Fields,
		SubmittedAt: c.now().UTC(),
	}
	c.logger.Info("submitting row", "row_id", r.ID, "index", r.Index)

	go func() {
		ctx, cancel := context.WithTimeout(c.base, c.timeout)
		defer cancel()
		err := c.submitter.Submit(ctx, sub)
		c.poster.Post(func() { c.finishSubmit(sub, err) })
	}()
	return r, nil
}

func (c *Controller) finishSubmit(sub submit.Submission, err error) {
	if err != nil {
		c.metrics.SubmissionFinished(metrics.OutcomeError)
		c.logger.Warn("submission failed", "row_id", sub.RowID, "error", err)
		if _, rerr := c.proc.RevertSubmission(sub.RowID, err); rerr != nil {
			c.logger.Error("failed to revert submission", "row_id", sub.RowID, "error", rerr)
		}
		return
	}

	c.metrics.SubmissionFinished(metrics.OutcomeSuccess)
	if _, err := c.proc.MarkProcessed(sub.RowID); err != nil {
		c.logger.Error("failed to mark row processed", "row_id", sub.RowID, "error", err)
		return
	}
	c.logger.Info("row processed", "row_id", sub.RowID, "index", sub.Index)
	c.advanceFrom(sub.RowID)
}

// advanceFrom moves the cursor to the first unprocessed row after the given one.
func (c *Controller) advanceFrom(id uuid.UUID) {
	from := c.store.IndexOf(id)
	if from < 0 {
		return
	}
	all := c.store.All()
	for i := from + 1; i < len(all); i++ {
		if !all[i].Status.Unprocessed() {
			continue
		}
		if i != c.store.Cursor() {
			c.store.SetCursor(i)
			c.proc.CurrentChanged()
		}
		return
	}
}
