package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/processor"
	"github.com/MikeSquared-Agency/curator/internal/prompt"
	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/rowstore"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type chanPoster struct {
	ch chan func()
}

func (c *chanPoster) Post(fn func()) { c.ch <- fn }

func (c *chanPoster) drain(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case fn := <-c.ch:
			fn()
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for posted function %d of %d", i+1, n)
		}
	}
}

type enricherFunc func(ctx context.Context, text, instruction string) (rows.Fields, error)

func (f enricherFunc) Enrich(ctx context.Context, text, instruction string) (rows.Fields, error) {
	return f(ctx, text, instruction)
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []submit.Submission
	err  error
}

func (r *recordingSubmitter) Submit(ctx context.Context, s submit.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
	return r.err
}

type fixture struct {
	store  *rowstore.Store
	proc   *processor.Processor
	ctrl   *Controller
	poster *chanPoster
	sub    *recordingSubmitter
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	source := make([][]string, n)
	for i := range source {
		source[i] = []string{"Honda", "Civic"}
	}
	s := rowstore.New(rows.FromSource(source))
	f := &fixture{
		store:  s,
		poster: &chanPoster{ch: make(chan func(), 16)},
		sub:    &recordingSubmitter{},
	}
	enr := enricherFunc(func(ctx context.Context, text, instruction string) (rows.Fields, error) {
		return rows.Fields{Make: "Honda", Model: "Civic", Year: "2020"}, nil
	})
	m := metrics.New()
	f.proc = processor.New(ctx, s, enr, prompt.New(""), f.poster, m, discardLogger())
	f.ctrl = New(ctx, s, f.proc, f.sub, f.poster, time.Second, m, discardLogger(), WithClock(func() time.Time { return fixedNow }))
	return f
}

// enrichCurrent enriches the current row through to AwaitingReview.
func (f *fixture) enrichCurrent(t *testing.T) {
	t.Helper()
	f.proc.CurrentChanged()
	f.poster.drain(t, 1)
	cur, _ := f.store.Current()
	if cur.Status != rows.StatusAwaitingReview {
		t.Fatalf("expected awaiting_review, got %s", cur.Status)
	}
}

func TestNavigate(t *testing.T) {
	f := newFixture(t, 3)

	if _, moved := f.ctrl.Navigate(0); moved {
		t.Error("Navigate(0) must not move")
	}
	if _, moved := f.ctrl.Navigate(-1); moved {
		t.Error("Navigate(-1) at start must not move")
	}
	if got := f.store.All()[0].Status; got != rows.StatusPending {
		t.Errorf("no-op navigation must not trigger enrichment, got %s", got)
	}

	r, moved := f.ctrl.Navigate(1)
	if !moved || r.Index != 1 {
		t.Fatalf("expected move to index 1, got %d moved=%t", r.Index, moved)
	}
	if r.Status != rows.StatusEnriching {
		t.Errorf("expected the new current row to start enriching, got %s", r.Status)
	}

	r, moved = f.ctrl.Navigate(5)
	if !moved || r.Index != 2 {
		t.Errorf("expected clamp to last index, got %d", r.Index)
	}
	if _, moved := f.ctrl.Navigate(1); moved {
		t.Error("Navigate past end must not move")
	}
	f.poster.drain(t, 2)
}

func TestNavigate_Empty(t *testing.T) {
	f := newFixture(t, 0)
	if _, moved := f.ctrl.Navigate(1); moved {
		t.Error("expected no movement on empty list")
	}
}

func TestEditField(t *testing.T) {
	f := newFixture(t, 1)

	if _, applied, err := f.ctrl.EditField("make", "Acura"); applied || err != nil {
		t.Errorf("edit on pending row must be ignored, got applied=%t err=%v", applied, err)
	}

	f.enrichCurrent(t)

	r, applied, err := f.ctrl.EditField("make", "Acura")
	if err != nil || !applied || r.Fields.Make != "Acura" {
		t.Fatalf("expected make edit applied, got %+v applied=%t err=%v", r.Fields, applied, err)
	}
	r, _, _ = f.ctrl.EditField("status", "CPO")
	if r.Fields.Condition != "CPO" {
		t.Errorf("expected condition CPO, got %q", r.Fields.Condition)
	}

	if _, _, err := f.ctrl.EditField("price", "1"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestEditField_Year(t *testing.T) {
	tests := []struct {
		value   string
		applied bool
		want    string
	}{
		{"2021", true, "2021"},
		{" 1999 ", true, "1999"},
		{"1900", true, "1900"},
		{"2024", true, "2024"},
		{"1850", false, "2020"},
		{"2029", false, "2020"},
		{"twenty", false, "2020"},
		{"", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			f := newFixture(t, 1)
			f.enrichCurrent(t)

			r, applied, err := f.ctrl.EditField("year", tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if applied != tt.applied {
				t.Errorf("expected applied=%t, got %t", tt.applied, applied)
			}
			if r.Fields.Year != tt.want {
				t.Errorf("expected year %q, got %q", tt.want, r.Fields.Year)
			}
		})
	}
}

func TestSubmit_AutoAdvance(t *testing.T) {
	f := newFixture(t, 3)
	f.enrichCurrent(t)

	r, err := f.ctrl.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Status != rows.StatusSubmitting {
		t.Fatalf("expected submitting, got %s", r.Status)
	}

	// Submission result, then enrichment of the next row.
	f.poster.drain(t, 1)
	all := f.store.All()
	if all[0].Status != rows.StatusProcessed {
		t.Fatalf("expected processed, got %s", all[0].Status)
	}
	if f.store.Cursor() != 1 {
		t.Fatalf("expected auto-advance to 1, got %d", f.store.Cursor())
	}
	if all[1].Status != rows.StatusEnriching {
		t.Errorf("expected the next row to start enriching, got %s", all[1].Status)
	}
	f.poster.drain(t, 1)

	if len(f.sub.subs) != 1 || f.sub.subs[0].Fields.Make != "Honda" || !f.sub.subs[0].SubmittedAt.Equal(fixedNow) {
		t.Errorf("unexpected submissions %+v", f.sub.subs)
	}
}

func TestSubmit_LastRowStays(t *testing.T) {
	f := newFixture(t, 1)
	f.enrichCurrent(t)

	if _, err := f.ctrl.Submit(); err != nil {
		t.Fatal(err)
	}
	f.poster.drain(t, 1)
	if f.store.Cursor() != 0 {
		t.Errorf("expected cursor to stay at 0, got %d", f.store.Cursor())
	}
}

func TestSubmit_SkipsProcessedRows(t *testing.T) {
	f := newFixture(t, 3)

	// Process row 1 first, then go back and submit row 0.
	f.ctrl.Navigate(1)
	f.poster.drain(t, 1)
	if _, err := f.ctrl.Submit(); err != nil {
		t.Fatal(err)
	}
	f.poster.drain(t, 2) // submission, then row 2 enrichment
	if f.store.Cursor() != 2 {
		t.Fatalf("expected cursor 2, got %d", f.store.Cursor())
	}

	f.ctrl.Navigate(-2)
	f.poster.drain(t, 1)
	if _, err := f.ctrl.Submit(); err != nil {
		t.Fatal(err)
	}
	f.poster.drain(t, 1)
	if f.store.Cursor() != 2 {
		t.Errorf("expected advance past processed row 1 to 2, got %d", f.store.Cursor())
	}
}

func TestSubmit_BackendError(t *testing.T) {
	f := newFixture(t, 2)
	f.sub.err = errors.New("backend unavailable")
	f.enrichCurrent(t)

	if _, err := f.ctrl.Submit(); err != nil {
		t.Fatal(err)
	}
	f.poster.drain(t, 1)

	cur, _ := f.store.Current()
	if cur.Status != rows.StatusAwaitingReview {
		t.Fatalf("expected revert to awaiting_review, got %s", cur.Status)
	}
	if cur.SubmitError != "backend unavailable" {
		t.Errorf("expected submit error recorded, got %q", cur.SubmitError)
	}
	if f.store.Cursor() != 0 {
		t.Errorf("failed submission must not advance, got cursor %d", f.store.Cursor())
	}
}

func TestSubmit_Rejected(t *testing.T) {
	f := newFixture(t, 1)
	if _, err := f.ctrl.Submit(); !errors.Is(err, processor.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from pending, got %v", err)
	}

	f.enrichCurrent(t)
	if _, err := f.ctrl.Submit(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Submit(); !errors.Is(err, processor.ErrInvalidTransition) {
		t.Errorf("expected double submit to be rejected, got %v", err)
	}
	f.poster.drain(t, 1)
}
