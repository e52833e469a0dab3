package submit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
)

func sample() Submission {
	return Submission{
		RowID:       uuid.New(),
		Index:       0,
		RawText:     "Honda, Civic",
		Fields:      rows.Fields{Make: "Honda", Model: "Civic"},
		SubmittedAt: time.Now(),
	}
}

func TestSimulated(t *testing.T) {
	if err := (Simulated{Delay: time.Millisecond}).Submit(context.Background(), sample()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (Simulated{Delay: time.Hour}).Submit(ctx, sample())
	var se *Error
	if !errors.As(err, &se) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected *Error wrapping context.Canceled, got %v", err)
	}
}

func TestFanout(t *testing.T) {
	var called []string
	ok := func(name string) Submitter {
		return Func(func(ctx context.Context, s Submission) error {
			called = append(called, name)
			return nil
		})
	}
	boom := errors.New("boom")
	bad := Named("bad", Func(func(ctx context.Context, s Submission) error {
		called = append(called, "bad")
		return boom
	}))

	if err := (Fanout{ok("a"), ok("b")}).Submit(context.Background(), sample()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	called = nil
	err := (Fanout{ok("a"), bad, ok("c")}).Submit(context.Background(), sample())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "submit to bad") {
		t.Errorf("expected sink name in error, got %q", err.Error())
	}
	if len(called) != 3 {
		t.Errorf("expected every sink called, got %v", called)
	}
}

func TestRetrying(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{"first try", 0, 3, false, 1},
		{"recovers", 2, 3, false, 3},
		{"gives up", 5, 3, true, 3},
		{"zero attempts means one", 1, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			next := Func(func(ctx context.Context, s Submission) error {
				calls++
				if calls <= tt.failures {
					return errors.New("unavailable")
				}
				return nil
			})
			err := Retrying{Next: next, Attempts: tt.attempts, Backoff: time.Millisecond}.Submit(context.Background(), sample())
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %t, got %v", tt.wantErr, err)
			}
			if calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestRetrying_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	next := Func(func(ctx context.Context, s Submission) error {
		calls++
		cancel()
		return errors.New("unavailable")
	})

	err := Retrying{Next: next, Attempts: 5, Backoff: time.Hour}.Submit(ctx, sample())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
