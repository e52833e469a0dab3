// Package session composes the row store, processor and review controller
// behind a goroutine-safe API. Every operation runs on a single loop.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/loop"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/processor"
	"github.com/MikeSquared-Agency/curator/internal/prompt"
	"github.com/MikeSquared-Agency/curator/internal/review"
	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/rowstore"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

var (
	ErrAlreadyLoaded = errors.New("dataset already loaded")
	ErrNotLoaded     = errors.New("no dataset loaded")
)

type Deps struct {
	Enricher      processor.Enricher
	Submitter     submit.Submitter
	Instructions  *prompt.Holder
	Metrics       *metrics.Metrics
	Listeners     []rowstore.Listener
	SubmitTimeout time.Duration
	Now           func() time.Time
}

// View is a consistent snapshot of the session.
type View struct {
	Rows        []rows.Row `json:"rows"`
	Cursor      int        `json:"cursor"`
	Instruction string     `json:"instruction"`
}

type Session struct {
	deps   Deps
	loop   *loop.Loop
	root   *slog.Logger
	logger *slog.Logger

	// Owned by the loop goroutine.
	base  context.Context
	store *rowstore.Store
	proc  *processor.Processor
	ctrl  *review.Controller
}

func New(deps Deps, logger *slog.Logger) *Session {
	if deps.Instructions == nil {
		deps.Instructions = prompt.New("")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		deps:   deps,
		loop:   loop.New(0),
		root:   logger,
		logger: logger.With("component", "session"),
	}
}

// Run processes operations until ctx is canceled. Canceling ctx also aborts
// in-flight enrichment and submission calls.
func (s *Session) Run(ctx context.Context) error {
	// Only read by functions running inside the loop below.
	s.base = ctx
	return s.loop.Run(ctx)
}

// Load ingests rows and starts enrichment of the first one.
func (s *Session) Load(ctx context.Context, source [][]string) (View, error) {
	var (
		view View
		err  error
	)
	derr := s.loop.Do(ctx, func() {
		if s.store != nil {
			err = ErrAlreadyLoaded
			return
		}
		s.store = rowstore.New(rows.FromSource(source))
		s.store.Subscribe(s.deps.Metrics.ObserveRow)
		for _, l := range s.deps.Listeners {
			s.store.Subscribe(l)
		}
		s.deps.Metrics.ResetRows(s.store.All())

		s.proc = processor.New(s.base, s.store, s.deps.Enricher, s.deps.Instructions, s.loop, s.deps.Metrics, s.root)
		s.ctrl = review.New(s.base, s.store, s.proc, s.deps.Submitter, s.loop, s.deps.SubmitTimeout,
			s.deps.Metrics, s.root, review.WithClock(s.deps.Now))

		s.logger.Info("dataset loaded", "rows", s.store.Len())
		s.proc.CurrentChanged()
		view = s.view()
	})
	if derr != nil {
		return View{}, derr
	}
	return view, err
}

func (s *Session) view() View {
	return View{
		Rows:        s.store.All(),
		Cursor:      s.store.Cursor(),
		Instruction: s.deps.Instructions.Get(),
	}
}

// do runs fn on the loop once a dataset is loaded.
func (s *Session) do(ctx context.Context, fn func() error) error {
	var err error
	if derr := s.loop.Do(ctx, func() {
		if s.store == nil {
			err = ErrNotLoaded
			return
		}
		err = fn()
	}); derr != nil {
		return derr
	}
	return err
}

func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.do(ctx, func() error {
		v = s.view()
		return nil
	})
	return v, err
}

func (s *Session) Current(ctx context.Context) (rows.Row, error) {
	var r rows.Row
	err := s.do(ctx, func() error {
		cur, ok := s.store.Current()
		if !ok {
			return review.ErrNoCurrentRow
		}
		r = cur
		return nil
	})
	return r, err
}

func (s *Session) Navigate(ctx context.Context, delta int) (rows.Row, bool, error) {
	var (
		r     rows.Row
		moved bool
	)
	err := s.do(ctx, func() error {
		r, moved = s.ctrl.Navigate(delta)
		return nil
	})
	return r, moved, err
}

func (s *Session) EditField(ctx context.Context, name, value string) (rows.Row, bool, error) {
	var (
		r       rows.Row
		applied bool
	)
	err := s.do(ctx, func() error {
		var err error
		r, applied, err = s.ctrl.EditField(name, value)
		return err
	})
	return r, applied, err
}

func (s *Session) Submit(ctx context.Context) (rows.Row, error) {
	var r rows.Row
	err := s.do(ctx, func() error {
		var err error
		r, err = s.ctrl.Submit()
		return err
	})
	return r, err
}

func (s *Session) Retry(ctx context.Context, id uuid.UUID) (rows.Row, error) {
	return s.byID(ctx, id, (*processor.Processor).Retry)
}

func (s *Session) Reenrich(ctx context.Context, id uuid.UUID) (rows.Row, error) {
	return s.byID(ctx, id, (*processor.Processor).Reenrich)
}

func (s *Session) byID(ctx context.Context, id uuid.UUID, op func(*processor.Processor, uuid.UUID) error) (rows.Row, error) {
	var r rows.Row
	err := s.do(ctx, func() error {
		if err := op(s.proc, id); err != nil {
			return err
		}
		r, _ = s.store.Get(id)
		return nil
	})
	return r, err
}

func (s *Session) Instruction() string {
	return s.deps.Instructions.Get()
}

// SetInstruction affects calls issued afterwards. In-flight calls keep the
// text they were issued with.
func (s *Session) SetInstruction(text string) error {
	return s.deps.Instructions.Set(text)
}
