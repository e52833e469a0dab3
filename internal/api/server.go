package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/session"
)

// Session is the review session the API drives.
type Session interface {
	Load(ctx context.Context, source [][]string) (session.View, error)
	View(ctx context.Context) (session.View, error)
	Current(ctx context.Context) (rows.Row, error)
	Navigate(ctx context.Context, delta int) (rows.Row, bool, error)
	EditField(ctx context.Context, name, value string) (rows.Row, bool, error)
	Submit(ctx context.Context) (rows.Row, error)
	Retry(ctx context.Context, id uuid.UUID) (rows.Row, error)
	Reenrich(ctx context.Context, id uuid.UUID) (rows.Row, error)
	Instruction() string
	SetInstruction(text string) error
}

type Options struct {
	Port        int
	APIToken    string
	CORSOrigins []string
	Metrics     http.Handler
}

type Server struct {
	router   *chi.Mux
	port     int
	http     *http.Server
	session  Session
	validate *validator.Validate
	logger   *slog.Logger
	started  time.Time
}

func NewServer(opts Options, sess Session, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "PUT", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		router:   router,
		port:     opts.Port,
		session:  sess,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "api"),
		started:  time.Now(),
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/curator/status", s.status)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIToken))

		r.Post("/dataset", s.loadDataset)
		r.Get("/rows", s.listRows)
		r.Get("/rows/current", s.currentRow)
		r.Post("/cursor", s.moveCursor)
		r.Patch("/rows/current/fields", s.editField)
		r.Post("/rows/current/submit", s.submitCurrent)
		r.Post("/rows/{id}/retry", s.retryRow)
		r.Post("/rows/{id}/reenrich", s.reenrichRow)
		r.Get("/instruction", s.getInstruction)
		r.Put("/instruction", s.putInstruction)
	})

	return s
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("API server stopped")
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"agent":          "curator",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"loaded":         false,
	}

	if v, err := s.session.View(r.Context()); err == nil {
		counts := make(map[rows.Status]int, len(rows.AllStatuses))
		for _, row := range v.Rows {
			counts[row.Status]++
		}
		resp["loaded"] = true
		resp["rows"] = len(v.Rows)
		resp["cursor"] = v.Cursor
		resp["statuses"] = counts
	}
	RespondJSON(w, http.StatusOK, resp)
}
