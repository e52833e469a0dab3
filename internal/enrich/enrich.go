package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MikeSquared-Agency/curator/internal/llm"
	"github.com/MikeSquared-Agency/curator/internal/rows"
)

// DefaultTimeout bounds a single enrichment call.
const DefaultTimeout = 30 * time.Second

// ParseError is a reply that arrived but is not a usable JSON object.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string { return "parse enrichment response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// TransportError is a network, HTTP, provider or timeout failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "enrichment transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

type Enricher struct {
	llm     llm.Completer
	timeout time.Duration
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

func New(c llm.Completer, timeout time.Duration, logger *slog.Logger) (*Enricher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("fields.json", strings.NewReader(fieldsSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("fields.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Enricher{
		llm:     c,
		timeout: timeout,
		schema:  schema,
		logger:  logger.With("component", "enrich"),
	}, nil
}

// Enrich asks the provider to extract structured fields from one row.
// It returns a *ParseError or *TransportError on failure and touches no shared state.
func (e *Enricher) Enrich(ctx context.Context, rowText, instruction string) (rows.Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.llm.CompleteJSON(ctx, systemPrompt, buildPrompt(instruction, rowText))
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrMalformedResponse):
			return rows.Fields{}, &ParseError{Err: err}
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return rows.Fields{}, &TransportError{Err: fmt.Errorf("timed out after %s: %w", e.timeout, err)}
		default:
			return rows.Fields{}, &TransportError{Err: err}
		}
	}

	fields, err := e.parse(raw)
	if err != nil {
		e.logger.Warn("unparseable enrichment reply", "error", err, "raw", truncate(raw, 200))
		return rows.Fields{}, err
	}

	e.logger.Info("enrichment complete",
		"make", fields.Make,
		"model", fields.Model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

func (e *Enricher) parse(raw string) (rows.Fields, error) {
	content := stripFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return rows.Fields{}, &ParseError{Content: raw, Err: err}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return rows.Fields{}, &ParseError{Content: raw, Err: fmt.Errorf("expected a JSON object, got %T", doc)}
	}

	if err := e.schema.Validate(doc); err != nil {
		e.logger.Debug("enrichment reply off schema, coercing", "error", err)
	}

	return rows.Fields{
		Make:      coerce(lookup(obj, "make")),
		Model:     coerce(lookup(obj, "model")),
		Year:      coerce(lookup(obj, "year")),
		Color:     coerce(lookup(obj, "color")),
		Condition: coerce(lookup(obj, "status")),
	}, nil
}

func lookup(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func coerce(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
