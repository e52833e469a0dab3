package rows

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a single row.
type Status string

const (
	StatusPending        Status = "pending"
	StatusEnriching      Status = "enriching"
	StatusAwaitingReview Status = "awaiting_review"
	StatusSubmitting     Status = "submitting"
	StatusProcessed      Status = "processed"
	StatusFailed         Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusEnriching,
	StatusAwaitingReview,
	StatusSubmitting,
	StatusProcessed,
	StatusFailed,
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusEnriching, StatusAwaitingReview,
		StatusSubmitting, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// HasFields reports whether a row in this status must carry structured fields.
func (s Status) HasFields() bool {
	switch s {
	case StatusAwaitingReview, StatusSubmitting, StatusProcessed:
		return true
	default:
		return false
	}
}

// Unprocessed reports whether the row still needs review and submission.
func (s Status) Unprocessed() bool {
	switch s {
	case StatusPending, StatusEnriching, StatusAwaitingReview, StatusFailed:
		return true
	default:
		return false
	}
}

// Editable reports whether the user may change structured fields in this status.
func (s Status) Editable() bool {
	return s == StatusAwaitingReview
}

// Fields are the attributes extracted from a row by enrichment.
// Condition is serialized as "status" to match the enrichment contract.
type Fields struct {
	Make      string `json:"make"`
	Model     string `json:"model"`
	Year      string `json:"year"`
	Color     string `json:"color"`
	Condition string `json:"status"`
}

// Row is one ingested record and its review lifecycle.
type Row struct {
	ID           uuid.UUID `json:"id"`
	Index        int       `json:"index"`
	RawText      string    `json:"raw_text"`
	Display      string    `json:"display"`
	SourceFields []string  `json:"source_fields"`
	Status       Status    `json:"status"`
	Fields       *Fields   `json:"fields,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	SubmitError  string    `json:"submit_error,omitempty"`
	Attempt      uint64    `json:"attempt"`
}

// Clone returns a deep copy so callers outside the loop never share slices or pointers.
func (r Row) Clone() Row {
	out := r
	out.SourceFields = append([]string(nil), r.SourceFields...)
	if r.Fields != nil {
		f := *r.Fields
		out.Fields = &f
	}
	return out
}

var (
	ErrInvalidStatus  = errors.New("invalid row status")
	ErrFieldsPresence = errors.New("structured fields do not match status")
	ErrStrayLastError = errors.New("last error set outside failed status")
	ErrStraySubmitErr = errors.New("submit error set outside awaiting review status")
)

// Validate checks the per-row invariants.
func (r Row) Validate() error {
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	if r.Status.HasFields() != (r.Fields != nil) {
		return fmt.Errorf("%w: status %s, fields present %t", ErrFieldsPresence, r.Status, r.Fields != nil)
	}
	if r.LastError != "" && r.Status != StatusFailed {
		return ErrStrayLastError
	}
	if r.SubmitError != "" && r.Status != StatusAwaitingReview {
		return ErrStraySubmitErr
	}
	return nil
}

// Patch is a partial update. Nil members are left untouched.
type Patch struct {
	Status      *Status
	Fields      *Fields
	ClearFields bool
	LastError   *string
	SubmitError *string
	Attempt     *uint64
}

// Apply merges the patch into a copy of r.
func (p Patch) Apply(r Row) Row {
	out := r.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.ClearFields {
		out.Fields = nil
	}
	if p.Fields != nil {
		f := *p.Fields
		out.Fields = &f
	}
	if p.LastError != nil {
		out.LastError = *p.LastError
	}
	if p.SubmitError != nil {
		out.SubmitError = *p.SubmitError
	}
	if p.Attempt != nil {
		out.Attempt = *p.Attempt
	}
	return out
}

type displayPayload struct {
	Row     int            `json:"row"`
	Details displayDetails `json:"details"`
}

type displayDetails struct {
	Raw string `json:"Raw"`
}

// FromSource builds Pending rows from ingested cells, one row per cell set.
func FromSource(source [][]string) []Row {
	out := make([]Row, 0, len(source))
	for i, cells := range source {
		raw := strings.Join(cells, ", ")
		display, _ := json.MarshalIndent(displayPayload{
			Row:     i + 1,
			Details: displayDetails{Raw: raw},
		}, "", "  ")

		out = append(out, Row{
			ID:           uuid.New(),
			Index:        i,
			RawText:      raw,
			Display:      string(display),
			SourceFields: append([]string(nil), cells...),
			Status:       StatusPending,
		})
	}
	return out
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}
