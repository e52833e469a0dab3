package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

const (
	SubjectRowStatus      = "curator.row.status"
	SubjectRowSubmitted   = "curator.row.submitted"
	SubjectInstructionSet = "curator.instruction.set"
)

// Publisher is the subset of Client used by the adapters below.
type Publisher interface {
	Publish(subject string, data any) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

// StatusEvent is published whenever a row changes status.
type StatusEvent struct {
	RowID   uuid.UUID   `json:"row_id"`
	Index   int         `json:"index"`
	From    rows.Status `json:"from"`
	To      rows.Status `json:"to"`
	Attempt uint64      `json:"attempt"`
	Error   string      `json:"error,omitempty"`
}

// NewStatusEvent reports false when prev and next share a status.
func NewStatusEvent(prev, next rows.Row) (StatusEvent, bool) {
	if prev.Status == next.Status {
		return StatusEvent{}, false
	}
	evt := StatusEvent{
		RowID:   next.ID,
		Index:   next.Index,
		From:    prev.Status,
		To:      next.Status,
		Attempt: next.Attempt,
	}
	switch next.Status {
	case rows.StatusFailed:
		evt.Error = next.LastError
	case rows.StatusAwaitingReview:
		evt.Error = next.SubmitError
	}
	return evt, true
}

// StatusListener returns a rowstore listener that publishes status changes.
func StatusListener(pub Publisher, logger *slog.Logger) func(prev, next rows.Row) {
	return func(prev, next rows.Row) {
		evt, ok := NewStatusEvent(prev, next)
		if !ok {
			return
		}
		if err := pub.Publish(SubjectRowStatus, evt); err != nil {
			logger.Error("failed to publish row status", "row_id", evt.RowID, "error", err)
		}
	}
}

// SubmissionSink publishes submissions to NATS.
type SubmissionSink struct {
	Pub Publisher
}

func (s SubmissionSink) Submit(ctx context.Context, sub submit.Submission) error {
	if err := s.Pub.Publish(SubjectRowSubmitted, sub); err != nil {
		return fmt.Errorf("publish submission: %w", err)
	}
	if f, ok := s.Pub.(flusher); ok {
		if _, hasDeadline := ctx.Deadline(); hasDeadline {
			if err := f.Flush(ctx); err != nil {
				return fmt.Errorf("flush submission: %w", err)
			}
		}
	}
	return nil
}

// InstructionUpdate is the payload on SubjectInstructionSet.
type InstructionUpdate struct {
	Instruction string `json:"instruction"`
}

type InstructionSetter interface {
	SetInstruction(text string) error
}

// HandleInstructionUpdate returns a subscription handler that applies remote
// instruction changes.
func HandleInstructionUpdate(target InstructionSetter, logger *slog.Logger) Handler {
	return func(subject string, data []byte) {
		var upd InstructionUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			logger.Warn("failed to parse instruction update", "subject", subject, "error", err)
			return
		}
		if err := target.SetInstruction(upd.Instruction); err != nil {
			logger.Warn("rejected instruction update", "subject", subject, "error", err)
			return
		}
		logger.Info("instruction updated", "subject", subject, "length", len(upd.Instruction))
	}
}
