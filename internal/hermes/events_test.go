package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	subject string
	data    any
}

type fakePublisher struct {
	msgs    []published
	err     error
	flushed int
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.msgs = append(f.msgs, published{subject, data})
	return f.err
}

func (f *fakePublisher) Flush(ctx context.Context) error {
	f.flushed++
	return nil
}

func TestNewStatusEvent(t *testing.T) {
	prev := rows.Row{ID: uuid.New(), Index: 2, Status: rows.StatusEnriching, Attempt: 1}
	next := prev
	next.Status = rows.StatusFailed
	next.LastError = "timeout"

	evt, ok := NewStatusEvent(prev, next)
	if !ok {
		t.Fatal("expected an event for a status change")
	}
	if evt.From != rows.StatusEnriching || evt.To != rows.StatusFailed || evt.Error != "timeout" || evt.Index != 2 {
		t.Errorf("unexpected event %+v", evt)
	}

	if _, ok := NewStatusEvent(next, next); ok {
		t.Error("expected no event when status is unchanged")
	}
}

func TestStatusEventJSON(t *testing.T) {
	evt := StatusEvent{RowID: uuid.New(), From: rows.StatusPending, To: rows.StatusEnriching, Attempt: 1}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["from"] != "pending" || m["to"] != "enriching" {
		t.Errorf("unexpected payload %s", data)
	}
	if _, ok := m["error"]; ok {
		t.Errorf("expected error omitted, got %s", data)
	}
}

func TestStatusListener(t *testing.T) {
	pub := &fakePublisher{}
	listen := StatusListener(pub, discardLogger())

	r := rows.Row{ID: uuid.New(), Status: rows.StatusPending}
	next := r
	next.Status = rows.StatusEnriching
	listen(r, next)
	listen(next, next)

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	if pub.msgs[0].subject != SubjectRowStatus {
		t.Errorf("expected subject %s, got %s", SubjectRowStatus, pub.msgs[0].subject)
	}
}

func TestSubmissionSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := SubmissionSink{Pub: pub}
	sub := submit.Submission{RowID: uuid.New(), Fields: rows.Fields{Make: "Honda"}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.Submit(ctx, sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].subject != SubjectRowSubmitted {
		t.Fatalf("unexpected messages %+v", pub.msgs)
	}
	if pub.flushed != 1 {
		t.Errorf("expected flush with a deadline, got %d", pub.flushed)
	}

	if err := sink.Submit(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	if pub.flushed != 1 {
		t.Errorf("expected no flush without a deadline, got %d", pub.flushed)
	}

	pub.err = errors.New("connection closed")
	if err := sink.Submit(ctx, sub); err == nil {
		t.Error("expected publish error")
	}
}

type fakeSetter struct {
	got string
	err error
}

func (f *fakeSetter) SetInstruction(text string) error {
	if f.err != nil {
		return f.err
	}
	f.got = text
	return nil
}

func TestHandleInstructionUpdate(t *testing.T) {
	target := &fakeSetter{}
	handle := HandleInstructionUpdate(target, discardLogger())

	handle(SubjectInstructionSet, []byte(`{"instruction":"Extract trucks only"}`))
	if target.got != "Extract trucks only" {
		t.Errorf("expected instruction applied, got %q", target.got)
	}

	handle(SubjectInstructionSet, []byte(`not json`))
	if target.got != "Extract trucks only" {
		t.Errorf("malformed payload must be ignored, got %q", target.got)
	}

	target.err = errors.New("blank")
	handle(SubjectInstructionSet, []byte(`{"instruction":""}`))
	if target.got != "Extract trucks only" {
		t.Errorf("rejected update must be ignored, got %q", target.got)
	}
}

func TestGuard_RecoversHandlerPanic(t *testing.T) {
	var calls int
	h := guard(func(subject string, data []byte) {
		calls++
		if string(data) == "bad" {
			panic("boom")
		}
	}, discardLogger())

	h(SubjectInstructionSet, []byte("bad"))
	h(SubjectInstructionSet, []byte(`{"instruction":"x"}`))

	if calls != 2 {
		t.Errorf("expected 2 deliveries, got %d", calls)
	}
}
