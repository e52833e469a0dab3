//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/rows"
	"github.com/MikeSquared-Agency/curator/internal/submit"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan submit.Submission, 1)

	err = client.Subscribe(SubjectRowSubmitted, func(subject string, data []byte) {
		var msg submit.Submission
		json.Unmarshal(data, &msg)
		received <- msg
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	sub := submit.Submission{RowID: uuid.New(), Fields: rows.Fields{Make: "Honda", Model: "Civic"}}
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := (SubmissionSink{Pub: client}).Submit(flushCtx, sub); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.RowID != sub.RowID || msg.Fields.Make != "Honda" {
			t.Errorf("unexpected submission %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
