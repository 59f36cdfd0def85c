package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"FxRollup/internal/domain/models"
)

type capturedMessage struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	sent []capturedMessage
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value any) error {
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.sent = append(p.sent, capturedMessage{topic: topic, key: string(key), value: b})
	return nil
}

func TestKafkaReportPublisherPublishesFailures(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaReportPublisher(prod, "fx.snapshot.reports")

	report := &models.RefreshReport{
		RunID: "run-1",
		Results: []models.SnapshotResult{
			models.NewSnapshotResult("5m", nil),
			models.NewSnapshotResult("15m", errors.New("exchange failed")),
		},
	}
	if err := pub.PublishRefresh(context.Background(), report); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(prod.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(prod.sent))
	}
	msg := prod.sent[0]
	if msg.topic != "fx.snapshot.reports" || msg.key != "run-1" {
		t.Fatalf("topic/key = %s/%s", msg.topic, msg.key)
	}
	var got struct {
		RunID  string   `json:"run_id"`
		OK     bool     `json:"ok"`
		Failed []string `json:"failed"`
	}
	if err := json.Unmarshal(msg.value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.OK || len(got.Failed) != 1 || got.Failed[0] != "15m" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestKafkaReportPublisherSkipsSkippedRuns(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaReportPublisher(prod, "t")
	if err := pub.PublishRefresh(context.Background(), &models.RefreshReport{RunID: "r", Skipped: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.PublishRefresh(context.Background(), nil); err != nil {
		t.Fatalf("publish nil: %v", err)
	}
	if len(prod.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(prod.sent))
	}
}

func TestKafkaReportPublisherWrapsError(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafkaReportPublisher(&fakeProducer{err: boom}, "t")
	err := pub.PublishRefresh(context.Background(), &models.RefreshReport{RunID: "r"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
}
