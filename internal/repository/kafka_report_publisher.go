package repository

import (
	"context"
	"fmt"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
)

// messageProducer is the part of pkg/kafka.Producer the publisher needs.
type messageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
}

// KafkaReportPublisher announces snapshot refresh reports on a topic,
// keyed by run id.
type KafkaReportPublisher struct {
	producer messageProducer
	topic    string
}

func NewKafkaReportPublisher(producer messageProducer, topic string) repository.ReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

type refreshEvent struct {
	*models.RefreshReport
	OK     bool     `json:"ok"`
	Failed []string `json:"failed,omitempty"`
}

func (p *KafkaReportPublisher) PublishRefresh(ctx context.Context, report *models.RefreshReport) error {
	if report == nil || report.Skipped {
		return nil
	}
	failed := report.Failed()
	ev := refreshEvent{RefreshReport: report, OK: len(failed) == 0, Failed: failed}
	if err := p.producer.Publish(ctx, p.topic, []byte(report.RunID), ev); err != nil {
		return fmt.Errorf("publish refresh report %s: %w", report.RunID, err)
	}
	return nil
}
