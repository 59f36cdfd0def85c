package usecase

import (
	"context"
	"encoding/json"

	domrepo "FxRollup/internal/domain/repository"
	pkgkafka "FxRollup/pkg/kafka"
	applogger "FxRollup/pkg/logger"
)

// RefreshCommand asks for a snapshot refresh. The body may be empty.
type RefreshCommand struct {
	RequestedBy string `json:"requested_by"`
}

// KafkaRefreshHandler runs refresh_all for every command on its topic.
type KafkaRefreshHandler struct {
	topic     string
	refresher *SnapshotRefresher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewKafkaRefreshHandler(topic string, refresher *SnapshotRefresher, metrics domrepo.Metrics, l *applogger.Logger) *KafkaRefreshHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaRefreshHandler{topic: topic, refresher: refresher, metrics: metrics, l: l}
}

func (h *KafkaRefreshHandler) Topic() string { return h.topic }

// Handle returns an error only when no refresh could run. Per-resolution
// failures are carried by the published report, so the offset is committed.
func (h *KafkaRefreshHandler) Handle(ctx context.Context, b []byte) error {
	var cmd RefreshCommand
	if len(b) > 0 {
		if err := json.Unmarshal(b, &cmd); err != nil {
			if h.metrics != nil {
				h.metrics.RecordError("consumer_unmarshal")
			}
			return err
		}
	}
	report, err := h.refresher.RefreshAll(ctx)
	if report == nil {
		return err
	}
	if err != nil {
		h.l.Warn("refresh command finished with failures",
			applogger.String("requested_by", cmd.RequestedBy),
			applogger.String("run_id", report.RunID),
			applogger.Strings("failed", report.Failed()))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRefreshHandler)(nil)
