package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	pkgkafka "FxRollup/pkg/kafka"
)

// KafkaBarsHandler appends one-minute bars published by an upstream loader.
type KafkaBarsHandler struct {
	topic   string
	bars    domrepo.BarStore
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, bars domrepo.BarStore, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, bars: bars, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, o, h, l, c, v, src}; t in unix seconds or ms
type barMessage struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	O      float64 `json:"o"`
	H      float64 `json:"h"`
	L      float64 `json:"l"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
	Src    string  `json:"src"`
}

func (m barMessage) bar() (models.Bar, error) {
	if m.Symbol == "" || m.T <= 0 {
		return models.Bar{}, fmt.Errorf("bar message missing symbol or t")
	}
	ts := time.Unix(m.T, 0)
	if m.T > 1e11 { // ms
		ts = time.UnixMilli(m.T)
	}
	if m.H < m.L {
		return models.Bar{}, fmt.Errorf("bar %s %d: high below low", m.Symbol, m.T)
	}
	return models.Bar{
		Symbol: m.Symbol, Timestamp: ts.UTC().Truncate(time.Minute),
		Open: m.O, High: m.H, Low: m.L, Close: m.C, Volume: m.V, Source: m.Src,
	}, nil
}

// Handle accepts a single bar object or an array of them.
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var msgs []barMessage
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &msgs); err != nil {
			h.recordError("consumer_unmarshal")
			return err
		}
	} else {
		var m barMessage
		if err := json.Unmarshal(b, &m); err != nil {
			h.recordError("consumer_unmarshal")
			return err
		}
		msgs = []barMessage{m}
	}

	bars := make([]models.Bar, 0, len(msgs))
	for _, m := range msgs {
		bar, err := m.bar()
		if err != nil {
			h.recordError("consumer_invalid_bar")
			return err
		}
		bars = append(bars, bar)
	}

	start := time.Now()
	err := h.bars.Append(ctx, bars)
	if h.metrics != nil {
		h.metrics.RecordLatency("bar_append", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("consumer_store")
		return err
	}
	return nil
}

func (h *KafkaBarsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
