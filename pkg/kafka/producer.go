package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// Producer wraps a kafka-go writer.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{Compression: "gzip"}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	// Reports are published one at a time; a short batch timeout keeps
	// WriteMessages from idling on a batch that never fills.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequireAll,
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 10 * time.Millisecond,
	}
	initProducerMetrics()
	return &Producer{writer: writer, comp: cfg.Compression}, nil
}

// Publish sends one message. Values other than []byte and string are
// JSON-encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := start.UTC()
	msgs := make([]kafka.Message, 0, len(messages))
	var total int64
	for _, m := range messages {
		v, err := encode(m.Value)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now})
		total += int64(len(v))
	}
	err := p.writer.WriteMessages(ctx, msgs...)
	observeProducer(topic, p.comp, total, len(msgs), time.Since(start), err)
	return err
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// Message is one record for PublishBatch.
type Message struct {
	Key   []byte
	Value any
}

func encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMetricsOnce sync.Once
	producerMsgs        *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func initProducerMetrics() {
	producerMetricsOnce.Do(func() {
		producerMsgs = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fxrollup_kafka_producer_messages_total", Help: "Messages published to Kafka"},
			[]string{"topic", "compression", "result"},
		)
		producerBytes = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fxrollup_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic"},
		)
		producerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "fxrollup_kafka_producer_publish_seconds", Help: "Publish latency"},
			[]string{"topic"},
		)
		consumerRegisterer.MustRegister(producerMsgs, producerBytes, producerLatency)
	})
}

func observeProducer(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	if producerMsgs == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgs.WithLabelValues(topic, comp, result).Add(float64(count))
	producerBytes.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
