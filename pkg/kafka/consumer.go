package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	applogger "FxRollup/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset int64
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *applogger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerAutoOffsetReset accepts "earliest" or "latest" for new groups.
func WithConsumerAutoOffsetReset(reset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if reset == "latest" {
			c.StartOffset = kafka.LastOffset
		} else {
			c.StartOffset = kafka.FirstOffset
		}
	}
}

func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) { c.WorkerCount = count }
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

// Consumer reads registered topics into a worker pool. Messages of one
// partition are handled one at a time; offsets are committed after success
// or after the message went to the DLQ.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	ctx      context.Context
	cancel   context.CancelFunc
	msgChan  chan *message
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once

	lockMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "fxrollup",
		StartOffset: kafka.FirstOffset,
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:       cfg,
		l:         cfg.Logger,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		ctx:       ctx,
		cancel:    cancel,
		msgChan:   make(chan *message, max(cfg.BufferSize, 1)),
		partLocks: make(map[string]map[int]*sync.Mutex),
	}
	initConsumerMetrics()
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler registers handler for its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			StartOffset: c.cfg.StartOffset,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.messageWorker()
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.consumeMessages(topic, reader)
	}
	c.l.Info("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop stops readers first, then lets workers drain the queue.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.readWG.Wait()
			close(c.msgChan)
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.l.Warn("close kafka reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
		c.l.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) consumeMessages(topic string, reader *kafka.Reader) {
	defer c.readWG.Done()
	for {
		km, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.l.Warn("kafka fetch", applogger.String("topic", topic), applogger.Error(err))
			continue
		}
		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.workWG.Done()
	for msg := range c.msgChan {
		c.process(msg)
	}
}

func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.l.Error("panic in kafka handler", applogger.String("topic", msg.topic), applogger.Any("panic", r))
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}()

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err, attempts := c.handleWithRetry(handler, msg)
	if err != nil {
		c.hook.OnError(context.Background(), msg.topic, msg.km, msg.km.Value, err)
		c.l.Error("kafka message failed",
			applogger.String("topic", msg.topic),
			applogger.Int("attempts", attempts),
			applogger.Error(err))
		if c.dlq == nil {
			return
		}
		if dlqErr := c.dlq.WriteMessages(context.Background(), kafka.Message{
			Topic:   c.cfg.DLQTopic,
			Key:     msg.km.Key,
			Value:   msg.km.Value,
			Time:    time.Now(),
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
		}); dlqErr != nil {
			c.l.Error("kafka dlq write", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(dlqErr))
			return
		}
	}
	if reader := c.readers[msg.topic]; reader != nil {
		_ = c.commitWithRetry(reader, msg.km, 3)
	}
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg *message) (error, int) {
	var err error
	attempts := 0
	for {
		attempts++
		ctx, km, data, berr := c.hook.BeforeHandle(c.ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			return berr, attempts
		}
		err = handler.Handle(ctx, data)
		c.hook.AfterHandle(ctx, msg.topic, km, data, err)
		if err == nil || attempts > c.cfg.RetryMax {
			return err, attempts
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.ctx.Done():
			return err, attempts
		}
	}
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka commit", applogger.String("topic", km.Topic), applogger.Int64("offset", km.Offset), applogger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

// backoffWithJitter doubles from min per attempt, capped at max, minus up to
// half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerMetricsOnce   sync.Once
	consumerRegisterer    prometheus.Registerer = prometheus.DefaultRegisterer
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

// SetMetricsRegisterer overrides where consumer and producer metrics are
// registered. Call before the first NewConsumer/NewProducer.
func SetMetricsRegisterer(reg prometheus.Registerer) { consumerRegisterer = reg }

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "fxrollup_kafka_consumer_queue_depth", Help: "Messages waiting for a worker"},
			[]string{"topic"},
		)
		consumerHandleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "fxrollup_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
		consumerRegisterer.MustRegister(consumerQueueDepth, consumerHandleLatency)
	})
}
