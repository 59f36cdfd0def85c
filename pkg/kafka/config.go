package kafka

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds the producer settings the service exposes; the
// writer's batching and retry knobs are fixed in NewProducer.
type ProducerConfig struct {
	Brokers     []string
	Compression string
	HashByKey   bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithHashByKey keeps messages with one key on one partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}
