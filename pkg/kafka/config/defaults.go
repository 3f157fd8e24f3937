package kafka_config

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"

	// The notification dispatcher owns retries, so the writer tries once.
	DefaultProducerMaxAttempts  = 1
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerWriteTimeout = 10 * time.Second
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "snappy"

	DefaultEnableMiddleware = true
)
