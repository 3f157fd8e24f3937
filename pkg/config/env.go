package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSchedulerMode     = "SCHEDULER_MODE"
	EnvSchedulerTimeZone = "SCHEDULER_TIMEZONE"

	EnvCancellationInterval    = "CANCELLATION_INTERVAL"
	EnvCancellationTimes       = "CANCELLATION_TIMES"
	EnvCancellationBufferHours = "CANCELLATION_BUFFER_HOURS"
	EnvCancellationTxTimeout   = "CANCELLATION_TX_TIMEOUT"
	EnvWarningInterval         = "WARNING_INTERVAL"
	EnvWarningTimes            = "WARNING_TIMES"
	EnvSweepTimeout            = "SWEEP_TIMEOUT"

	EnvNotificationTransport   = "NOTIFICATION_TRANSPORT"
	EnvNotificationMaxAttempts = "NOTIFICATION_MAX_ATTEMPTS"
	EnvNotificationBaseDelay   = "NOTIFICATION_BASE_DELAY"
	EnvNotificationConcurrency = "NOTIFICATION_CONCURRENCY"
	EnvNotificationBudget      = "NOTIFICATION_BUDGET"
	EnvNotificationTopic       = "NOTIFICATION_TOPIC"
	EnvNotificationDLQTopic    = "NOTIFICATION_DLQ_TOPIC"
	EnvNotificationExchange    = "NOTIFICATION_EXCHANGE"
	EnvRabbitMQURL             = "RABBITMQ_URL"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvJobLockTTL    = "JOB_LOCK_TTL"
)
