package config

import (
	"classguard/pkg/client"
	kafka_config "classguard/pkg/kafka/config"
	"classguard/pkg/logger"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var timeOfDayRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

type Config struct {
	ServiceName string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port      string
	LogLevel  string
	LogFormat string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SchedulerMode     string
	SchedulerTimeZone string
	Location          *time.Location

	CancellationInterval    time.Duration
	CancellationTimes       []string
	CancellationBufferHours int
	CancellationTxTimeout   time.Duration
	WarningInterval         time.Duration
	WarningTimes            []string
	SweepTimeout            time.Duration

	NotificationTransport   string
	NotificationMaxAttempts int
	NotificationBaseDelay   time.Duration
	NotificationConcurrency int
	NotificationBudget      time.Duration
	NotificationTopic       string
	NotificationDLQTopic    string
	NotificationExchange    string
	RabbitMQURL             string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JobLockTTL    time.Duration

	Kafka  *kafka_config.Config
	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: serviceName,

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port:      getEnvStr(EnvPort, DefaultPort),
		LogLevel:  getEnvStr(EnvLogLevel, DefaultLogLevel),
		LogFormat: getEnvStr(EnvLogFormat, DefaultLogFormat),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SchedulerMode:     strings.ToLower(getEnvStr(EnvSchedulerMode, DefaultSchedulerMode)),
		SchedulerTimeZone: getEnvStr(EnvSchedulerTimeZone, DefaultSchedulerTimeZone),

		CancellationInterval:    getEnvDuration(EnvCancellationInterval, DefaultCancellationInterval),
		CancellationTimes:       getEnvList(EnvCancellationTimes, DefaultCancellationTimes),
		CancellationBufferHours: getEnvNum(EnvCancellationBufferHours, DefaultCancellationBufferHours),
		CancellationTxTimeout:   getEnvDuration(EnvCancellationTxTimeout, DefaultCancellationTxTimeout),
		WarningInterval:         getEnvDuration(EnvWarningInterval, DefaultWarningInterval),
		WarningTimes:            getEnvList(EnvWarningTimes, DefaultWarningTimes),
		SweepTimeout:            getEnvDuration(EnvSweepTimeout, DefaultSweepTimeout),

		NotificationTransport:   strings.ToLower(getEnvStr(EnvNotificationTransport, DefaultNotificationTransport)),
		NotificationMaxAttempts: getEnvNum(EnvNotificationMaxAttempts, DefaultNotificationMaxAttempts),
		NotificationBaseDelay:   getEnvDuration(EnvNotificationBaseDelay, DefaultNotificationBaseDelay),
		NotificationConcurrency: getEnvNum(EnvNotificationConcurrency, DefaultNotificationConcurrency),
		NotificationBudget:      getEnvDuration(EnvNotificationBudget, DefaultNotificationBudget),
		NotificationTopic:       getEnvStr(EnvNotificationTopic, DefaultNotificationTopic),
		NotificationDLQTopic:    getEnvStr(EnvNotificationDLQTopic, DefaultNotificationDLQTopic),
		NotificationExchange:    getEnvStr(EnvNotificationExchange, DefaultNotificationExchange),
		RabbitMQURL:             getEnvStr(EnvRabbitMQURL, DefaultRabbitMQURL),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),
		JobLockTTL:    getEnvDuration(EnvJobLockTTL, DefaultJobLockTTL),

		Client: client.NewClient(),
	}

	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: true,
		Service:   serviceName,
	})

	if loc, err := ParseLocation(cfg.SchedulerTimeZone); err == nil {
		cfg.Location = loc
	}

	if cfg.NotificationTransport == TransportKafka {
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		cfg.Kafka = kafkaCfg
		cfg.Kafka.LogConfiguration(cfg.Log.Info)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// SetRedis connects the optional Redis client used for cross-replica job locks.
// It is a no-op when REDIS_ADDR is unset.
func (cfg *Config) SetRedis() {
	if cfg.RedisAddr == "" {
		return
	}
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) CancellationBuffer() time.Duration {
	return time.Duration(cfg.CancellationBufferHours) * time.Hour
}

// CancellationReach is how far past the midnight that ends tomorrow a
// cancellation window extends. It covers the buffer plus the longest gap
// between the last sweep of a day and the first sweep of the next, so
// consecutive windows leave no class start uncovered.
func (cfg *Config) CancellationReach() time.Duration {
	reach := cfg.CancellationBuffer()
	if cfg.SchedulerMode == ModeInterval {
		return reach + cfg.CancellationInterval
	}
	return reach + earliestTimeOfDay(cfg.CancellationTimes)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.SchedulerMode != ModeInterval && cfg.SchedulerMode != ModeDaily {
		errors = append(errors, fmt.Sprintf("SchedulerMode must be '%s' or '%s', got: %s", ModeInterval, ModeDaily, cfg.SchedulerMode))
	}
	if _, err := ParseLocation(cfg.SchedulerTimeZone); err != nil {
		errors = append(errors, fmt.Sprintf("SchedulerTimeZone is invalid: %v", err))
	}

	if cfg.SchedulerMode == ModeInterval {
		if cfg.CancellationInterval < time.Second {
			errors = append(errors, fmt.Sprintf("CancellationInterval must be at least 1s, got: %s", cfg.CancellationInterval))
		}
		if cfg.WarningInterval < time.Second {
			errors = append(errors, fmt.Sprintf("WarningInterval must be at least 1s, got: %s", cfg.WarningInterval))
		}
	}
	if cfg.SchedulerMode == ModeDaily {
		errors = append(errors, validateTimesOfDay("CancellationTimes", cfg.CancellationTimes)...)
		errors = append(errors, validateTimesOfDay("WarningTimes", cfg.WarningTimes)...)
	}

	if cfg.CancellationBufferHours < 1 || cfg.CancellationBufferHours > 23 {
		errors = append(errors, fmt.Sprintf("CancellationBufferHours must be between 1 and 23, got: %d", cfg.CancellationBufferHours))
	}
	if cfg.CancellationTxTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("CancellationTxTimeout must be positive, got: %s", cfg.CancellationTxTimeout))
	}
	if cfg.SweepTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("SweepTimeout must be positive, got: %s", cfg.SweepTimeout))
	}

	switch cfg.NotificationTransport {
	case TransportKafka, TransportLog:
	case TransportRabbitMQ:
		if !strings.HasPrefix(cfg.RabbitMQURL, "amqp://") && !strings.HasPrefix(cfg.RabbitMQURL, "amqps://") {
			errors = append(errors, "RabbitMQURL must start with 'amqp://' or 'amqps://'")
		}
	default:
		errors = append(errors, fmt.Sprintf("NotificationTransport must be one of [%s, %s, %s], got: %s", TransportKafka, TransportRabbitMQ, TransportLog, cfg.NotificationTransport))
	}
	if cfg.NotificationMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("NotificationMaxAttempts must be at least 1, got: %d", cfg.NotificationMaxAttempts))
	}
	if cfg.NotificationBaseDelay < 0 {
		errors = append(errors, fmt.Sprintf("NotificationBaseDelay cannot be negative, got: %s", cfg.NotificationBaseDelay))
	}
	if cfg.NotificationConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("NotificationConcurrency must be at least 1, got: %d", cfg.NotificationConcurrency))
	}
	if cfg.NotificationBudget <= 0 {
		errors = append(errors, fmt.Sprintf("NotificationBudget must be positive, got: %s", cfg.NotificationBudget))
	}
	if cfg.NotificationTopic == "" {
		errors = append(errors, "NotificationTopic cannot be empty")
	}

	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if cfg.JobLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("JobLockTTL must be positive, got: %s", cfg.JobLockTTL))
	} else if cfg.JobLockTTL <= cfg.SweepTimeout {
		errors = append(errors, fmt.Sprintf("JobLockTTL must exceed SweepTimeout (%s), got: %s", cfg.SweepTimeout, cfg.JobLockTTL))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"scheduler_mode", cfg.SchedulerMode,
		"scheduler_timezone", cfg.SchedulerTimeZone,
		"cancellation_interval", cfg.CancellationInterval,
		"cancellation_times", cfg.CancellationTimes,
		"cancellation_buffer_hours", cfg.CancellationBufferHours,
		"cancellation_tx_timeout", cfg.CancellationTxTimeout,
		"warning_interval", cfg.WarningInterval,
		"warning_times", cfg.WarningTimes,
		"sweep_timeout", cfg.SweepTimeout,
		"notification_transport", cfg.NotificationTransport,
		"notification_max_attempts", cfg.NotificationMaxAttempts,
		"notification_base_delay", cfg.NotificationBaseDelay,
		"notification_concurrency", cfg.NotificationConcurrency,
		"notification_budget", cfg.NotificationBudget,
		"notification_topic", cfg.NotificationTopic,
		"rabbitmq_url", redactURI(cfg.RabbitMQURL),
		"redis_enabled", cfg.RedisAddr != "",
		"job_lock_ttl", cfg.JobLockTTL,
	)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

func validateTimesOfDay(field string, times []string) []string {
	if len(times) == 0 {
		return []string{fmt.Sprintf("%s must list at least one HH:MM time", field)}
	}
	var errors []string
	for _, t := range times {
		if !timeOfDayRegex.MatchString(t) {
			errors = append(errors, fmt.Sprintf("%s entries must be in HH:MM format (00:00-23:59), got: %s", field, t))
		}
	}
	return errors
}

// earliestTimeOfDay returns the offset from midnight of the earliest valid
// HH:MM entry, or zero when there is none.
func earliestTimeOfDay(times []string) time.Duration {
	earliest := time.Duration(-1)
	for _, t := range times {
		parsed, err := time.Parse("15:04", t)
		if err != nil {
			continue
		}
		offset := time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute
		if earliest < 0 || offset < earliest {
			earliest = offset
		}
	}
	if earliest < 0 {
		return 0
	}
	return earliest
}

// redactURI hides credentials in mongodb:// and amqp:// style URIs.
func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`^([a-z+]+://)[^:/@]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnvStr(key, fallback)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
