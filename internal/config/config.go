package config

import "time"

// Config — конфигурация всех процессов menustats.
type Config struct {
	Broker    BrokerConfig    `mapstructure:"broker"`
	Results   ResultsConfig   `mapstructure:"results"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	API       APIConfig       `mapstructure:"api"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// BrokerConfig — RabbitMQ.
type BrokerConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// ResultsConfig — Result Store (Redis).
type ResultsConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Expires time.Duration `mapstructure:"expires" validate:"gt=0"`
}

// DatabaseConfig — хранилище меню: postgres://... или sqlite://path.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" validate:"required"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// WorkerConfig — Worker Pool и политика retry.
type WorkerConfig struct {
	Concurrency              int `mapstructure:"concurrency" validate:"gte=1"`
	Prefetch                 int `mapstructure:"prefetch" validate:"gte=1"`
	MaxRetries               int `mapstructure:"max_retries" validate:"gte=0"`
	MaxRedeliveries          int `mapstructure:"max_redeliveries" validate:"gte=0"`
	SoftTimeLimitSeconds     int `mapstructure:"soft_time_limit_seconds" validate:"gt=0,ltefield=HardTimeLimitSeconds"`
	HardTimeLimitSeconds     int `mapstructure:"hard_time_limit_seconds" validate:"gt=0"`
	BackoffBaseSeconds       int `mapstructure:"backoff_base_seconds" validate:"gt=0"`
	BackoffMaxSeconds        int `mapstructure:"backoff_max_seconds" validate:"gtefield=BackoffBaseSeconds"`
	VisibilityTimeoutSeconds int `mapstructure:"visibility_timeout_seconds" validate:"gtefield=HardTimeLimitSeconds"`
	MetricsPort              int `mapstructure:"metrics_port" validate:"gt=0,lt=65536"`
}

// SoftTimeLimit возвращает soft time limit.
func (c WorkerConfig) SoftTimeLimit() time.Duration {
	return time.Duration(c.SoftTimeLimitSeconds) * time.Second
}

// HardTimeLimit возвращает hard time limit.
func (c WorkerConfig) HardTimeLimit() time.Duration {
	return time.Duration(c.HardTimeLimitSeconds) * time.Second
}

// BackoffBase возвращает базовую задержку retry.
func (c WorkerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffMax возвращает максимальную задержку retry.
func (c WorkerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds) * time.Second
}

// VisibilityTimeout возвращает время, через которое брокер вернёт
// неподтверждённое сообщение в очередь.
func (c WorkerConfig) VisibilityTimeout() time.Duration {
	return time.Duration(c.VisibilityTimeoutSeconds) * time.Second
}

// APIConfig — HTTP API.
type APIConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
}

// SchedulerConfig — периодический пересчёт.
type SchedulerConfig struct {
	Port     int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	Cron     string `mapstructure:"cron" validate:"required"`
	Timezone string `mapstructure:"timezone" validate:"required"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}
