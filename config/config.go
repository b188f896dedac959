package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	DropSync DropSyncConfig `yaml:"dropsync"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DropSyncConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Провайдер трекинга.
	ProviderBaseURL  string `yaml:"provider_base_url"`
	ProviderAPIKey   string `yaml:"provider_api_key"`
	ProviderMode     string `yaml:"provider_mode"` // "live" | "fake"
	BatchDelayMillis int    `yaml:"batch_delay_millis"`

	DashboardTTLSeconds int    `yaml:"dashboard_ttl_seconds"`
	CredentialVaultKey  string `yaml:"credential_vault_key"` // hex, 32 байта

	// Потолок живых вызовов к API одного поставщика в минуту.
	SupplierRateLimitPerMinute int `yaml:"supplier_rate_limit_per_minute"`

	// Плановый воркер.
	WorkerHTTPAddr             string `yaml:"worker_http_addr"`
	WorkerSweepIntervalSeconds int    `yaml:"worker_sweep_interval_seconds"`
	WorkerConcurrency          int    `yaml:"worker_concurrency"`
	WorkerUserPageSize         int    `yaml:"worker_user_page_size"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
