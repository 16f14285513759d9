package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	PassportAPI PassportAPIConfig `yaml:"passport_api"`
	ScanStation ScanStationConfig `yaml:"scan_station"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString собирает DSN для pgx; ssl_mode по умолчанию disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                          string `yaml:"host"`
	Port                          int    `yaml:"port"`
	PassportTransitionedTopicName string `yaml:"passport_transitioned_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type PassportAPIConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`
	TokenSecret             string `yaml:"token_secret"`
	TransitionsPerMinute    int    `yaml:"transitions_per_minute"`
	MaxBulkSize             int    `yaml:"max_bulk_size"`
}

type ScanStationConfig struct {
	HTTPAddr              string `yaml:"http_addr"`
	APIBaseURL            string `yaml:"api_base_url"`
	ActionToken           string `yaml:"action_token"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`

	// SnapshotBackend: "file" | "redis" | "memory"
	SnapshotBackend string `yaml:"snapshot_backend"`
	SnapshotPath    string `yaml:"snapshot_path"`
	SnapshotKey     string `yaml:"snapshot_key"`

	Muted bool `yaml:"muted"`
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
