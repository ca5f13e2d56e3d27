package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Service struct {
		Name       string `yaml:"name"`
		HealthPort int    `yaml:"health_port"`
	} `yaml:"service"`

	Eurostat struct {
		BaseURL        string `yaml:"base_url"`
		Dataset        string `yaml:"dataset"`
		Geo            string `yaml:"geo"`
		Coicop         string `yaml:"coicop"`
		Unit           string `yaml:"unit"` // optional filter, retried without on rejection
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxRetries     int    `yaml:"max_retries"`
	} `yaml:"eurostat"`

	Storage struct {
		Backend            string `yaml:"backend"` // "filesystem" or "s3"
		Bucket             string `yaml:"bucket"`  // bucket name, or root dir for filesystem
		AWSAccessKeyID     string `yaml:"aws_access_key_id"`
		AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
		AWSRegion          string `yaml:"aws_region"`
		AWSEndpoint        string `yaml:"aws_endpoint"`
	} `yaml:"storage"`

	Warehouse struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
		Table    string `yaml:"table"`
	} `yaml:"warehouse"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults sets default values for unset fields
func (c *Config) ApplyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "hicp-pipeline"
	}
	if c.Service.HealthPort == 0 {
		c.Service.HealthPort = 8094
	}
	if c.Eurostat.BaseURL == "" {
		c.Eurostat.BaseURL = "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data"
	}
	if c.Eurostat.Dataset == "" {
		c.Eurostat.Dataset = "prc_hicp_midx"
	}
	if c.Eurostat.Geo == "" {
		c.Eurostat.Geo = "LU"
	}
	if c.Eurostat.Coicop == "" {
		c.Eurostat.Coicop = "CP00"
	}
	if c.Eurostat.TimeoutSeconds == 0 {
		c.Eurostat.TimeoutSeconds = 60
	}
	if c.Eurostat.MaxRetries == 0 {
		c.Eurostat.MaxRetries = 5
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "filesystem"
	}
	if c.Warehouse.Port == 0 {
		c.Warehouse.Port = 5432
	}
	if c.Warehouse.SSLMode == "" {
		c.Warehouse.SSLMode = "disable"
	}
	if c.Warehouse.Table == "" {
		c.Warehouse.Table = "fact_hicp"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9094"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Storage.Backend != "filesystem" && c.Storage.Backend != "s3" {
		return fmt.Errorf("storage.backend must be \"filesystem\" or \"s3\", got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" {
		if c.Storage.AWSAccessKeyID == "" {
			return fmt.Errorf("storage.aws_access_key_id is required for s3 backend")
		}
		if c.Storage.AWSSecretAccessKey == "" {
			return fmt.Errorf("storage.aws_secret_access_key is required for s3 backend")
		}
	}
	return nil
}

// FetchTimeout returns the Eurostat request timeout as a Duration
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Eurostat.TimeoutSeconds) * time.Second
}

// WarehouseConnectionString returns a connection string for PostgreSQL
func (c *Config) WarehouseConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Warehouse.Host,
		c.Warehouse.Port,
		c.Warehouse.User,
		c.Warehouse.Password,
		c.Warehouse.Database,
		c.Warehouse.SSLMode,
	)
}

// RawPrefix returns the object prefix for bronze (raw) payload blobs
func (c *Config) RawPrefix() string {
	return fmt.Sprintf("raw/%s/geo=%s/coicop=%s/", c.Eurostat.Dataset, c.Eurostat.Geo, c.Eurostat.Coicop)
}

// ProcessedPrefix returns the object prefix for silver (decoded) snapshots
func (c *Config) ProcessedPrefix() string {
	return fmt.Sprintf("processed/%s/geo=%s/coicop=%s/", c.Eurostat.Dataset, c.Eurostat.Geo, c.Eurostat.Coicop)
}

// QualityPrefix returns the object prefix for quality reports
func (c *Config) QualityPrefix() string {
	return fmt.Sprintf("metadata/quality/%s/geo=%s/coicop=%s/", c.Eurostat.Dataset, c.Eurostat.Geo, c.Eurostat.Coicop)
}
