package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AWSConfig holds the account-level settings shared by all AWS clients.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// QueryConfig describes which flow logs to query and how to wait for results.
type QueryConfig struct {
	LogGroup     string `yaml:"log_group"`
	InterfaceID  string `yaml:"interface_id"`
	Lookback     string `yaml:"lookback"`
	Limit        int    `yaml:"limit"`
	PollInterval string `yaml:"poll_interval"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

// PrefixConfig controls where the published AWS ranges come from and how they are filtered.
type PrefixConfig struct {
	URL            string `yaml:"url"`
	Region         string `yaml:"region"`
	ExcludeService string `yaml:"exclude_service"`
}

// ClassifierConfig holds the internal network definition.
type ClassifierConfig struct {
	InternalCIDR string `yaml:"internal_cidr"`
}

// OutputConfig names the intermediate and final files of a pipeline run.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	PrefixTable  string `yaml:"prefix_table"`
	TrafficTable string `yaml:"traffic_table"`
	TaggedTable  string `yaml:"tagged_table"`
	GraphName    string `yaml:"graph_name"`
	GraphFormat  string `yaml:"graph_format"`
}

// GeoConfig points at an optional GeoLite2 country database.
type GeoConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// InstancesConfig selects the EC2 instances managed by the toggler.
type InstancesConfig struct {
	NamePattern string `yaml:"name_pattern"`
}

// ClickHouseConfig holds the connection details for the ClickHouse sink.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// NATSConfig holds the connection details for the NATS sink.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SinkDef defines a single tagged-flow sink from the config file.
type SinkDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
}

// APIConfig holds the settings for the read API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	AWS        AWSConfig        `yaml:"aws"`
	Query      QueryConfig      `yaml:"query"`
	Prefixes   PrefixConfig     `yaml:"prefixes"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Output     OutputConfig     `yaml:"output"`
	Geo        GeoConfig        `yaml:"geo"`
	Instances  InstancesConfig  `yaml:"instances"`
	Sinks      []SinkDef        `yaml:"sinks"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.finalize()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Environment overrides are applied after the file, so a .env file or the
// process environment always wins.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	cfg.finalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads filePath when it exists and falls back to defaults plus
// environment overrides otherwise.
func LoadOrDefault(filePath string) (*Config, error) {
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		}
	}
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	cfg.finalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file '%s': %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.Query.LogGroup == "" {
		c.Query.LogGroup = "sampleapp-VPC-FlowLogs"
	}
	if c.Query.Lookback == "" {
		c.Query.Lookback = "1h"
	}
	if c.Query.Limit == 0 {
		c.Query.Limit = 50
	}
	if c.Query.PollInterval == "" {
		c.Query.PollInterval = "2s"
	}
	if c.Query.MaxAttempts == 0 {
		c.Query.MaxAttempts = 150
	}
	if c.Prefixes.URL == "" {
		c.Prefixes.URL = "https://ip-ranges.amazonaws.com/ip-ranges.json"
	}
	if c.Prefixes.ExcludeService == "" {
		c.Prefixes.ExcludeService = "AMAZON"
	}
	if c.Classifier.InternalCIDR == "" {
		c.Classifier.InternalCIDR = "10.0.0.0/16"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.PrefixTable == "" {
		c.Output.PrefixTable = "filtered_aws_ips.csv"
	}
	if c.Output.TrafficTable == "" {
		c.Output.TrafficTable = "traffic_table.csv"
	}
	if c.Output.TaggedTable == "" {
		c.Output.TaggedTable = "traffic_tagged.csv"
	}
	if c.Output.GraphName == "" {
		c.Output.GraphName = "network_traffic"
	}
	if c.Output.GraphFormat == "" {
		c.Output.GraphFormat = "png"
	}
	if c.Instances.NamePattern == "" {
		c.Instances.NamePattern = "*sampleapp-load-generator*"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if s.ClickHouse.Port == 0 {
			s.ClickHouse.Port = 9000
		}
		if s.ClickHouse.Database == "" {
			s.ClickHouse.Database = "default"
		}
		if s.ClickHouse.Table == "" {
			s.ClickHouse.Table = "vpc_flow_tagged"
		}
		if s.NATS.Subject == "" {
			s.NATS.Subject = "flowspectra.flows.tagged"
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("FLOWSPECTRA_LOG_GROUP"); v != "" {
		c.Query.LogGroup = v
	}
	if v := os.Getenv("FLOWSPECTRA_INTERFACE_ID"); v != "" {
		c.Query.InterfaceID = v
	}
	if v := os.Getenv("FLOWSPECTRA_INTERNAL_CIDR"); v != "" {
		c.Classifier.InternalCIDR = v
	}
	if v := os.Getenv("FLOWSPECTRA_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("FLOWSPECTRA_NAME_PATTERN"); v != "" {
		c.Instances.NamePattern = v
	}
}

// finalize fills values derived from other settings once env overrides are in.
func (c *Config) finalize() {
	if c.Prefixes.Region == "" {
		c.Prefixes.Region = c.AWS.Region
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := netip.ParsePrefix(c.Classifier.InternalCIDR); err != nil {
		return fmt.Errorf("invalid internal_cidr '%s': %w", c.Classifier.InternalCIDR, err)
	}
	if c.Query.Limit < 0 {
		return fmt.Errorf("query limit must not be negative, got %d", c.Query.Limit)
	}
	if c.Query.MaxAttempts < 0 {
		return fmt.Errorf("query max_attempts must not be negative, got %d", c.Query.MaxAttempts)
	}
	if _, err := c.LookbackDuration(); err != nil {
		return err
	}
	if _, err := c.PollIntervalDuration(); err != nil {
		return err
	}
	return nil
}

// LookbackDuration returns the query window length.
func (c *Config) LookbackDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Query.Lookback)
	if err != nil {
		return 0, fmt.Errorf("invalid lookback for query: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("query lookback must be a positive duration")
	}
	return d, nil
}

// PollIntervalDuration returns the delay between query status polls.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Query.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval for query: %w", err)
	}
	return d, nil
}

// Path joins name onto the output directory.
func (o OutputConfig) Path(name string) string {
	return filepath.Join(o.Dir, name)
}
