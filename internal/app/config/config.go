package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/AegisWatt/internal/adapters/iotlab"
	"github.com/ghalamif/AegisWatt/internal/adapters/mqttbridge"
	"github.com/ghalamif/AegisWatt/internal/adapters/oml"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// Environment variables read after the optional env file is loaded.
const (
	EnvUser         = "IOTLAB_USER"
	EnvPassword     = "IOTLAB_PASSWORD"
	EnvExperimentID = "AEGISWATT_EXPERIMENT_ID"
)

type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Nodes      NodesConfig      `yaml:"nodes"`
	Loops      LoopConfig       `yaml:"loops"`
	Transport  TransportConfig  `yaml:"transport"`
	Policy     ports.Policy     `yaml:"policy"`
	Journal    JournalConfig    `yaml:"journal"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ExperimentConfig selects the experiment and how to reach the testbed API.
// ID 0 means the user's currently running experiment.
type ExperimentConfig struct {
	ID              int           `yaml:"id"`
	APIURL          string        `yaml:"api_url"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	CredentialsFile string        `yaml:"credentials_file"`
	EnvFile         string        `yaml:"env_file"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	Timeout         time.Duration `yaml:"timeout"`
}

type NodesConfig struct {
	ExcludePrefixes []string `yaml:"exclude_prefixes"`
	// Budgets is `group:watt_seconds;group:watt_seconds`.
	Budgets string `yaml:"budgets"`
	OMLPath string `yaml:"oml_path"`
}

type LoopConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MessageInterval time.Duration `yaml:"message_interval"`
	MirrorInterval  time.Duration `yaml:"mirror_interval"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
}

type TransportConfig struct {
	Kind         string            `yaml:"kind"`
	Port         int               `yaml:"port"`
	DialTimeout  time.Duration     `yaml:"dial_timeout"`
	WriteTimeout time.Duration     `yaml:"write_timeout"`
	MQTT         mqttbridge.Config `yaml:"mqtt"`
}

// JournalConfig is optional; an empty driver disables the journal.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// RedisConfig is optional; an empty address disables the state mirror.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Dir string `yaml:"dir"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.loadCredentials(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadEnv reads the env file, if any, then lets the environment override
// credentials and the experiment id.
func (c *Config) loadEnv() error {
	if c.Experiment.EnvFile != "" {
		if err := godotenv.Load(c.Experiment.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	if v := os.Getenv(EnvUser); v != "" {
		c.Experiment.User = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Experiment.Password = v
	}
	if v := os.Getenv(EnvExperimentID); v != "" {
		var id int
		if _, err := fmt.Sscanf(v, "%d", &id); err != nil {
			return fmt.Errorf("%s: %w", EnvExperimentID, err)
		}
		c.Experiment.ID = id
	}
	return nil
}

// loadCredentials falls back to the testbed CLI credentials file.
func (c *Config) loadCredentials() error {
	if c.Experiment.User != "" {
		return nil
	}
	user, pw, err := iotlab.ReadRC(c.Experiment.CredentialsFile)
	if err != nil {
		if errors.Is(err, iotlab.ErrNoCredentials) {
			return nil
		}
		return err
	}
	c.Experiment.User = user
	c.Experiment.Password = pw
	return nil
}

func (c *Config) applyDefaults() {
	if c.Experiment.APIURL == "" {
		c.Experiment.APIURL = iotlab.DefaultBaseURL
	}
	if c.Experiment.CredentialsFile == "" {
		c.Experiment.CredentialsFile = iotlab.DefaultRCPath()
	}
	if c.Experiment.PollInterval == 0 {
		c.Experiment.PollInterval = 5 * time.Second
	}
	if c.Experiment.Timeout == 0 {
		c.Experiment.Timeout = 30 * time.Second
	}
	if c.Nodes.ExcludePrefixes == nil {
		c.Nodes.ExcludePrefixes = []string{"a8"}
	}
	if c.Nodes.OMLPath == "" {
		c.Nodes.OMLPath = oml.DefaultPathTemplate
	}
	if c.Loops.PollInterval == 0 {
		c.Loops.PollInterval = 5 * time.Second
	}
	if c.Loops.MessageInterval == 0 {
		c.Loops.MessageInterval = 10 * time.Second
	}
	if c.Loops.MirrorInterval == 0 {
		c.Loops.MirrorInterval = 10 * time.Second
	}
	if c.Loops.StopTimeout == 0 {
		c.Loops.StopTimeout = 30 * time.Second
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = "tcp"
	}
	if c.Transport.Port == 0 {
		c.Transport.Port = 20000
	}
	if c.Transport.DialTimeout == 0 {
		c.Transport.DialTimeout = 5 * time.Second
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = 5 * time.Second
	}
	if c.Transport.MQTT.TopicPrefix == "" {
		c.Transport.MQTT.TopicPrefix = "iotlab"
	}
	if c.Transport.MQTT.ClientID == "" {
		c.Transport.MQTT.ClientID = "aegiswatt"
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 100
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "drop"
	}
	if c.Journal.Table == "" {
		c.Journal.Table = "node_events"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "aegiswatt"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = time.Minute
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "~"
	}
}

func (c *Config) validate() error {
	if c.Experiment.ID < 0 {
		return fmt.Errorf("experiment.id must not be negative")
	}
	if c.Experiment.User == "" {
		return fmt.Errorf("testbed credentials are required (experiment.user, %s or %s)", EnvUser, c.Experiment.CredentialsFile)
	}
	if _, err := ParseBudgets(c.Nodes.Budgets); err != nil {
		return fmt.Errorf("nodes.budgets: %w", err)
	}
	switch c.Transport.Kind {
	case "tcp":
	case "mqtt":
		if c.Transport.MQTT.Broker == "" {
			return fmt.Errorf("transport.mqtt.broker is required for the mqtt transport")
		}
	default:
		return fmt.Errorf("transport.kind must be tcp or mqtt, got %q", c.Transport.Kind)
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop":
	default:
		return fmt.Errorf("policy.on_queue_full must be block or drop, got %q", c.Policy.OnQueueFull)
	}
	switch c.Journal.Driver {
	case "":
	case "sqlite", "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required when journal.driver is set")
		}
	default:
		return fmt.Errorf("journal.driver must be sqlite or postgres, got %q", c.Journal.Driver)
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}
