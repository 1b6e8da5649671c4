package aegiswatt

import (
	"github.com/ghalamif/AegisWatt/internal/adapters/mqttbridge"
	"github.com/ghalamif/AegisWatt/internal/app/config"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls journal queue thresholds.
	Policy = ports.Policy
	// ExperimentConfig selects the experiment and API credentials.
	ExperimentConfig = config.ExperimentConfig
	// NodesConfig holds node exclusion, budgets and the log path template.
	NodesConfig = config.NodesConfig
	// LoopConfig sets the poll, messaging and mirror intervals.
	LoopConfig = config.LoopConfig
	// TransportConfig picks the serial transport.
	TransportConfig = config.TransportConfig
	// MQTTConfig configures the serial-over-MQTT bridge.
	MQTTConfig = mqttbridge.Config
	// JournalConfig configures the SQL event journal.
	JournalConfig = config.JournalConfig
	// RedisConfig configures the live state mirror.
	RedisConfig = config.RedisConfig
	// MetricsConfig configures the metrics/API HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig sets where the run log is written.
	LogConfig = config.LogConfig
	// BudgetEntry is one parsed `group:budget` pair.
	BudgetEntry = config.BudgetEntry
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseBudgets parses a `group:budget;group:budget` string.
func ParseBudgets(s string) ([]BudgetEntry, error) {
	return config.ParseBudgets(s)
}
