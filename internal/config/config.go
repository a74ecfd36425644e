// Package config loads the bridge's startup configuration from a YAML
// file. Configuration is read once at startup and is not
// hot-reloadable.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bridge's full startup configuration.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Registry RegistryConfig `yaml:"registry"`
	Command  CommandConfig  `yaml:"command"`
	Sidecar  SidecarConfig  `yaml:"sidecar"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrokerConfig holds the MQTT broker connection settings.
type BrokerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	CommandTopic   string `yaml:"command_topic"`
	AckTopic       string `yaml:"ack_topic"`
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// RegistryConfig bounds the device registry and its dedup rings.
type RegistryConfig struct {
	Capacity        int    `yaml:"capacity"`
	DedupRingSize   int    `yaml:"dedup_ring_size"`
	PersistencePath string `yaml:"persistence_path"`
}

// CommandConfig bounds the command queue.
type CommandConfig struct {
	Capacity      int `yaml:"capacity"`
	ExpirationMin int `yaml:"expiration_minutes"`
}

// SidecarConfig configures the optional persistence sidecar mirror.
type SidecarConfig struct {
	URL                string `yaml:"url"`
	ReconnectSeconds   int    `yaml:"reconnect_seconds"`
	HealthProbeSeconds int    `yaml:"health_probe_seconds"`
	QueueCapacity      int    `yaml:"queue_capacity"`
}

// AdminConfig configures the local administration HTTP surface.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls the standard-library logger's verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default bounds and intervals applied to zero-valued fields.
const (
	DefaultRegistryCapacity = 10
	DefaultDedupRingSize    = 50
	DefaultCommandCapacity  = 10
	DefaultExpirationMin    = 5
	DefaultSidecarQueueCap  = 1000
	DefaultSidecarReconnect = 30
	DefaultSidecarHealth    = 60
)

// Load reads and parses the YAML configuration file at path, applying
// defaults for anything left zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Registry.Capacity == 0 {
		c.Registry.Capacity = DefaultRegistryCapacity
	}
	if c.Registry.DedupRingSize == 0 {
		c.Registry.DedupRingSize = DefaultDedupRingSize
	}
	if c.Command.Capacity == 0 {
		c.Command.Capacity = DefaultCommandCapacity
	}
	if c.Command.ExpirationMin == 0 {
		c.Command.ExpirationMin = DefaultExpirationMin
	}
	if c.Sidecar.QueueCapacity == 0 {
		c.Sidecar.QueueCapacity = DefaultSidecarQueueCap
	}
	if c.Sidecar.ReconnectSeconds == 0 {
		c.Sidecar.ReconnectSeconds = DefaultSidecarReconnect
	}
	if c.Sidecar.HealthProbeSeconds == 0 {
		c.Sidecar.HealthProbeSeconds = DefaultSidecarHealth
	}
	if c.Broker.TopicPrefix == "" {
		c.Broker.TopicPrefix = "esp-sensor-hub"
	}
	if c.Broker.CommandTopic == "" {
		c.Broker.CommandTopic = "lora/command"
	}
	if c.Broker.AckTopic == "" {
		c.Broker.AckTopic = "lora/command/ack"
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = ":8090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ExpirationDuration returns the command expiration window as a
// time.Duration.
func (c *Config) ExpirationDuration() time.Duration {
	return time.Duration(c.Command.ExpirationMin) * time.Minute
}
