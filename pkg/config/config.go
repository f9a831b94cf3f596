package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. HOMEENV_LOG_LEVEL.
	EnvPrefix = "HOMEENV"
	// EnvConfigFile names an explicit config file to load.
	EnvConfigFile = EnvPrefix + "_CONFIG"

	configName = "home-env-log"
)

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"
)

type MQTTConfig struct {
	Server            string `json:"server" mapstructure:"server"`
	Username          string `json:"username" mapstructure:"username"`
	Password          string `json:"password" mapstructure:"password"`
	ClientID          string `json:"client_id" mapstructure:"client_id"`
	StateTopic        string `json:"state_topic" mapstructure:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" mapstructure:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" mapstructure:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" mapstructure:"discovery_unique_id"`
}

type OutputConfig struct {
	Type string      `json:"type" mapstructure:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty" mapstructure:"mqtt"`
}

type DatabaseConfig struct {
	Driver string `json:"driver" mapstructure:"driver"`
	DSN    string `json:"dsn" mapstructure:"dsn"`
}

type Config struct {
	SensorType  string         `json:"sensor_type" mapstructure:"sensor_type"`
	I2CBus      string         `json:"i2c_bus" mapstructure:"i2c_bus"`
	I2CAddress  int            `json:"i2c_address" mapstructure:"i2c_address"`
	SerialPort  string         `json:"serial_port" mapstructure:"serial_port"`
	SerialBaud  int            `json:"serial_baud" mapstructure:"serial_baud"`
	Database    DatabaseConfig `json:"database" mapstructure:"database"`
	LogLevel    string         `json:"log_level" mapstructure:"log_level"`
	MetricsAddr string         `json:"metrics_addr" mapstructure:"metrics_addr"`
	Outputs     []OutputConfig `json:"outputs" mapstructure:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		SensorType: SensorTypeReal,
		I2CBus:     "",
		I2CAddress: 0x76,
		SerialPort: "/dev/serial0",
		SerialBaud: 9600,
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./home-env-log.db",
		},
		LogLevel: "info",
		Outputs:  []OutputConfig{{Type: "console"}},
	}
}

// Load reads the configuration. When path is empty the usual locations are
// searched and a missing file is not an error. Environment variables
// override file values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc/" + configName + "/")
		v.AddConfigPath("$HOME/." + configName + "/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.Outputs = nil
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = DefaultConfig().Outputs
	}

	if raw := os.Getenv(EnvPrefix + "_OUTPUT_TYPES"); raw != "" {
		cfg.Outputs = parseOutputs(raw, cfg.Outputs)
	}
	applyMQTTEnv(&cfg)

	return cfg, cfg.Validate()
}

// Validate checks values that would only fail later at startup.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorTypeReal, SensorTypeSimulation:
	default:
		return fmt.Errorf("sensor_type must be %q or %q, got %q", SensorTypeReal, SensorTypeSimulation, c.SensorType)
	}
	if c.SensorType == SensorTypeReal {
		if c.SerialPort == "" {
			return errors.New("serial_port is required")
		}
		if c.SerialBaud <= 0 {
			return errors.New("serial_baud must be > 0")
		}
	}
	if c.Database.Driver == "" {
		return errors.New("database.driver is required")
	}
	for i, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console":
		case "mqtt":
			if o.MQTT == nil || o.MQTT.Server == "" {
				return fmt.Errorf("outputs[%d]: mqtt server is required", i)
			}
		default:
			return fmt.Errorf("outputs[%d]: unknown output type %q", i, o.Type)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("sensor_type", cfg.SensorType)
	v.SetDefault("i2c_bus", cfg.I2CBus)
	v.SetDefault("i2c_address", cfg.I2CAddress)
	v.SetDefault("serial_port", cfg.SerialPort)
	v.SetDefault("serial_baud", cfg.SerialBaud)
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
}

// parseOutputs turns a CSV of output types into output entries, keeping the
// settings of outputs that were already configured.
func parseOutputs(raw string, existing []OutputConfig) []OutputConfig {
	parts := parseCSV(raw)
	outs := make([]OutputConfig, 0, len(parts))
	for _, p := range parts {
		out := OutputConfig{Type: strings.ToLower(p)}
		for _, e := range existing {
			if strings.EqualFold(e.Type, p) {
				out = e
				break
			}
		}
		outs = append(outs, out)
	}
	return outs
}

// applyMQTTEnv maps HOMEENV_MQTT_* variables into every mqtt output.
func applyMQTTEnv(cfg *Config) {
	lookup := func(key string) (string, bool) { return os.LookupEnv(EnvPrefix + "_MQTT_" + key) }
	for i := range cfg.Outputs {
		if strings.ToLower(cfg.Outputs[i].Type) != "mqtt" {
			continue
		}
		if cfg.Outputs[i].MQTT == nil {
			cfg.Outputs[i].MQTT = &MQTTConfig{}
		}
		m := cfg.Outputs[i].MQTT
		for key, dst := range map[string]*string{
			"SERVER":          &m.Server,
			"USERNAME":        &m.Username,
			"PASSWORD":        &m.Password,
			"CLIENT_ID":       &m.ClientID,
			"STATE_TOPIC":     &m.StateTopic,
			"DISCOVERY_TOPIC": &m.DiscoveryTopic,
		} {
			if v, ok := lookup(key); ok {
				*dst = v
			}
		}
	}
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
