package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/pingu-sat/internal/consumer"
)

const (
	SensorMS5611  SensorType = "ms5611"
	SensorDS18B20 SensorType = "ds18b20"
	SensorGPS     SensorType = "gps"
	SensorGeiger  SensorType = "geiger"
	SensorDHT22   SensorType = "dht22"

	RadioSerial RadioType = "serial"
	RadioMQTT   RadioType = "mqtt"
	RadioLog    RadioType = "log"
)

var (
	validSensorTypes = map[SensorType]struct{}{
		SensorMS5611:  {},
		SensorDS18B20: {},
		SensorGPS:     {},
		SensorGeiger:  {},
		SensorDHT22:   {},
	}

	validRadioTypes = map[RadioType]struct{}{
		RadioSerial: {},
		RadioMQTT:   {},
		RadioLog:    {},
	}
)

type SensorType string

type RadioType string

// Duration is a time.Duration written as a Go duration string ("20s", "1m30s")
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// orDefault returns def when d is unset
func (d Duration) orDefault(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}

// Config represents the flight software configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Sensors   []SensorConfig  `yaml:"sensors"`
	Radio     RadioConfig     `yaml:"radio"`
	Consumers ConsumersConfig `yaml:"consumers"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// SensorConfig represents a single sensor. Fields not used by a type are ignored.
type SensorConfig struct {
	Name    string     `yaml:"name"`
	Type    SensorType `yaml:"type"`
	Enabled bool       `yaml:"enabled"`

	// Interval is the pause between updates; drivers pace themselves when it is zero
	Interval Duration `yaml:"interval"`
	Backoff  Duration `yaml:"backoff"`

	Port     string `yaml:"port"`     // gps, geiger
	BaudRate int    `yaml:"baudRate"` // gps, geiger
	Bus      string `yaml:"bus"`      // ms5611, empty for the first I2C bus
	Address  uint16 `yaml:"address"`  // ms5611
	Path     string `yaml:"path"`     // ds18b20 w1_slave file
	Pin      string `yaml:"pin"`      // dht22 GPIO pin
	Window   int    `yaml:"window"`   // geiger tumbling window size
	Airborne bool   `yaml:"airborne"` // gps, switch the receiver to the airborne dynamic model
}

// RadioConfig represents the downlink
type RadioConfig struct {
	Type RadioType `yaml:"type"`

	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudRate"`
	Callsign string `yaml:"callsign"`
	Address  byte   `yaml:"address"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig represents the ground-test broker
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password" json:"-"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         byte   `yaml:"qos"`
}

// ConsumersConfig represents the consumer duties
type ConsumersConfig struct {
	Names     consumer.Names `yaml:"names"`
	Telemetry DutyConfig     `yaml:"telemetry"`
	Payload   DutyConfig     `yaml:"payload"`
	Recorder  DutyConfig     `yaml:"recorder"`
	Archive   DutyConfig     `yaml:"archive"`
}

// DutyConfig enables a consumer and sets its cadence
type DutyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// MetricsConfig represents the metrics endpoint, disabled when ListenAddress is empty
type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

// LoadConfig reads the YAML configuration at path. A .env file next to it is
// loaded first and ${VAR} references in the YAML are expanded.
func LoadConfig(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(b)
}

// ParseConfig decodes and validates a YAML configuration, expanding
// environment variables first
func ParseConfig(b []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(b))

	config := Config{
		Settings: Settings{LogLevel: "info"},
	}

	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensor #%d: name is required", i)
		}
		if _, ok := names[s.Name]; ok {
			return fmt.Errorf("sensor %s: duplicate name", s.Name)
		}
		names[s.Name] = struct{}{}

		if err := s.Validate(); err != nil {
			return fmt.Errorf("sensor %s: %w", s.Name, err)
		}
	}

	if err := c.Radio.Validate(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}

	for name, d := range map[string]DutyConfig{
		"telemetry": c.Consumers.Telemetry,
		"payload":   c.Consumers.Payload,
		"recorder":  c.Consumers.Recorder,
		"archive":   c.Consumers.Archive,
	} {
		if d.Interval < 0 {
			return fmt.Errorf("consumer %s: interval must not be negative", name)
		}
	}

	return nil
}

func (s *SensorConfig) Validate() error {
	if _, ok := validSensorTypes[s.Type]; !ok {
		return fmt.Errorf("unknown type '%s'", s.Type)
	}
	if s.Interval < 0 || s.Backoff < 0 {
		return errors.New("interval and backoff must not be negative")
	}
	if !s.Enabled {
		return nil
	}

	switch s.Type {
	case SensorGPS, SensorGeiger:
		if s.Port == "" {
			return errors.New("port is required")
		}
	case SensorDS18B20:
		if s.Path == "" {
			return errors.New("path is required")
		}
	case SensorDHT22:
		if s.Pin == "" {
			return errors.New("pin is required")
		}
	}

	if s.Window < 0 {
		return errors.New("window must not be negative")
	}
	return nil
}

func (r *RadioConfig) Validate() error {
	if r.Type == "" {
		r.Type = RadioLog
	}
	if _, ok := validRadioTypes[r.Type]; !ok {
		return fmt.Errorf("unknown type '%s'", r.Type)
	}

	switch r.Type {
	case RadioSerial:
		if r.Port == "" {
			return errors.New("port is required")
		}
	case RadioMQTT:
		if r.MQTT.Broker == "" {
			return errors.New("mqtt broker is required")
		}
		if r.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt qos %d", r.MQTT.QoS)
		}
	}
	return nil
}
