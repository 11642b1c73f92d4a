package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfig = `
settings:
  logLevel: debug
sensors:
  - name: pressure
    type: ms5611
    enabled: true
  - name: gps
    type: gps
    enabled: true
    port: /dev/ttyAMA0
    backoff: 2s
radio:
  type: mqtt
  mqtt:
    broker: tcp://localhost:1883
    password: ${PINGUSAT_TEST_PASSWORD}
consumers:
  names:
    externalTemperature: outside
  telemetry:
    enabled: true
    interval: 15s
  recorder:
    enabled: true
`

func TestParseConfig(t *testing.T) {
	t.Setenv("PINGUSAT_TEST_PASSWORD", "s3cret")

	c, err := ParseConfig([]byte(testConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if c.Settings.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %q", c.Settings.LogLevel)
	}
	if len(c.Sensors) != 2 {
		t.Fatalf("Expected 2 sensors, got %d", len(c.Sensors))
	}
	if got := c.Sensors[1].Backoff.Std(); got != 2*time.Second {
		t.Errorf("Expected gps backoff 2s, got %v", got)
	}
	if c.Radio.MQTT.Password != "s3cret" {
		t.Errorf("Expected the password to be expanded from the environment, got %q", c.Radio.MQTT.Password)
	}
	if got := c.Consumers.Telemetry.Interval.Std(); got != 15*time.Second {
		t.Errorf("Expected telemetry interval 15s, got %v", got)
	}
	if got := c.Consumers.Recorder.Interval.orDefault(time.Second); got != time.Second {
		t.Errorf("Expected the recorder to fall back to 1s, got %v", got)
	}
	if c.Consumers.Names.ExternalTemperature != "outside" {
		t.Errorf("Expected custom external temperature name, got %q", c.Consumers.Names.ExternalTemperature)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	c, err := ParseConfig([]byte("consumers:\n  recorder:\n    enabled: true\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if c.Settings.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %q", c.Settings.LogLevel)
	}
	if c.Radio.Type != RadioLog {
		t.Errorf("Expected default radio %q, got %q", RadioLog, c.Radio.Type)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{
			name:   "duplicate sensor",
			config: "sensors:\n  - {name: a, type: ms5611}\n  - {name: a, type: ms5611}\n",
			want:   "duplicate name",
		},
		{
			name:   "unknown sensor type",
			config: "sensors:\n  - {name: a, type: lidar}\n",
			want:   "unknown type",
		},
		{
			name:   "missing serial port",
			config: "sensors:\n  - {name: gps, type: gps, enabled: true}\n",
			want:   "port is required",
		},
		{
			name:   "unknown radio",
			config: "radio:\n  type: carrier-pigeon\n",
			want:   "unknown type",
		},
		{
			name:   "bad duration",
			config: "consumers:\n  telemetry:\n    interval: soon\n",
			want:   "failed to parse",
		},
		{
			name:   "unknown field",
			config: "sensors:\n  - {name: a, type: ms5611, colour: blue}\n",
			want:   "colour",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.config))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flight.yaml")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PINGUSAT_TEST_DIR=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("storage:\n  dataDirectory: ${PINGUSAT_TEST_DIR}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PINGUSAT_TEST_DIR") })

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Storage.DataDirectory != "from-dotenv" {
		t.Errorf("Expected data directory from .env, got %q", c.Storage.DataDirectory)
	}
}

func TestLoadConfig_Example(t *testing.T) {
	t.Setenv("MQTT_USERNAME", "ground")
	t.Setenv("MQTT_PASSWORD", "station")

	c, err := LoadConfig(filepath.Join("..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(c.Sensors) != 6 || c.Radio.Type != RadioSerial {
		t.Errorf("Unexpected example configuration: %d sensors, radio %q", len(c.Sensors), c.Radio.Type)
	}

	for _, s := range c.Sensors {
		if s.Type == SensorGPS && !s.Airborne {
			t.Errorf("Expected sensor %s to switch the receiver to airborne mode", s.Name)
		}
	}
}
