package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/consumer"
	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/radio"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/dht22"
	"github.com/roman-kulish/pingu-sat/internal/sensor/driver"
	"github.com/roman-kulish/pingu-sat/internal/sensor/ds18b20"
	"github.com/roman-kulish/pingu-sat/internal/sensor/geiger"
	"github.com/roman-kulish/pingu-sat/internal/sensor/gps"
	"github.com/roman-kulish/pingu-sat/internal/sensor/ms5611"
	"github.com/roman-kulish/pingu-sat/internal/storage"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	storageDir = "data"

	sensorGroup   = "sensors"
	consumerGroup = "consumers"
)

// Run wires sensors, radio and consumers and runs them until ctx is cancelled.
// A radio link that fails to open is logged and the flight continues without it.
// Shutdown is innermost first: consumers, then the radio link, then sensors.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dataDir, err := createDataDirectory(&config.Storage)
	if err != nil {
		return err
	}

	if config.Metrics.ListenAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, config.Metrics.ListenAddress, logger); err != nil {
				logger.Error(err.Error())
			}
		}()
	}

	registry := sensor.NewRegistry()
	sensors := task.NewSupervisor(sensorGroup, task.WithSupervisorLogger(logger))
	if err = createSensors(config.Sensors, registry, sensors, logger); err != nil {
		return fmt.Errorf("creating sensors: %w", err)
	}
	if registry.Len() == 0 {
		logger.Warn("no sensors enabled, every reading will be absent")
	}

	link := createRadio(&config.Radio, logger)

	var store *storage.SqliteStore
	if config.Consumers.Archive.Enabled {
		store = storage.NewSqliteStore(filepath.Join(dataDir, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405"))))
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing flight archive: %s", err.Error()))
			}
		}()
	}

	consumers := task.NewSupervisor(consumerGroup, task.WithSupervisorLogger(logger))
	createConsumers(config, dataDir, registry, link, store, consumers, logger)
	if len(consumers.Tasks()) == 0 {
		return errors.New("no consumers enabled")
	}

	logger.Info(fmt.Sprintf("starting flight: %d sensors, %d consumers, %s radio",
		registry.Len(), len(consumers.Tasks()), config.Radio.Type))

	err = sensors.Scope(func() error {
		// consumers run against a closed link, every send fails and is counted
		if err := link.Open(ctx); err != nil {
			logger.Error(fmt.Sprintf("radio link unavailable, packets will be dropped: %s", err.Error()),
				slog.String("radio", string(config.Radio.Type)))
		}
		defer func() {
			if err := link.Close(); err != nil {
				logger.Error(err.Error())
			}
		}()

		return consumers.Scope(func() error {
			<-ctx.Done()
			logger.Info("shutdown requested")
			return nil
		})
	})

	if err != nil {
		return err
	}

	logger.Info("flight stopped")
	return nil
}

func createSensors(configs []SensorConfig, registry *sensor.Registry, sup *task.Supervisor, logger *slog.Logger) error {
	for i := range configs {
		c := &configs[i]
		if !c.Enabled {
			continue
		}

		src, err := createSensor(c, logger)
		if err != nil {
			return fmt.Errorf("sensor %s: %w", c.Name, err)
		}

		if err = registry.Register(c.Name, src); err != nil {
			return err
		}

		sup.Add(c.Name, src, task.WithInterval(c.Interval.Std()))
	}

	return nil
}

func createSensor(c *SensorConfig, logger *slog.Logger) (sensor.Source, error) {
	serialConfig := driver.SerialConfig{Port: c.Port, BaudRate: c.BaudRate}

	switch c.Type {
	case SensorMS5611:
		return ms5611.New(c.Name, c.Bus, c.Address,
			ms5611.WithLogger(logger),
			ms5611.WithBackoff(c.Backoff.orDefault(ms5611.DefaultBackoff)),
		), nil

	case SensorDS18B20:
		return ds18b20.New(c.Name, c.Path,
			ds18b20.WithLogger(logger),
			ds18b20.WithBackoff(c.Backoff.orDefault(ds18b20.DefaultBackoff)),
		), nil

	case SensorGPS:
		return gps.New(c.Name, serialConfig,
			gps.WithLogger(logger),
			gps.WithBackoff(c.Backoff.orDefault(gps.DefaultBackoff)),
			gps.WithAirborne(c.Airborne),
		), nil

	case SensorGeiger:
		window := c.Window
		if window == 0 {
			window = sensor.DefaultWindow
		}
		return geiger.New(c.Name, serialConfig,
			geiger.WithLogger(logger),
			geiger.WithBackoff(c.Backoff.orDefault(geiger.DefaultBackoff)),
			geiger.WithWindow(window),
		), nil

	case SensorDHT22:
		return dht22.New(c.Name, c.Pin,
			dht22.WithLogger(logger),
			dht22.WithBackoff(c.Backoff.orDefault(dht22.DefaultBackoff)),
		), nil

	default:
		return nil, driver.NewConfigError(fmt.Sprintf("unknown sensor type '%s'", c.Type))
	}
}

func createRadio(c *RadioConfig, logger *slog.Logger) radio.Link {
	switch c.Type {
	case RadioSerial:
		options := []func(*radio.SerialLink){radio.WithSerialLogger(logger)}
		if c.Callsign != "" {
			address := c.Address
			if address == 0 {
				address = radio.DefaultAddress
			}
			options = append(options, radio.WithCallsign(c.Callsign, address))
		}
		return radio.NewSerialLink(driver.SerialConfig{Port: c.Port, BaudRate: c.BaudRate}, options...)

	case RadioMQTT:
		return radio.NewMQTTLink(radio.MQTTConfig{
			Broker:      c.MQTT.Broker,
			ClientID:    c.MQTT.ClientID,
			Username:    c.MQTT.Username,
			Password:    c.MQTT.Password,
			TopicPrefix: c.MQTT.TopicPrefix,
			QoS:         c.MQTT.QoS,
		}, radio.WithMQTTLogger(logger))

	default:
		return radio.NewLogLink(logger)
	}
}

func createConsumers(config *Config, dataDir string, registry *sensor.Registry, link radio.Link, store *storage.SqliteStore, sup *task.Supervisor, logger *slog.Logger) {
	c := &config.Consumers

	if c.Telemetry.Enabled {
		sup.Add("telemetry", consumer.NewTelemetry(registry, link,
			consumer.WithTelemetryLogger(logger),
			consumer.WithTelemetryNames(c.Names),
			consumer.WithTelemetryInterval(c.Telemetry.Interval.orDefault(consumer.DefaultTelemetryInterval)),
		))
	}

	if c.Payload.Enabled {
		sup.Add("payload", consumer.NewPayload(registry, link,
			consumer.WithPayloadLogger(logger),
			consumer.WithPayloadNames(c.Names),
			consumer.WithSampleInterval(c.Payload.Interval.orDefault(consumer.DefaultSampleInterval)),
		))
	}

	if c.Recorder.Enabled {
		channels := []consumer.Channel{
			consumer.EnvironmentChannel(c.Names),
			consumer.GPSChannel(c.Names),
		}
		sup.Add("recorder", consumer.NewRecorder(registry, dataDir, channels,
			consumer.WithRecorderLogger(logger),
			consumer.WithRecordInterval(c.Recorder.Interval.orDefault(consumer.DefaultRecordInterval)),
		))
	}

	if c.Archive.Enabled && store != nil {
		sup.Add("archive", consumer.NewArchive(registry, store,
			consumer.WithArchiveLogger(logger),
			consumer.WithFlightConfig(config),
			consumer.WithArchiveInterval(c.Archive.Interval.orDefault(consumer.DefaultArchiveInterval)),
		))
	}
}

func createDataDirectory(config *StorageConfig) (string, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory '%s': %w", dir, err)
	}

	return dir, nil
}
