// minidspd bridges a MiniDSP processor into home automation systems.
//
// It keeps an authoritative copy of the device state by polling the
// minidsp-rs HTTP API (or following its WebSocket level stream), and
// exposes that state three ways:
//   - MQTT topics for automation controllers (Home Assistant, Node-RED)
//   - a local REST + WebSocket API for UIs
//   - InfluxDB level telemetry for dashboards
//
// All outward surfaces are optional; the daemon runs with any subset.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/minidsp-bridge/internal/api"
	"github.com/nerrad567/minidsp-bridge/internal/bridge"
	"github.com/nerrad567/minidsp-bridge/internal/infrastructure/config"
	"github.com/nerrad567/minidsp-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/minidsp-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/minidsp-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
	"github.com/nerrad567/minidsp-bridge/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting minidspd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Device HTTP client
	client, err := minidsp.NewClient(minidsp.ClientConfig{
		Endpoint:       cfg.Device.Endpoint,
		Index:          cfg.Device.Index,
		RequestTimeout: cfg.GetRequestTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating device client: %w", err)
	}

	// Level stream (optional; coordinator polls without it)
	var stream *minidsp.Stream
	if cfg.Device.Stream {
		streamURL, urlErr := client.StreamURL()
		if urlErr != nil {
			return fmt.Errorf("deriving stream URL: %w", urlErr)
		}
		stream, err = minidsp.NewStream(minidsp.StreamConfig{URL: streamURL})
		if err != nil {
			return fmt.Errorf("creating level stream: %w", err)
		}
		stream.SetLogger(log)
		log.Info("level stream configured", "url", streamURL)
	} else {
		log.Info("level stream disabled, polling instead",
			"interval", cfg.GetPollInterval(),
		)
	}

	// Coordinator owns the device state
	coordinator, err := minidsp.NewCoordinator(minidsp.CoordinatorOptions{
		Name:          cfg.Device.Name,
		Client:        client,
		Stream:        stream,
		StreamEnabled: cfg.Device.Stream,
		PollInterval:  cfg.GetPollInterval(),
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	// The first refresh must succeed: every surface serves this state,
	// so a dead device at boot is a configuration problem.
	if refreshErr := coordinator.FirstRefresh(ctx); refreshErr != nil {
		return fmt.Errorf("initial device refresh: %w", refreshErr)
	}
	log.Info("device state loaded", "device", coordinator.Name())

	if startErr := coordinator.Start(); startErr != nil {
		return fmt.Errorf("starting coordinator: %w", startErr)
	}
	defer func() {
		log.Info("stopping coordinator")
		coordinator.Stop()
	}()

	// Connect to MQTT broker and start the bridge (optional)
	var mqttClient *mqtt.Client
	var dspBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Set up MQTT logging callbacks
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		dspBridge, err = bridge.NewBridge(bridge.BridgeOptions{
			DeviceName:  cfg.Device.Name,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Version:     version,
			MQTTClient:  &mqttBridgeAdapter{client: mqttClient},
			Coordinator: coordinator,
			Logger:      log,
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if startErr := dspBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			dspBridge.Stop()
		}()
		log.Info("MQTT bridge started", "topic_prefix", cfg.MQTT.TopicPrefix)
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Connect to InfluxDB and attach the level recorder (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder, recErr := telemetry.NewRecorder(telemetry.RecorderOptions{
			Device: cfg.Device.Name,
			Writer: influxClient,
			Logger: log,
		})
		if recErr != nil {
			return fmt.Errorf("creating telemetry recorder: %w", recErr)
		}
		unsubscribe, subErr := coordinator.Subscribe(recorder.HandleState)
		if subErr != nil {
			return fmt.Errorf("attaching telemetry recorder: %w", subErr)
		}
		defer unsubscribe()
		log.Info("telemetry recorder attached", "device", cfg.Device.Name)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the local API server (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log,
			Coordinator: coordinator,
			Version:     version,
		}
		if dspBridge != nil {
			deps.Bridge = dspBridge
		}

		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started",
			"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
			"tls", cfg.API.TLS.Enabled,
		)
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Telemetry recorder + InfluxDB (if enabled)
	// 3. MQTT bridge + client (if enabled)
	// 4. Coordinator

	log.Info("minidspd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MINIDSPD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MINIDSPD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the optional infrastructure connections are healthy.
// The device itself was already verified by the first refresh.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// the infrastructure client's handlers return an error, the bridge's do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
