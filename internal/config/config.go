package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// Station ingest.
	Protocol      string // "tcp" or "udp"
	TCPPort       int
	UDPPort       int
	ReadTimeout   time.Duration // per-read TCP deadline, 0 disables
	SkipPortCheck bool

	// Publishing.
	PublishInterval time.Duration
	PublishScope    string

	// Telemetry bus.
	Bus             string // "mqtt" or "kafka"
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
	KafkaBrokers    []string
	KafkaTopic      string

	MetricsAddr string // empty disables the /metrics endpoint

	// EnvOverrides lists the variables that were set in the environment,
	// in envVars order. Echoed at startup.
	EnvOverrides []string
}

// envVars is every variable LoadFromEnv reads.
var envVars = []string{
	"APP_ENV", "LOG_LEVEL", "TEMPEST_DEBUG",
	"TEMPEST_PROTOCOL", "TEMPEST_TCP_PORT", "TEMPEST_UDP_PORT",
	"TEMPEST_READ_TIMEOUT", "TEMPEST_NO_FIREWALL",
	"TEMPEST_PUBLISH_INTERVAL", "TEMPEST_PUBLISH_SCOPE",
	"TELEMETRY_BUS", "MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID",
	"MQTT_TOPIC_PREFIX", "KAFKA_BROKERS", "KAFKA_TOPIC", "METRICS_ADDR",
}

func envOverrides() []string {
	var set []string
	for _, key := range envVars {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			set = append(set, key)
		}
	}
	return set
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	if envBool("TEMPEST_DEBUG") {
		level = slog.LevelDebug
	}

	protocol := strings.ToLower(strings.TrimSpace(os.Getenv("TEMPEST_PROTOCOL")))
	if protocol == "" {
		protocol = "tcp"
	}
	switch protocol {
	case "tcp", "udp":
	default:
		return Config{}, fmt.Errorf("invalid TEMPEST_PROTOCOL %q (allowed: tcp, udp)", protocol)
	}

	tcpPort, err := envPort("TEMPEST_TCP_PORT", 50222)
	if err != nil {
		return Config{}, err
	}
	udpPort, err := envPort("TEMPEST_UDP_PORT", 50222)
	if err != nil {
		return Config{}, err
	}

	readTimeoutStr := strings.TrimSpace(os.Getenv("TEMPEST_READ_TIMEOUT"))
	if readTimeoutStr == "" {
		readTimeoutStr = "2m"
	}
	readTimeout, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TEMPEST_READ_TIMEOUT %q: %w", readTimeoutStr, err)
	}
	if readTimeout < 0 {
		return Config{}, fmt.Errorf("TEMPEST_READ_TIMEOUT must not be negative, got %v", readTimeout)
	}

	publishIntervalStr := strings.TrimSpace(os.Getenv("TEMPEST_PUBLISH_INTERVAL"))
	if publishIntervalStr == "" {
		publishIntervalStr = "60"
	}
	publishIntervalSec, err := strconv.Atoi(publishIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TEMPEST_PUBLISH_INTERVAL %q: %w", publishIntervalStr, err)
	}
	if publishIntervalSec <= 0 {
		return Config{}, fmt.Errorf("TEMPEST_PUBLISH_INTERVAL must be positive, got %d", publishIntervalSec)
	}

	publishScope := strings.TrimSpace(os.Getenv("TEMPEST_PUBLISH_SCOPE"))
	if publishScope == "" {
		publishScope = "beehive"
	}

	bus := strings.ToLower(strings.TrimSpace(os.Getenv("TELEMETRY_BUS")))
	if bus == "" {
		bus = "mqtt"
	}
	switch bus {
	case "mqtt", "kafka":
	default:
		return Config{}, fmt.Errorf("invalid TELEMETRY_BUS %q (allowed: mqtt, kafka)", bus)
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}
	mqttPort, err := envPort("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "tempest-gateway"
	}
	mqttTopicPrefix := strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX"))
	if mqttTopicPrefix == "" {
		mqttTopicPrefix = "telemetry"
	}

	kafkaBrokersStr := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if kafkaBrokersStr == "" {
		kafkaBrokersStr = "localhost:9092"
	}
	kafkaTopic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if kafkaTopic == "" {
		kafkaTopic = "tempest-telemetry"
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		Protocol:        protocol,
		TCPPort:         tcpPort,
		UDPPort:         udpPort,
		ReadTimeout:     readTimeout,
		SkipPortCheck:   envBool("TEMPEST_NO_FIREWALL"),
		PublishInterval: time.Duration(publishIntervalSec) * time.Second,
		PublishScope:    publishScope,
		Bus:             bus,
		MQTTBroker:      mqttBroker,
		MQTTPort:        mqttPort,
		MQTTClientID:    mqttClientID,
		MQTTTopicPrefix: mqttTopicPrefix,
		KafkaBrokers:    strings.Split(kafkaBrokersStr, ","),
		KafkaTopic:      kafkaTopic,
		MetricsAddr:     strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		EnvOverrides:    envOverrides(),
	}, nil
}

// Port returns the listen port for the configured protocol.
func (c Config) Port() int {
	if c.Protocol == "udp" {
		return c.UDPPort
	}
	return c.TCPPort
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func envPort(key string, fallback int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s out of range: %d", key, port)
	}
	return port, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
