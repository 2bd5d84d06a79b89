package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	QuorumThresholdPct   float64
	ApprovalThresholdPct float64
	VotingPeriod         time.Duration
	ExecutionTimeout     time.Duration
	DefaultEligiblePower float64
	ExecutionWebhookURL  string

	EnableOutboxRelay         bool
	EnablePowerSupplyConsumer bool
	OutboxRelayInterval       time.Duration
	PowerSupplyConsumerGroup  string
	PowerSupplyDedupRetention time.Duration
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "agora"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	group := strings.TrimSpace(os.Getenv("POWER_SUPPLY_CONSUMER_GROUP"))
	if group == "" {
		group = "governance-engine-supply-cg"
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		QuorumThresholdPct:   envFloat("GOVERNANCE_QUORUM_THRESHOLD_PCT", 10),
		ApprovalThresholdPct: envFloat("GOVERNANCE_APPROVAL_THRESHOLD_PCT", 51),
		VotingPeriod:         envDuration("GOVERNANCE_VOTING_PERIOD", 72*time.Hour),
		ExecutionTimeout:     envDuration("GOVERNANCE_EXECUTION_TIMEOUT", 30*time.Second),
		DefaultEligiblePower: envFloat("GOVERNANCE_DEFAULT_ELIGIBLE_POWER", 0),
		ExecutionWebhookURL:  strings.TrimSpace(os.Getenv("GOVERNANCE_EXECUTION_WEBHOOK_URL")),

		EnableOutboxRelay:         envBool("ENABLE_OUTBOX_RELAY", true),
		EnablePowerSupplyConsumer: envBool("ENABLE_POWER_SUPPLY_CONSUMER", true),
		OutboxRelayInterval:       envDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
		PowerSupplyConsumerGroup:  group,
		PowerSupplyDedupRetention: envDuration("POWER_SUPPLY_DEDUP_RETENTION", 24*time.Hour),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
