package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.Sampler.Iterations != 20000 || c.Sampler.BurnIn != 5000 {
		t.Fatalf("unexpected sampler defaults %+v", c.Sampler)
	}
	if c.Server.WriteTimeout != 120*time.Second {
		t.Fatalf("unexpected write timeout %v", c.Server.WriteTimeout)
	}
	if len(c.Server.CORSOrigins) != 1 || c.Server.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", c.Server.CORSOrigins)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
sampler:
  iterations: 3000
  burn_in: 500
  chains: 2
segmentation:
  min_segment: 50
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Environment != "test" || c.Sampler.Iterations != 3000 || c.Sampler.Chains != 2 {
		t.Fatalf("yaml values not applied: %+v", c.Sampler)
	}
	if c.Sampler.StepTau != 10 {
		t.Fatalf("expected default step_tau, got %d", c.Sampler.StepTau)
	}
	if c.Segmentation.MinSegment != 50 || !c.Segmentation.Enabled {
		t.Fatalf("unexpected segmentation %+v", c.Segmentation)
	}
}

func TestParseRejectsBurnInBeyondIterations(t *testing.T) {
	_, err := Parse([]byte(`
sampler:
  iterations: 100
  burn_in: 100
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "BurnIn") {
		t.Fatalf("expected BurnIn in error, got %v", err)
	}
}

func TestParseRejectsUnknownModel(t *testing.T) {
	if _, err := Parse([]byte("priors:\n  model: quadratic\n")); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestQueueRequiresRedis(t *testing.T) {
	if _, err := Parse([]byte("queue:\n  enabled: true\n")); err == nil {
		t.Fatalf("expected error when queue is enabled without redis")
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	env := map[string]string{
		"SERVER_PORT":   "9090",
		"KAFKA_BROKERS": "k1:9092, k2:9092",
		"SAMPLER_SEED":  "7",
		"DATA_BACKEND":  "clickhouse",
	}
	c.ApplyEnv(func(k string) string { return env[k] })
	if c.Server.Port != 9090 {
		t.Fatalf("port not applied: %d", c.Server.Port)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers not applied: %v", c.Kafka.Brokers)
	}
	if c.Sampler.Seed != 7 {
		t.Fatalf("seed not applied: %d", c.Sampler.Seed)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}
