package dispatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatchd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
gateway:
  url: ws://gateway.test
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.ListenAddr != ":8080" {
		t.Fatalf("expected default listen address, got %q", config.ListenAddr)
	}
	if config.Mode != ModePipelined {
		t.Fatalf("expected pipelined default mode, got %q", config.Mode)
	}
	if config.BridgePolicy != "hand_off" {
		t.Fatalf("expected hand_off default bridge policy, got %q", config.BridgePolicy)
	}
}

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfigFile(t, `
gateway:
  url: ws://gateway.test
timeouts:
  answer: 45s
  idle: 1m30s
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	timeouts := config.orchestratorTimeouts()
	if timeouts.Answer != 45*time.Second {
		t.Fatalf("expected 45s answer timeout, got %s", timeouts.Answer)
	}
	if timeouts.Idle != 90*time.Second {
		t.Fatalf("expected 90s idle timeout, got %s", timeouts.Idle)
	}
	// Unset timeouts keep the library defaults.
	if timeouts.Drain != 5*time.Second {
		t.Fatalf("expected default drain timeout, got %s", timeouts.Drain)
	}
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	path := writeConfigFile(t, `
gateway:
  url: ws://gateway.test
timeouts:
  answer: soonish
`)

	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected a duration error, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	path := writeConfigFile(t, `
mode: batch
gateway:
  url: ws://gateway.test
`)

	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected a mode error, got %v", err)
	}
}

func TestLoadConfigRequiresGatewayURL(t *testing.T) {
	path := writeConfigFile(t, `
mode: realtime
`)

	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "gateway.url") {
		t.Fatalf("expected a gateway error, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownBridgePolicy(t *testing.T) {
	path := writeConfigFile(t, `
gateway:
  url: ws://gateway.test
bridge_policy: three_way
`)

	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "bridge_policy") {
		t.Fatalf("expected a bridge policy error, got %v", err)
	}
}
