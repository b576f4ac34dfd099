package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSampleConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.sample.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig: %v", err)
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		t.Fatalf("loading sample: %v", err)
	}
	if len(cfg.TradingConfig.Symbols) == 0 {
		t.Error("sample has no symbols")
	}
	if !cfg.TradingConfig.ContinuousMonitoring {
		t.Error("sample disables continuous monitoring")
	}
	if cfg.TradingConfig.CyclePeriodMinutes != 30 {
		t.Errorf("cycle period = %d, want 30", cfg.TradingConfig.CyclePeriodMinutes)
	}
}

func TestContinuousMonitoringDefaultsOn(t *testing.T) {
	seed := defaultOnConfig()
	if !seed.TradingConfig.ContinuousMonitoring {
		t.Error("monitoring must be on when nothing configures it")
	}
}

func TestLoadFromFileHonorsExplicitMonitoringOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := []byte(`{"trading": {"continuous_monitoring": false}}`)
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if cfg.TradingConfig.ContinuousMonitoring {
		t.Error("explicit false was overridden")
	}
}
