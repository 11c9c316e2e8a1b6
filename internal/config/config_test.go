package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 检查默认值
	if cfg.Hub.BaseURL != "http://127.0.0.1:8123" {
		t.Errorf("Expected HUB_BASE_URL default 'http://127.0.0.1:8123', got '%s'", cfg.Hub.BaseURL)
	}

	if cfg.Publisher.IntervalMinutes != 10 {
		t.Errorf("Expected PUBLISHER_INTERVAL_MINUTES default 10, got %d", cfg.Publisher.IntervalMinutes)
	}

	if cfg.Publisher.HistoryHours != 24 {
		t.Errorf("Expected PUBLISHER_HISTORY_HOURS default 24, got %d", cfg.Publisher.HistoryHours)
	}

	if cfg.Publisher.HistoryConcurrency != 8 {
		t.Errorf("Expected PUBLISHER_HISTORY_CONCURRENCY default 8, got %d", cfg.Publisher.HistoryConcurrency)
	}

	if cfg.IPFS.TelemetryDir != "/ha_telemetry" {
		t.Errorf("Expected IPFS_TELEMETRY_DIR default '/ha_telemetry', got '%s'", cfg.IPFS.TelemetryDir)
	}

	if cfg.MQTT.Enabled {
		t.Errorf("Expected MQTT_ENABLED default false")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("HUB_BASE_URL", "http://hub.local:8123")
	os.Setenv("HUB_TOKEN", "test-token")
	os.Setenv("PUBLISHER_TWIN_ID", "14")
	os.Setenv("PUBLISHER_INTERVAL_MINUTES", "5")
	os.Setenv("MQTT_ENABLED", "true")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Hub.BaseURL != "http://hub.local:8123" {
		t.Errorf("Expected HUB_BASE_URL 'http://hub.local:8123', got '%s'", cfg.Hub.BaseURL)
	}

	if cfg.Hub.Token != "test-token" {
		t.Errorf("Expected HUB_TOKEN 'test-token', got '%s'", cfg.Hub.Token)
	}

	if cfg.Publisher.TwinID != 14 {
		t.Errorf("Expected PUBLISHER_TWIN_ID 14, got %d", cfg.Publisher.TwinID)
	}

	if cfg.Publisher.IntervalMinutes != 5 {
		t.Errorf("Expected PUBLISHER_INTERVAL_MINUTES 5, got %d", cfg.Publisher.IntervalMinutes)
	}

	if !cfg.MQTT.Enabled {
		t.Errorf("Expected MQTT_ENABLED true")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected LOG_LEVEL 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	os.Clearenv()

	validSeed := strings.Repeat("ab", 32)

	cases := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing token",
			mutate:  func(cfg *Config) { cfg.Hub.Token = "" },
			wantErr: "HUB_TOKEN",
		},
		{
			name:    "missing seed",
			mutate:  func(cfg *Config) { cfg.Publisher.Seed = "" },
			wantErr: "PUBLISHER_SEED",
		},
		{
			name:    "seed not hex",
			mutate:  func(cfg *Config) { cfg.Publisher.Seed = "zz" + validSeed[2:] },
			wantErr: "hex",
		},
		{
			name:    "seed wrong length",
			mutate:  func(cfg *Config) { cfg.Publisher.Seed = "abcd" },
			wantErr: "32 bytes",
		},
		{
			name:    "non-positive interval",
			mutate:  func(cfg *Config) { cfg.Publisher.IntervalMinutes = 0 },
			wantErr: "PUBLISHER_INTERVAL_MINUTES",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			cfg.Hub.Token = "token"
			cfg.Publisher.Seed = validSeed
			tc.mutate(cfg)

			err = cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}
