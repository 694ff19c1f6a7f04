package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"quill/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("QUILL_TRANSCRIPTION_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err == nil {
		t.Fatal("expected error: gateway URLs unset by default")
	}

	// Provide the required endpoints through a config file and retry.
	configPath := filepath.Join(tempHome, "quill.toml")
	contents := "[acquisition]\ngateway_url = \"http://gateway.local\"\n[delivery]\ngateway_url = \"http://messenger.local\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, resolved, exists, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "quill")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.WorkspaceDir != filepath.Join(wantData, "workspaces") {
		t.Fatalf("unexpected workspace dir: %q", cfg.Paths.WorkspaceDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7517" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Transcription.APIKey != "test-key" {
		t.Fatalf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Transcription.SegmentSeconds != 1800 {
		t.Fatalf("unexpected segment seconds: %d", cfg.Transcription.SegmentSeconds)
	}
	if cfg.Acquisition.DirectLimitBytes != 20*1024*1024 {
		t.Fatalf("unexpected direct limit: %d", cfg.Acquisition.DirectLimitBytes)
	}
	if cfg.Delivery.AuthToken != cfg.Acquisition.AuthToken {
		t.Fatalf("expected delivery token to fall back to acquisition token")
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.Workers)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.WorkspaceDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("QUILL_TRANSCRIPTION_API_KEY", "test-key")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "quill.toml")

	type payload struct {
		Acquisition struct {
			GatewayURL       string `toml:"gateway_url"`
			DirectLimitBytes int64  `toml:"direct_limit_bytes"`
		} `toml:"acquisition"`
		Delivery struct {
			GatewayURL string `toml:"gateway_url"`
		} `toml:"delivery"`
		Transcription struct {
			SegmentSeconds int `toml:"segment_seconds"`
			Concurrency    int `toml:"concurrency"`
		} `toml:"transcription"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Acquisition.GatewayURL = "http://gateway.local/"
	custom.Acquisition.DirectLimitBytes = 1024
	custom.Delivery.GatewayURL = "http://messenger.local"
	custom.Transcription.SegmentSeconds = 600
	custom.Transcription.Concurrency = 5
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Acquisition.GatewayURL != "http://gateway.local" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Acquisition.GatewayURL)
	}
	if cfg.Acquisition.DirectLimitBytes != 1024 {
		t.Fatalf("expected direct limit override, got %d", cfg.Acquisition.DirectLimitBytes)
	}
	if cfg.Transcription.SegmentSeconds != 600 {
		t.Fatalf("expected segment seconds 600, got %d", cfg.Transcription.SegmentSeconds)
	}
	if cfg.Transcription.Concurrency != 5 {
		t.Fatalf("expected concurrency 5, got %d", cfg.Transcription.Concurrency)
	}
	if cfg.Workflow.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "quill.toml")

	type payload struct {
		Acquisition struct {
			GatewayURL string `toml:"gateway_url"`
			AuthToken  string `toml:"auth_token"`
		} `toml:"acquisition"`
		Delivery struct {
			GatewayURL string `toml:"gateway_url"`
		} `toml:"delivery"`
		Transcription struct {
			APIKey string `toml:"api_key"`
		} `toml:"transcription"`
		Formatting struct {
			APIKey string `toml:"api_key"`
		} `toml:"formatting"`
	}
	custom := payload{}
	custom.Acquisition.GatewayURL = "http://gateway.local"
	custom.Acquisition.AuthToken = "file-gateway"
	custom.Delivery.GatewayURL = "http://messenger.local"
	custom.Transcription.APIKey = "file-transcribe"
	custom.Formatting.APIKey = "file-format"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("QUILL_GATEWAY_TOKEN", "env-gateway")
	t.Setenv("QUILL_TRANSCRIPTION_API_KEY", "env-transcribe")
	t.Setenv("OPENROUTER_API_KEY", "env-format")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// File values win when present; env fills in the blanks.
	if cfg.Acquisition.AuthToken != "file-gateway" {
		t.Errorf("expected gateway token from file, got %q", cfg.Acquisition.AuthToken)
	}
	if cfg.Transcription.APIKey != "file-transcribe" {
		t.Errorf("expected transcription key from file, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Formatting.APIKey != "file-format" {
		t.Errorf("expected formatting key from file, got %q", cfg.Formatting.APIKey)
	}

	custom.Acquisition.AuthToken = ""
	custom.Transcription.APIKey = ""
	custom.Formatting.APIKey = ""
	data, err = toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, _, _, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Acquisition.AuthToken != "env-gateway" {
		t.Errorf("expected gateway token from env, got %q", cfg.Acquisition.AuthToken)
	}
	if cfg.Transcription.APIKey != "env-transcribe" {
		t.Errorf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Formatting.APIKey != "env-format" {
		t.Errorf("expected formatting key from env, got %q", cfg.Formatting.APIKey)
	}
}

func TestEnvFileSuppliesSecrets(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, "quill.env")
	if err := os.WriteFile(envPath, []byte("QUILL_TRANSCRIPTION_API_KEY=envfile-key\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	configPath := filepath.Join(tempDir, "quill.toml")
	contents := "[paths]\nenv_file = \"" + envPath + "\"\n" +
		"[acquisition]\ngateway_url = \"http://gateway.local\"\n" +
		"[delivery]\ngateway_url = \"http://messenger.local\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transcription.APIKey != "envfile-key" {
		t.Fatalf("expected transcription key from env file, got %q", cfg.Transcription.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "gateway_url") {
		t.Fatalf("sample config missing gateway_url: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Acquisition.GatewayURL = "http://gateway.local"
		cfg.Delivery.GatewayURL = "http://messenger.local"
		cfg.Transcription.APIKey = "key"
		cfg.Formatting.APIKey = "key"
		return cfg
	}

	cfg := base()
	cfg.Transcription.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing transcription key")
	}

	cfg = base()
	cfg.Workflow.HeartbeatInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat interval")
	}

	cfg = base()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}

	cfg = base()
	cfg.Acquisition.DirectLimitBytes = cfg.Acquisition.MaxSizeBytes + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when direct limit exceeds max size")
	}

	cfg = base()
	cfg.Formatting.Enabled = true
	cfg.Formatting.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when formatting enabled without API key")
	}

	cfg = base()
	cfg.Audio.SampleRate = 4000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for low sample rate")
	}
}
