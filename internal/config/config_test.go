package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_JSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"endpoints": [{"name": "portal", "url": "https://example.bitrix24.com/rest/1/secret/"}]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.MaxBatchSize != DefaultMaxBatchSize {
		t.Errorf("MaxBatchSize = %d", cfg.MaxBatchSize)
	}
	if !cfg.RetryEnabled {
		t.Error("RetryEnabled should default to true")
	}
	if cfg.Endpoints[0].Role != RoleMain || cfg.Endpoints[0].Weight != 1 {
		t.Errorf("endpoint defaults = %+v", cfg.Endpoints[0])
	}
	if cfg.GetRequestTimeoutDuration().Seconds() != 30 {
		t.Errorf("request timeout = %v", cfg.GetRequestTimeoutDuration())
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logLevel: debug
retryEnabled: false
batchConcurrency: 4
cache:
  enabled: true
batching:
  enabled: true
  maxSize: 20
endpoints:
  - name: primary
    url: https://a.bitrix24.com/rest/1/x/
  - name: backup
    url: https://b.bitrix24.com/rest/1/y/
    role: fallback
    weight: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.BatchConcurrency != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RetryEnabled {
		t.Error("explicit retryEnabled: false was overridden")
	}
	if !cfg.IsCacheEnabled() || cfg.Cache.TTL != DefaultCacheTTL || cfg.Cache.Size != DefaultCacheSize {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.IsBatchingEnabled() || cfg.Batching.MaxSize != 20 || cfg.Batching.GetMaxWaitDuration().Milliseconds() != DefaultBatchingMaxWait {
		t.Errorf("batching = %+v", cfg.Batching)
	}
	if cfg.Endpoints[1].Role != RoleFallback || cfg.Endpoints[1].Weight != 3 {
		t.Errorf("backup endpoint = %+v", cfg.Endpoints[1])
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no endpoints", `{}`, "at least one endpoint"},
		{"duplicate names", `{"endpoints":[{"name":"a","url":"https://x/"},{"name":"a","url":"https://y/"}]}`, "duplicate"},
		{"relative url", `{"endpoints":[{"name":"a","url":"/rest/1/x"}]}`, "absolute"},
		{"bad role", `{"endpoints":[{"name":"a","url":"https://x/","role":"spare"}]}`, "role"},
		{"batch too large", `{"maxBatchSize":51,"endpoints":[{"name":"a","url":"https://x/"}]}`, "maxBatchSize"},
		{"coalesced batch too large", `{"batching":{"enabled":true,"maxSize":60},"endpoints":[{"name":"a","url":"https://x/"}]}`, "batching.maxSize"},
		{"bad log level", `{"logLevel":"trace","endpoints":[{"name":"a","url":"https://x/"}]}`, "logLevel"},
		{"bad json", `{`, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.json", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithEnv_WebhookFromEnv(t *testing.T) {
	t.Setenv(EnvWebhookURL, "https://env.bitrix24.com/rest/7/token/")
	t.Setenv(EnvLogLevel, "WARN")

	cfg, err := LoadWithEnv("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].URL != "https://env.bitrix24.com/rest/7/token/" {
		t.Errorf("endpoints = %+v", cfg.Endpoints)
	}
	if cfg.Endpoints[0].Name != DefaultEndpointName {
		t.Errorf("name = %s", cfg.Endpoints[0].Name)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
}

func TestLoadWithEnv_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := EnvWebhookURL + "=https://dotenv.bitrix24.com/rest/\n" + EnvAuthToken + "=oauth-token\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// godotenv never overrides variables that are already set
	t.Setenv(EnvWebhookURL, "")
	os.Unsetenv(EnvWebhookURL)
	t.Setenv(EnvAuthToken, "")
	os.Unsetenv(EnvAuthToken)

	cfg, err := LoadWithEnv("", envPath)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Endpoints[0].URL != "https://dotenv.bitrix24.com/rest/" || cfg.Endpoints[0].AuthToken != "oauth-token" {
		t.Errorf("endpoint = %+v", cfg.Endpoints[0])
	}
}

func TestLoadWithEnv_UnreadableEnvFile(t *testing.T) {
	t.Setenv(EnvWebhookURL, "https://env.bitrix24.com/rest/7/token/")

	// a directory opens fine but cannot be read as a file
	dir := t.TempDir()
	_, err := LoadWithEnv("", dir)
	if err == nil {
		t.Fatal("LoadWithEnv succeeded with a directory as .env file")
	}
	if !strings.Contains(err.Error(), "failed to load env file") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadWithEnv_MissingEnvFileSkipped(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "present.env")
	if err := os.WriteFile(envPath, []byte(EnvAuthToken+"=second-file-token\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvWebhookURL, "https://env.bitrix24.com/rest/")
	t.Setenv(EnvAuthToken, "")
	os.Unsetenv(EnvAuthToken)

	cfg, err := LoadWithEnv("", filepath.Join(dir, "missing.env"), envPath)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Endpoints[0].AuthToken != "second-file-token" {
		t.Errorf("AuthToken = %q, want value from the file after the missing one", cfg.Endpoints[0].AuthToken)
	}
}
