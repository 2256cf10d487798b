package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROJECT_ID", "diet-nav-test")
	t.Setenv("AGENT_ENGINE_NAME", "projects/p/locations/us-central1/reasoningEngines/1")
	t.Setenv("UPLOAD_BUCKET", "")
	t.Setenv("FRONTEND_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.Location != "us-central1" {
		t.Fatalf("unexpected defaults: port=%q location=%q", cfg.Port, cfg.Location)
	}
	if cfg.Agent.Transport != "rest" {
		t.Fatalf("expected rest transport, got %q", cfg.Agent.Transport)
	}
	if cfg.Blob.Backend != "local" {
		t.Fatalf("expected local blob backend without bucket, got %q", cfg.Blob.Backend)
	}
	if cfg.Session.Backend != "cookie" || cfg.Session.Secret == "" {
		t.Fatalf("expected cookie sessions with dev secret, got %+v", cfg.Session)
	}
	if cfg.Session.TTL != time.Hour {
		t.Fatalf("expected 1h TTL, got %v", cfg.Session.TTL)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode without FRONTEND_URL")
	}
}

func TestLoadBucketSelectsGCS(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("UPLOAD_BUCKET", "diet-nav-uploads")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Blob.Backend != "gcs" || cfg.Blob.Bucket != "diet-nav-uploads" {
		t.Fatalf("unexpected blob config %+v", cfg.Blob)
	}
	if cfg.Session.TTL != 15*time.Minute || cfg.MaxUploadBytes != 2048 {
		t.Fatalf("env overrides not applied: ttl=%v max=%d", cfg.Session.TTL, cfg.MaxUploadBytes)
	}
}

func TestLoadRejectsMissingEngine(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGENT_ENGINE_NAME", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AGENT_ENGINE_NAME cannot be empty") {
		t.Fatalf("expected engine name error, got %v", err)
	}
}

func TestLoadGRPCTransport(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGENT_ENGINE_NAME", "")
	t.Setenv("AGENT_TRANSPORT", "GRPC")
	t.Setenv("AGENT_GRPC_ADDR", "agent:50051")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Transport != "grpc" || cfg.Agent.GRPCAddr != "agent:50051" {
		t.Fatalf("unexpected agent config %+v", cfg.Agent)
	}
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FRONTEND_URL", "https://diet.example.com")
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "SESSION_SECRET cannot be empty") {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestValidateEnumsAndBounds(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Session.Backend = "redis"
	cfg.RateLimit.Burst = 0
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"SESSION_BACKEND must be one of", "RATE_LIMIT_BURST must be >= 1"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_FLAG", "yes")
	if !getEnvBool("TEST_FLAG", false) {
		t.Fatal("expected yes to parse as true")
	}
	t.Setenv("TEST_FLAG", "garbage")
	if !getEnvBool("TEST_FLAG", true) {
		t.Fatal("expected fallback on unparsable value")
	}
}
