package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("QDRANT_URL", "https://qdrant.example.com:6334")
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	setRequired(t)
	t.Setenv("CATALOG_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid CATALOG_PORT")
	}
	if got := err.Error(); !contains(got, "CATALOG_PORT") || !contains(got, "abc") {
		t.Fatalf("error should mention CATALOG_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	setRequired(t)
	t.Setenv("CATALOG_PORT", "abc")
	t.Setenv("CATALOG_EMBEDDING_DIMENSIONS", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "CATALOG_PORT") {
		t.Fatalf("error should mention CATALOG_PORT, got: %s", got)
	}
	if !contains(got, "CATALOG_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention CATALOG_EMBEDDING_DIMENSIONS, got: %s", got)
	}
}

func TestLoadFailsWithoutQdrantURL(t *testing.T) {
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail without QDRANT_URL")
	}
	if !contains(err.Error(), "QDRANT_URL") {
		t.Fatalf("error should mention QDRANT_URL, got: %s", err.Error())
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.EmbeddingDimensions != 384 {
		t.Fatalf("expected default embedding dimensions 384, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.EmbeddingProvider != "auto" {
		t.Fatalf("expected default embedding provider %q, got %q", "auto", cfg.EmbeddingProvider)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_RejectsUnknownEmbeddingProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("CATALOG_EMBEDDING_PROVIDER", "bogus")

	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail for an unrecognized embedding provider")
	}
	if !contains(err.Error(), "bogus") {
		t.Fatalf("error should mention the bad value, got: %s", err.Error())
	}
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	setRequired(t)
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_EmbeddingProviderSelection(t *testing.T) {
	setRequired(t)
	t.Setenv("CATALOG_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.EmbeddingProvider != "ollama" {
		t.Fatalf("expected EmbeddingProvider %q, got %q", "ollama", cfg.EmbeddingProvider)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Fatalf("expected OllamaURL %q, got %q", "http://localhost:11434", cfg.OllamaURL)
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("CATALOG_PORT", "9090")
	t.Setenv("QDRANT_URL", "https://qdrant.example.com:6334")
	t.Setenv("QDRANT_COLLECTION", "test_sources")
	t.Setenv("CATALOG_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("OTEL_SERVICE_NAME", "catalog-test")
	t.Setenv("CATALOG_LOG_LEVEL", "debug")
	t.Setenv("CATALOG_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("CATALOG_OPA_PATH", "/usr/local/bin/opa")
	t.Setenv("CATALOG_POLICY_TIMEOUT", "9s")
	t.Setenv("CATALOG_DISPATCH_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.Port != 9090 {
		t.Fatalf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.QdrantCollection != "test_sources" {
		t.Fatalf("expected QdrantCollection %q, got %q", "test_sources", cfg.QdrantCollection)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("expected EmbeddingDimensions 768, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ServiceName != "catalog-test" {
		t.Fatalf("expected ServiceName %q, got %q", "catalog-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %d", len(cfg.CORSAllowedOrigins))
	}
	if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
		t.Fatalf("expected first CORS origin %q, got %q", "https://a.example.com", cfg.CORSAllowedOrigins[0])
	}
	if cfg.OPAPath != "/usr/local/bin/opa" {
		t.Fatalf("expected OPAPath %q, got %q", "/usr/local/bin/opa", cfg.OPAPath)
	}
	if cfg.PolicyTimeout != 9*time.Second {
		t.Fatalf("expected PolicyTimeout 9s, got %s", cfg.PolicyTimeout)
	}
	if cfg.DispatchTimeout != 45*time.Second {
		t.Fatalf("expected DispatchTimeout 45s, got %s", cfg.DispatchTimeout)
	}
}
