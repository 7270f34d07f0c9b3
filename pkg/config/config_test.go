package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const validConfig = `
database:
  dsn: "file:registry.db?_pragma=busy_timeout(5000)"
embedding:
  endpoint: "http://localhost:9000/v1/embeddings"
  model: "text-embed-small"
  dimension: 768
vector_store:
  url: "http://localhost:8081"
llm_gateway:
  url: "http://localhost:9001"
  default_model: "gpt-test"
admin:
  api_key: "test-key"
`

func TestLoad_Valid(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 768, cfg.Embedding.Dimension)
	require.Equal(t, 5, cfg.Retrieval.DefaultLimit)
	require.Equal(t, 0.7, cfg.Retrieval.HybridAlpha)
	require.Contains(t, cfg.Python.DenyPrefixes, "subprocess")
}

func TestLoad_MissingRequiredField(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
database:
  dsn: "file:registry.db"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ZeroEmbeddingDimensionRejected(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
database:
  dsn: "file:registry.db"
embedding:
  endpoint: "http://localhost:9000/v1/embeddings"
  model: "text-embed-small"
  dimension: 0
vector_store:
  url: "http://localhost:8081"
llm_gateway:
  url: "http://localhost:9001"
  default_model: "gpt-test"
admin:
  api_key: "test-key"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ProductionRejectsWildcardCORS(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, validConfig+`
production: true
server:
  cors_origins: ["*"]
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_DefaultTimeoutOrderingEnforced(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, validConfig+`
execution:
  default_call_timeout: 60s
  max_call_timeout: 30s
`)

	_, err := Load(path)
	require.Error(t, err)
}
