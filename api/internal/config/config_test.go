package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DRIVER", "CLASSIFIER_ENGINE", "PIPELINE_TIMEOUT", "CORS_ORIGINS", "IMAGE_STORE"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, "gemini", cfg.ClassifierEngine)
	assert.Equal(t, "inline", cfg.ImageStore)
	assert.Equal(t, 2*time.Minute, cfg.PipelineTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("CLASSIFIER_ENGINE", "yolo")
	t.Setenv("PIPELINE_TIMEOUT", "45s")
	t.Setenv("STORE_POLL_INTERVAL", "nonsense")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "yolo", cfg.ClassifierEngine)
	assert.Equal(t, 45*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, 5*time.Second, cfg.StorePollInterval)
	assert.True(t, cfg.S3PathStyle)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
