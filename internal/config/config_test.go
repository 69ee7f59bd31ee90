package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	var cfg Config
	require.NoError(t, v.UnmarshalExact(&cfg))
	return &cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	result := cfg.Validate()
	assert.False(t, result.HasErrors(), "default config must validate: %s", result.Error())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Aggregation.HistogramBuckets)
	assert.Equal(t, 4, cfg.Aggregation.ColumnConcurrency)
	assert.Equal(t, "datascope", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
}

func TestValidate_MetadataPathRequired(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Metadata.Path = " "

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "metadata.path")
}

func TestValidate_EmptyStorePathWarns(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Store.Path = ""

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "store.path", result.Warnings[0].Field)
}

func TestValidate_RateLimitRequiresRPS(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Server.RateLimitEnabled = true

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "rate_limit_rps")
	assert.Contains(t, result.Error(), "rate_limit_burst")
}

func TestValidate_WildcardOriginWithCredentials(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Server.CORSEnabled = true
	cfg.Server.CORSAllowedOrigins = []string{"*"}
	cfg.Server.CORSAllowCredentials = true

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "cors_allowed_origins")
}

func TestValidate_HistogramBuckets(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Aggregation.HistogramBuckets = 0

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "histogram_buckets")
}

func TestValidate_TraceSampleRatioRange(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Observability.TraceSampleRatio = 1.5

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "trace_sample_ratio")
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Observability.Logging.Level = "verbose"

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "observability.logging.level")
}

func TestGetTracesConfig_MergesSignalOverrides(t *testing.T) {
	obs := ObservabilityConfig{
		OTLP: OTLPConfig{
			Endpoint: "collector:4317",
			Protocol: "grpc",
			Timeout:  10 * time.Second,
			Headers:  map[string]string{"x-team": "data"},
		},
		Traces: &OTLPConfig{
			Endpoint: "traces-collector:4317",
			Headers:  map[string]string{"x-signal": "traces"},
		},
	}

	traces := obs.GetTracesConfig()
	assert.Equal(t, "traces-collector:4317", traces.Endpoint)
	assert.Equal(t, "grpc", traces.Protocol)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, "data", traces.Headers["x-team"])
	assert.Equal(t, "traces", traces.Headers["x-signal"])

	logs := obs.GetLogsConfig()
	assert.Equal(t, "collector:4317", logs.Endpoint)
}

func TestStringToStringSliceHook(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("server.cors_allowed_origins", "https://a.example, https://b.example")

	var cfg Config
	require.NoError(t, v.UnmarshalExact(&cfg, viper.DecodeHook(stringToStringSliceHookFunc(","))))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
}
