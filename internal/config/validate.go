package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Metadata.validate(result)
	c.Store.validate(result)
	c.Aggregation.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)

	return result
}

func (m *MetadataConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(m.Path) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "metadata.path",
			Message: "metadata catalog path is required",
			Hint:    "point metadata.path at the SQLite catalog file",
		})
	}
}

func (s *StoreConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(s.Path) == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "store.path",
			Message: "analytical store path is empty, using an in-memory store",
			Hint:    "set store.path to a DuckDB file for persistent data",
		})
	}

	if s.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "store.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if s.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "store.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if s.Pool.MaxOpen > 0 && s.Pool.MaxIdle > s.Pool.MaxOpen {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "store.pool.max_idle",
			Message: fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", s.Pool.MaxIdle, s.Pool.MaxOpen),
			Hint:    "idle connections above max_open are never used",
		})
	}
	if s.QueryTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "store.query_timeout",
			Message: "query_timeout cannot be negative",
			Hint:    "use 0 to disable the per-query deadline",
		})
	}
}

func (a *AggregationConfig) validate(result *ValidationResult) {
	if a.HistogramBuckets < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "aggregation.histogram_buckets",
			Message: fmt.Sprintf("histogram_buckets must be at least 1, got %d", a.HistogramBuckets),
		})
	}
	if a.HistogramBuckets > 1000 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "aggregation.histogram_buckets",
			Message: fmt.Sprintf("histogram_buckets is very large (%d)", a.HistogramBuckets),
			Hint:    "charts rarely render more than a few dozen buckets",
		})
	}
	if a.ColumnConcurrency < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "aggregation.column_concurrency",
			Message: fmt.Sprintf("column_concurrency must be at least 1, got %d", a.ColumnConcurrency),
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_rps",
				Message: "rate_limit_rps must be positive when rate limiting is enabled",
			})
		}
		if s.RateLimitBurst < 1 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_burst",
				Message: "rate_limit_burst must be at least 1 when rate limiting is enabled",
			})
		}
	}

	if s.CORSEnabled && len(s.CORSAllowedOrigins) == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.cors_allowed_origins",
			Message: "CORS is enabled but no origins are allowed",
			Hint:    "browsers will reject all cross-origin requests",
		})
	}
	if s.CORSAllowCredentials {
		for _, origin := range s.CORSAllowedOrigins {
			if origin == "*" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   "server.cors_allowed_origins",
					Message: "wildcard origin cannot be combined with cors_allow_credentials",
					Hint:    "list explicit origins when credentials are allowed",
				})
				break
			}
		}
	}

	if s.ShutdownTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown_timeout cannot be negative",
		})
	}
	if s.HealthCheckTimeout <= 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.health_check_timeout",
			Message: "health_check_timeout is not set",
			Hint:    "a slow store will hang /healthz without a timeout",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio must be between 0.0 and 1.0, got %g", o.TraceSampleRatio),
		})
	}

	// OTLP protocol validation
	o.OTLP.validate("observability.otlp", result)

	// Signal-specific OTLP validation
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
