// Package config loads the gateway configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
)

// Server modes.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Config for the gateway. Defaults are provided via struct tags.
type Config struct {
	// Mode selects the transport. ENV: MCP_SERVER_MODE
	Mode string `env:"MCP_SERVER_MODE,default=http" validate:"oneof=http stdio"`
	// Port the HTTP listener binds. ENV: PORT
	Port int `env:"PORT,default=3000" validate:"min=1,max=65535"`
	// Path the protocol endpoint is mounted on. ENV: MCP_PATH
	Path string `env:"MCP_PATH,default=/mcp" validate:"required,startswith=/"`
	// BaseURL of the Respond.io REST API. ENV: RESPONDIO_BASE_URL
	BaseURL string `env:"RESPONDIO_BASE_URL,default=https://api.respond.io/v2" validate:"required,url"`
	// APIKey is the fallback upstream credential; stdio mode requires it.
	// ENV: RESPONDIO_API_KEY
	APIKey string `env:"RESPONDIO_API_KEY" validate:"required_if=Mode stdio"`
	// Debug lowers the log level and adds error chains to tool errors. ENV: DEBUG
	Debug bool `env:"DEBUG"`

	SessionIdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT,default=30m" validate:"min=0"`
	UpstreamTimeout     time.Duration `env:"UPSTREAM_TIMEOUT,default=30s" validate:"gt=0"`
	UpstreamMaxRetries  int           `env:"UPSTREAM_MAX_RETRIES,default=3" validate:"min=0,max=10"`
	UpstreamRetryDelay  time.Duration `env:"UPSTREAM_RETRY_DELAY,default=1s" validate:"min=0"`
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL,default=10m" validate:"min=0"`
	NumericIDMaxDigits  int           `env:"RESPONDIO_NUMERIC_ID_MAX_DIGITS,default=5" validate:"min=1,max=15"`
}

// Load decodes the configuration from the environment. It does not validate;
// callers apply flag overrides first and then call Validate.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate checks c and reports every problem in one error, naming fields by
// their environment variable.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to readable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return fmt.Errorf("config: %s", strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, strings.Replace(e.Param(), " ", "=", 1))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "min", "gt":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
