// Package config provides configuration management for the research service.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("storedriver", validateStoreDriver)
	_ = v.RegisterValidation("sourcedriver", validateSourceDriver)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return validateCrossField(cfg)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateStoreDriver(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMemory:
		return true
	default:
		return false
	}
}

func validateSourceDriver(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case SourceDriverHTTP, SourceDriverFixture, SourceDriverPostgres:
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if cfg.NeedsDatabase() {
		var missing []string
		if cfg.Database.Host == "" {
			missing = append(missing, "host")
		}
		if cfg.Database.Port == 0 {
			missing = append(missing, "port")
		}
		if cfg.Database.Name == "" {
			missing = append(missing, "name")
		}
		if cfg.Database.User == "" {
			missing = append(missing, "user")
		}
		if len(missing) > 0 {
			return fmt.Errorf("postgres driver requires database %s", strings.Join(missing, ", "))
		}
		if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
			return fmt.Errorf("max_idle_connections cannot exceed max_connections")
		}
	}

	if cfg.Store.Driver == StoreDriverSQLite && cfg.Store.SQLitePath == "" {
		return fmt.Errorf("sqlite store requires store.sqlite_path")
	}

	switch cfg.Signals.Driver {
	case SourceDriverHTTP:
		if cfg.Signals.BaseURL == "" {
			return fmt.Errorf("http signals driver requires signals.base_url")
		}
	case SourceDriverFixture:
		if cfg.Signals.FixturePath == "" {
			return fmt.Errorf("fixture signals driver requires signals.fixture_path")
		}
	}

	if cfg.Ingest.Schedule != "" && cfg.Signals.Driver == SourceDriverPostgres {
		return fmt.Errorf("scheduled ingest needs a non-postgres signals driver to read from")
	}

	if cfg.Secrets.Enabled && cfg.Secrets.SecretName == "" {
		return fmt.Errorf("secrets.secret_name is required when secrets are enabled")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "storedriver":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: postgres, sqlite, memory\n", field)
		case "sourcedriver":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: http, fixture, postgres\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}

// ValidateEnvironment validates environment-specific requirements
func ValidateEnvironment(cfg *Config) error {
	if cfg.IsProduction() {
		if cfg.NeedsDatabase() && cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires database SSL mode to be 'require' or 'verify-full'")
		}
		if cfg.Signals.Driver == SourceDriverFixture {
			return fmt.Errorf("production environment should not read fixture signals")
		}
		if cfg.Signals.Driver == SourceDriverHTTP && isTestCredential(cfg.Signals.APIKey) {
			return fmt.Errorf("production environment should not use test signals credentials")
		}
	}
	return nil
}

var testCredentialPattern = regexp.MustCompile(`(?i)(test|demo|example|placeholder|YOUR_)`)

// isTestCredential checks if a credential looks like a test credential
func isTestCredential(credential string) bool {
	return testCredentialPattern.MatchString(credential)
}
