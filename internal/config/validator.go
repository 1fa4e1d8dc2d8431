package config

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "client_id.start")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// maxClientID is the largest identifier the gateway accepts (a signed 32-bit int).
const maxClientID = math.MaxInt32

// maxPathLength is a conservative limit shared by most filesystems.
const maxPathLength = 4096

// ValidModes returns the list of valid client ID modes
func ValidModes() []string {
	return []string{ModeAuto, ModeFixed}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateClientID()...)
	errors = append(errors, c.validateLocks()...)
	errors = append(errors, c.validateAllocation()...)
	errors = append(errors, c.validateGateway()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

func (c *Config) validateClientID() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidModes(), strings.ToLower(c.ClientID.Mode)) {
		errors = append(errors, ValidationError{
			Field:   "client_id.mode",
			Value:   c.ClientID.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	if c.ClientID.Start < 0 || c.ClientID.Start > maxClientID {
		errors = append(errors, ValidationError{
			Field:   "client_id.start",
			Value:   c.ClientID.Start,
			Message: fmt.Sprintf("must be between 0 and %d", maxClientID),
		})
	}

	// A missing fixed ID is reported at acquisition time, where the tool
	// name is known; only the range is checked here.
	if c.ClientID.Fixed != nil && (*c.ClientID.Fixed < 0 || *c.ClientID.Fixed > maxClientID) {
		errors = append(errors, ValidationError{
			Field:   "client_id.fixed",
			Value:   *c.ClientID.Fixed,
			Message: fmt.Sprintf("must be between 0 and %d", maxClientID),
		})
	}

	return errors
}

func (c *Config) validateLocks() []ValidationError {
	return validatePath("locks.dir", c.Locks.Dir)
}

func (c *Config) validateAllocation() []ValidationError {
	var errors []ValidationError

	if c.Allocation.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "allocation.timeout",
			Value:   c.Allocation.Timeout,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateGateway() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Gateway.Host) == "" {
		errors = append(errors, ValidationError{
			Field:   "gateway.host",
			Value:   c.Gateway.Host,
			Message: "must not be empty",
		})
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "gateway.port",
			Value:   c.Gateway.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if c.Gateway.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "gateway.timeout",
			Value:   c.Gateway.Timeout,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	errors = append(errors, validatePath("logging.dir", c.Logging.Dir)...)

	return errors
}

func (c *Config) validateMetrics() []ValidationError {
	path := c.Metrics.Textfile
	if path == "" {
		return nil
	}

	errors := validatePath("metrics.textfile", path)

	// node_exporter's textfile collector only picks up *.prom files
	if filepath.Ext(path) != ".prom" {
		errors = append(errors, ValidationError{
			Field:   "metrics.textfile",
			Value:   path,
			Message: "must have a .prom extension",
		})
	}

	return errors
}

func validatePath(field, path string) []ValidationError {
	var errors []ValidationError

	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
