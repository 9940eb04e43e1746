// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for the meei CLI.
//
// Handlers always return errors; Run prints them once and maps them to an
// exit code.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/Jeffrey0117/meei"
	"github.com/Jeffrey0117/meei/internal/security"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a settings, config file or key store problem
	ExitConfigError = 3
	// ExitAuthError indicates a missing or rejected API key
	ExitAuthError = 4
	// ExitNetworkError indicates the vendor could not be reached or failed
	ExitNetworkError = 5
	// ExitNotFoundError indicates a settings key was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates a request timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "required argument missing",
		Example: usage,
	}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var ttyErr *TTYRequiredError
	var netErr net.Error

	switch {
	case errors.As(err, &validationErr), errors.As(err, &ttyErr),
		errors.Is(err, meei.ErrUnknownProvider):
		return ExitUsageError
	case errors.As(err, &notFoundErr):
		return ExitNotFoundError
	case errors.Is(err, meei.ErrTimeout):
		return ExitTimeoutError
	case errors.Is(err, meei.ErrAuthentication):
		return ExitAuthError
	case errors.Is(err, meei.ErrConfiguration), errors.Is(err, meei.ErrNotInitialized),
		errors.Is(err, meei.ErrIntegrity), errors.Is(err, security.ErrAlreadyInitialized),
		errors.Is(err, security.ErrInsecurePermissions):
		return ExitConfigError
	case errors.Is(err, meei.ErrProvider), errors.As(err, &netErr):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}

	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}

	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "%s\n", DimStyle.Render(hint))
	}
}

// DisplayErrorJSON writes err as a JSON object.
func DisplayErrorJSON(w io.Writer, err error) {
	output := map[string]interface{}{
		"error":     err.Error(),
		"success":   false,
		"exit_code": GetExitCode(err),
	}

	var validationErr *ValidationError
	var apiErr *meei.APIError
	var upErr *meei.UnknownProviderError
	switch {
	case errors.As(err, &validationErr):
		output["error_type"] = "validation_error"
		output["field"] = validationErr.Field
	case errors.As(err, &upErr):
		output["error_type"] = "unknown_provider"
		output["valid"] = upErr.Valid
	case errors.Is(err, meei.ErrAuthentication):
		output["error_type"] = "authentication_error"
	case errors.Is(err, meei.ErrRateLimit):
		output["error_type"] = "rate_limit_error"
	case errors.As(err, &apiErr):
		output["error_type"] = "api_error"
		output["status_code"] = apiErr.StatusCode
	case errors.Is(err, meei.ErrTimeout):
		output["error_type"] = "timeout_error"
	default:
		output["error_type"] = "generic_error"
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, meei.ErrNotInitialized):
		return "Run 'meei init' to create the encrypted key store."
	case errors.Is(err, meei.ErrIntegrity):
		return "The settings file could not be decrypted. Run 'meei init --force' to start over."
	case errors.Is(err, meei.ErrUnknownProvider):
		return "Run 'meei providers' to list valid names."
	case errors.Is(err, meei.ErrAuthentication):
		return "Set a key with 'meei config set <provider>.api_key <key>' or export the provider's env var."
	}
	return ""
}
