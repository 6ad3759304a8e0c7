// Package taxonomy classifies machine error codes returned by the fleet backend.
//
// The package contains:
//   - Category: the closed set of error families
//   - Classify / UserMessage: total lookups over the static code tables
//   - ClassifiedError: the runtime error value surfaced to callers
package taxonomy

import "strings"

// Category groups error codes into families the dashboard handles alike.
type Category string

const (
	CategoryAuth           Category = "auth"
	CategorySession        Category = "session"
	CategoryDevice         Category = "device"
	CategoryCamera         Category = "camera"
	CategoryNetwork        Category = "network"
	CategoryValidation     Category = "validation"
	CategoryInfrastructure Category = "infrastructure"
	CategoryUnknown        Category = "unknown"
)

// Wire error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeOTPInvalid   = "OTP_INVALID"
	CodeOTPExpired   = "OTP_EXPIRED"

	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeSessionExpired        = "SESSION_EXPIRED"
	CodeSessionAlreadyActive  = "SESSION_ALREADY_ACTIVE"
	CodeSessionAlreadyClosed  = "SESSION_ALREADY_CLOSED"
	CodeSessionNotRecoverable = "SESSION_NOT_RECOVERABLE"

	CodeDeviceNotFound            = "DEVICE_NOT_FOUND"
	CodeDeviceNotInAllowlist      = "DEVICE_NOT_IN_ALLOWLIST"
	CodeDeviceAlreadyProvisioning = "DEVICE_ALREADY_PROVISIONING"
	CodeDeviceInvalidState        = "DEVICE_INVALID_STATE"
	CodeDeviceMaxRetries          = "DEVICE_MAX_RETRIES"
	CodeDeviceUnreachable         = "DEVICE_UNREACHABLE"
	CodeDeviceRejected            = "DEVICE_REJECTED"
	CodeDeviceTimeout             = "DEVICE_TIMEOUT"

	CodeCameraOffline  = "CAMERA_OFFLINE"
	CodeCameraNotFound = "CAMERA_NOT_FOUND"
	CodeCaptureFailed  = "CAPTURE_FAILED"
	CodeCaptureTimeout = "CAPTURE_TIMEOUT"
	CodeRebootFailed   = "REBOOT_FAILED"

	CodeNetworkError   = "NETWORK_ERROR"
	CodeCircuitOpen    = "CIRCUIT_OPEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeRequestTimeout = "REQUEST_TIMEOUT" // client-side attempt timeout

	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeMissingParameter = "MISSING_PARAMETER"

	CodeMQTTUnavailable    = "MQTT_UNAVAILABLE"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeRouteMisconfigured = "ROUTE_MISCONFIGURED" // HTML catch-all answered an API path
	CodeMalformedResponse  = "MALFORMED_RESPONSE"

	// CodeHTTPError is a bare HTTP failure with no envelope. It is not part of
	// any category and classifies as unknown.
	CodeHTTPError = "HTTP_ERROR"
)

var categories = map[string]Category{
	CodeUnauthorized: CategoryAuth,
	CodeOTPInvalid:   CategoryAuth,
	CodeOTPExpired:   CategoryAuth,

	CodeSessionNotFound:       CategorySession,
	CodeSessionExpired:        CategorySession,
	CodeSessionAlreadyActive:  CategorySession,
	CodeSessionAlreadyClosed:  CategorySession,
	CodeSessionNotRecoverable: CategorySession,

	CodeDeviceNotFound:            CategoryDevice,
	CodeDeviceNotInAllowlist:      CategoryDevice,
	CodeDeviceAlreadyProvisioning: CategoryDevice,
	CodeDeviceInvalidState:        CategoryDevice,
	CodeDeviceMaxRetries:          CategoryDevice,
	CodeDeviceUnreachable:         CategoryDevice,
	CodeDeviceRejected:            CategoryDevice,
	CodeDeviceTimeout:             CategoryDevice,

	CodeCameraOffline:  CategoryCamera,
	CodeCameraNotFound: CategoryCamera,
	CodeCaptureFailed:  CategoryCamera,
	CodeCaptureTimeout: CategoryCamera,
	CodeRebootFailed:   CategoryCamera,

	CodeNetworkError:   CategoryNetwork,
	CodeCircuitOpen:    CategoryNetwork,
	CodeRateLimited:    CategoryNetwork,
	CodeRequestTimeout: CategoryNetwork,

	CodeValidationFailed: CategoryValidation,
	CodeInvalidRequest:   CategoryValidation,
	CodeMissingParameter: CategoryValidation,

	CodeMQTTUnavailable:    CategoryInfrastructure,
	CodeDatabaseError:      CategoryInfrastructure,
	CodeInternalError:      CategoryInfrastructure,
	CodeRouteMisconfigured: CategoryInfrastructure,
	CodeMalformedResponse:  CategoryInfrastructure,
}

// GenericMessage is shown for any code without a registered display text.
const GenericMessage = "Something went wrong. Please try again or contact support if the problem persists."

var userMessages = map[string]string{
	CodeUnauthorized: "Your session is not authorized. Check the API key and sign in again.",
	CodeOTPInvalid:   "The one-time code is incorrect.",
	CodeOTPExpired:   "The one-time code has expired. Request a new one.",

	CodeSessionNotFound:       "The provisioning session could not be found.",
	CodeSessionExpired:        "The provisioning session has expired. Start a new one.",
	CodeSessionAlreadyActive:  "A provisioning session is already active.",
	CodeSessionAlreadyClosed:  "This provisioning session is already closed.",
	CodeSessionNotRecoverable: "The provisioning session cannot be recovered. Start a new one.",

	CodeDeviceNotFound:            "The device could not be found.",
	CodeDeviceNotInAllowlist:      "This device is not on the allowlist.",
	CodeDeviceAlreadyProvisioning: "The device is already being provisioned.",
	CodeDeviceInvalidState:        "The device is not in a state that allows this action.",
	CodeDeviceMaxRetries:          "The device exceeded the maximum number of retries.",
	CodeDeviceUnreachable:         "The device is unreachable. Check that it is powered and online.",
	CodeDeviceRejected:            "The device rejected the request.",
	CodeDeviceTimeout:             "The device did not respond in time.",

	CodeCameraOffline:  "The camera is offline.",
	CodeCameraNotFound: "The camera could not be found.",
	CodeCaptureFailed:  "The camera failed to capture an image.",
	CodeCaptureTimeout: "The camera took too long to capture an image.",
	CodeRebootFailed:   "The camera could not be rebooted.",

	CodeNetworkError:   "A network error occurred. Check your connection and try again.",
	CodeCircuitOpen:    "The service is temporarily unavailable. Try again shortly.",
	CodeRateLimited:    "Too many requests. Wait a moment and try again.",
	CodeRequestTimeout: "The request timed out. Try again.",

	CodeValidationFailed: "Some of the submitted values are invalid.",
	CodeInvalidRequest:   "The request was invalid.",
	CodeMissingParameter: "A required value is missing.",

	CodeMQTTUnavailable:    "The device messaging service is unavailable.",
	CodeDatabaseError:      "The server could not access its data store.",
	CodeInternalError:      "The server encountered an internal error.",
	CodeRouteMisconfigured: "This feature is not available on the connected server.",
	CodeMalformedResponse:  "The server returned an unexpected response.",
}

// Normalize canonicalizes a wire code for table lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Classify returns the category of code. Unknown codes map to CategoryUnknown.
func Classify(code string) Category {
	if c, ok := categories[Normalize(code)]; ok {
		return c
	}
	return CategoryUnknown
}

// UserMessage returns display text for code, or GenericMessage when none is registered.
func UserMessage(code string) string {
	if m, ok := userMessages[Normalize(code)]; ok {
		return m
	}
	return GenericMessage
}

// KnownCodes returns every code that belongs to a category.
func KnownCodes() []string {
	out := make([]string, 0, len(categories))
	for code := range categories {
		out = append(out, code)
	}
	return out
}
