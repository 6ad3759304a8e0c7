package taxonomy

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code   string
		expect Category
	}{
		{"UNAUTHORIZED", CategoryAuth},
		{"OTP_EXPIRED", CategoryAuth},
		{"SESSION_NOT_RECOVERABLE", CategorySession},
		{"DEVICE_NOT_IN_ALLOWLIST", CategoryDevice},
		{"DEVICE_TIMEOUT", CategoryDevice},
		{"CAPTURE_TIMEOUT", CategoryCamera},
		{"REBOOT_FAILED", CategoryCamera},
		{"CIRCUIT_OPEN", CategoryNetwork},
		{"RATE_LIMITED", CategoryNetwork},
		{"MISSING_PARAMETER", CategoryValidation},
		{"MQTT_UNAVAILABLE", CategoryInfrastructure},
		{" internal_error ", CategoryInfrastructure},
		{"HTTP_ERROR", CategoryUnknown},
		{"SOMETHING_NEW", CategoryUnknown},
		{"", CategoryUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.code); got != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.code, got, tt.expect)
		}
	}
}

func TestUserMessage_FallsBackToGeneric(t *testing.T) {
	assert.Equal(t, GenericMessage, UserMessage("NOT_A_REAL_CODE"))
	assert.NotEqual(t, GenericMessage, UserMessage(CodeCameraOffline))
}

func TestEveryKnownCodeHasDisplayText(t *testing.T) {
	for _, code := range KnownCodes() {
		assert.NotEqual(t, GenericMessage, UserMessage(code), "code %s", code)
	}
}

func TestFromDescriptor_CarriesServerRetryability(t *testing.T) {
	after := 12.5
	d := Descriptor{
		Code:              "RATE_LIMITED",
		Message:           "slow down",
		Retryable:         true,
		RetryAfterSeconds: &after,
		Details:           "bucket=global",
	}

	e := FromDescriptor(d, "corr-1")

	assert.Equal(t, "RATE_LIMITED", e.Code)
	assert.Equal(t, CategoryNetwork, e.Category())
	assert.True(t, e.Retryable)
	require.NotNil(t, e.RetryAfterSeconds)
	assert.Equal(t, 12.5, *e.RetryAfterSeconds)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "bucket=global", e.Details)
	assert.Equal(t, UserMessage("RATE_LIMITED"), e.UserMessage())

	// A server may declare a normally transient code as non-retryable.
	e = FromDescriptor(Descriptor{Code: "NETWORK_ERROR", Retryable: false}, "")
	assert.False(t, e.Retryable)
	assert.Nil(t, e.RetryAfterSeconds)
}

func TestDescriptor_UnmarshalDetails(t *testing.T) {
	var d Descriptor
	require.NoError(t, json.Unmarshal([]byte(`{"code":"X","message":"m","retryable":false,"details":"plain"}`), &d))
	assert.Equal(t, "plain", d.Details)

	require.NoError(t, json.Unmarshal([]byte(`{"code":"X","message":"m","retryable":true,"details":{"field":"name"}}`), &d))
	assert.Equal(t, `{"field":"name"}`, d.Details)
	assert.True(t, d.Retryable)

	require.NoError(t, json.Unmarshal([]byte(`{"code":"X","message":"m","retryable":false}`), &d))
	assert.Empty(t, d.Details)
}

func TestClassifiedError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := New(CodeNetworkError, "dial failed", WithCause(cause), WithHTTPStatus(0))

	assert.ErrorIs(t, e, cause)

	wrapped := errors.Join(errors.New("outer"), e)
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestClassifiedError_ErrorString(t *testing.T) {
	e := New("camera_offline", "cam-1 offline", WithCorrelationID("abc"))
	assert.Equal(t, "CAMERA_OFFLINE [camera]: cam-1 offline (correlation_id=abc)", e.Error())
}
