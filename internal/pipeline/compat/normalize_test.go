package compat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLegacy(t *testing.T) {
	renames := map[string]string{"device_id": "id"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "camera",
			in:   `{"device_id":"cam-1","last_seen":"2026-01-01T00:00:00Z"}`,
			want: `{"id":"cam-1","lastSeen":"2026-01-01T00:00:00Z"}`,
		},
		{
			name: "nested and lists",
			in:   `{"items":[{"device_id":"a","stream_info":{"frame_rate":30}}],"total_count":1}`,
			want: `{"items":[{"id":"a","streamInfo":{"frameRate":30}}],"totalCount":1}`,
		},
		{
			name: "explicit rename wins",
			in:   `{"id":"old","device_id":"new"}`,
			want: `{"id":"new"}`,
		},
		{
			name: "large numbers keep their text",
			in:   `{"serial_no":12345678901234567890}`,
			want: `{"serialNo":12345678901234567890}`,
		},
		{
			name: "scalars untouched",
			in:   `"online"`,
			want: `"online"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLegacy(json.RawMessage(tt.in), renames)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, err := NormalizeLegacy(json.RawMessage(`{broken`), nil)
	assert.Error(t, err)
}

func TestNormalizeLegacy_CollidingKeysAreDeterministic(t *testing.T) {
	renames := map[string]string{"camera_name": "name"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "camelCase key wins over converted",
			in:   `{"last_seen":"a","lastSeen":"b"}`,
			want: `{"lastSeen":"b"}`,
		},
		{
			name: "explicit rename wins over camelCase key",
			in:   `{"name":"as-is","camera_name":"renamed"}`,
			want: `{"name":"renamed"}`,
		},
		{
			name: "first converted key wins",
			in:   `{"last__seen":"b","last_seen":"a"}`,
			want: `{"lastSeen":"b"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				got, err := NormalizeLegacy(json.RawMessage(tt.in), renames)
				require.NoError(t, err)
				require.JSONEq(t, tt.want, string(got), "run %d", i)
			}
		})
	}
}

func TestSnakeToCamel(t *testing.T) {
	tests := map[string]string{
		"last_seen":        "lastSeen",
		"device_id":        "deviceId",
		"alreadyCamel":     "alreadyCamel",
		"_private":         "private",
		"trailing_":        "trailing",
		"___":              "___",
		"ip_v4_addr":       "ipV4Addr",
		"retry_after_secs": "retryAfterSecs",
		"last_été":         "lastÉté",
		"zone_ñame":        "zoneÑame",
		"cam_日本":           "cam日本",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeToCamel(in), in)
	}
}
