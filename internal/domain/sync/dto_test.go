package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChangesResponse(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantCount     int
		wantNextSince string
		wantHasMore   bool
		wantErr       bool
	}{
		{
			name:          "bare array shape",
			body:          `[{"domain":"product","server_id":7,"payload":{"name":"Кофе"},"version":1},{"domain":"product","server_id":9,"payload":{"name":"Чай"},"version":2}]`,
			wantCount:     2,
			wantNextSince: "9",
		},
		{
			name:          "records envelope shape",
			body:          `{"status":"Ok","records":[{"domain":"sale","server_id":42,"version":1}],"next_since":"42","has_more":true}`,
			wantCount:     1,
			wantNextSince: "42",
			wantHasMore:   true,
		},
		{
			name:          "legacy data array shape",
			body:          `{"data":[{"domain":"product","server_id":3,"version":1}],"next_since":"3"}`,
			wantCount:     1,
			wantNextSince: "3",
		},
		{
			name:          "legacy paginated data shape",
			body:          `{"data":{"items":[{"domain":"product","server_id":5,"version":1}],"next_since":"5","has_more":true}}`,
			wantCount:     1,
			wantNextSince: "5",
			wantHasMore:   true,
		},
		{
			name:      "empty envelope",
			body:      `{"status":"Ok"}`,
			wantCount: 0,
		},
		{
			name:    "garbage",
			body:    `<!doctype html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseChangesResponse([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.Records, tt.wantCount)
			assert.Equal(t, tt.wantNextSince, resp.NextSince)
			assert.Equal(t, tt.wantHasMore, resp.HasMore)
		})
	}
}

func TestParseChangesResponse_ServerError(t *testing.T) {
	resp, err := ParseChangesResponse([]byte(`{"status":"Error","error":"domain unknown"}`))
	require.NoError(t, err)
	assert.Equal(t, "Error", resp.Status)
	assert.Equal(t, "domain unknown", resp.Error)
}
