package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// Secret material carries json:"-" so it can never leak through an API
// response or a log line that serializes the struct.
func TestSecretFieldsNeverSerialize(t *testing.T) {
	cases := []struct {
		name   string
		value  any
		secret string
	}{
		{
			name:   "api key hash",
			value:  &APIKey{ID: "key-1", KeyHash: "deadbeef-key-hash"},
			secret: "deadbeef-key-hash",
		},
		{
			name:   "session token hash",
			value:  &Session{ID: "sess-1", TokenHash: "deadbeef-token-hash"},
			secret: "deadbeef-token-hash",
		},
		{
			name:   "session csrf token",
			value:  &Session{ID: "sess-1", CSRFToken: "deadbeef-csrf"},
			secret: "deadbeef-csrf",
		},
		{
			name:   "user password hash",
			value:  &User{ID: "user-1", PasswordHash: "$2a$10$deadbeef"},
			secret: "$2a$10$deadbeef",
		},
		{
			name:   "webhook event payload",
			value:  &WebhookEvent{ID: "evt-1", Payload: `{"card":"4242"}`},
			secret: "4242",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.value)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if strings.Contains(string(data), tc.secret) {
				t.Errorf("serialized form leaks secret: %s", data)
			}
		})
	}
}

func TestJob_JSONSerialization(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	done := now.Add(5 * time.Second)
	job := &Job{
		ID:          "5f0c2b9e-8a47-4c11-9d3e-2b7f4a6c8d10",
		TenantID:    "tenant-1",
		Kind:        JobKindPDF,
		Status:      JobStatusCompleted,
		SourceKind:  SourceKindURL,
		SourceURL:   "https://example.com/invoice",
		Format:      "pdf",
		FileSize:    4096,
		PageCount:   2,
		ExpiresAt:   now.Add(24 * time.Hour),
		CreatedAt:   now,
		CompletedAt: &done,
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Job
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Kind != JobKindPDF || decoded.Status != JobStatusCompleted {
		t.Errorf("round trip lost kind/status: %+v", decoded)
	}
	if decoded.CompletedAt == nil || !decoded.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", decoded.CompletedAt, done)
	}
}

func TestJob_OmitsEmptyOptionalFields(t *testing.T) {
	job := &Job{
		ID:        "3d9a1f42-6b0e-4e7d-8c55-91af2e4b7c63",
		TenantID:  "tenant-1",
		Kind:      JobKindScreenshot,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, field := range []string{"error", "download_url", "completed_at", "page_count", "webhook_url"} {
		if strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("expected %q omitted when empty: %s", field, data)
		}
	}
}
