package conformance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestIsUUID(t *testing.T) {
	assert.True(t, isUUID("8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1"))
	assert.False(t, isUUID("not-a-uuid"))
	assert.False(t, isUUID(""))
}

func TestRequireString(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		key     string
		wantErr string
	}{
		{"present string", `{"status": "open"}`, "status", ""},
		{"empty string is still a string", `{"status": ""}`, "status", ""},
		{"absent", `{}`, "status", "missing field: status"},
		{"number", `{"status": 3}`, "status", "invalid field: status"},
		{"null", `{"status": null}`, "status", "invalid field: status"},
		{"object", `{"status": {}}`, "status", "invalid field: status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := requireString(gjson.Parse(tt.json), tt.key)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestRequireBool(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"true", `{"ok": true}`, ""},
		{"false", `{"ok": false}`, ""},
		{"absent", `{}`, "missing field: ok"},
		{"string", `{"ok": "true"}`, "invalid field: ok"},
		{"number", `{"ok": 1}`, "invalid field: ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := requireBool(gjson.Parse(tt.json), "ok")
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestRequireStringArray(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"strings", `{"capabilities": ["inbox", "intents"]}`, ""},
		{"empty array", `{"capabilities": []}`, ""},
		{"absent", `{}`, "missing field: capabilities"},
		{"not an array", `{"capabilities": "inbox"}`, "invalid field: capabilities"},
		{"mixed elements", `{"capabilities": ["inbox", 2]}`, "invalid field: capabilities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := requireStringArray(gjson.Parse(tt.json), "capabilities")
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

const validThreadJSON = `{
	"thread_id": "th_1",
	"status": "open",
	"owner_agent": "agent://user/alice",
	"counterparty_agent": "agent://service/axme",
	"created_at": "2024-01-01T00:00:00Z",
	"updated_at": "2024-01-01T00:00:00Z",
	"timeline": [{"kind": "message", "text": "hi"}]
}`

func TestValidateThread(t *testing.T) {
	require.NoError(t, validateThread(gjson.Parse(validThreadJSON)))

	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{"missing thread_id", `{"status":"open","owner_agent":"a","counterparty_agent":"b","created_at":"t","updated_at":"t","timeline":[{}]}`, "missing field: thread_id"},
		{"numeric status", `{"thread_id":"th_1","status":1,"owner_agent":"a","counterparty_agent":"b","created_at":"t","updated_at":"t","timeline":[{}]}`, "invalid field: status"},
		{"missing timeline", `{"thread_id":"th_1","status":"open","owner_agent":"a","counterparty_agent":"b","created_at":"t","updated_at":"t"}`, "missing field: timeline"},
		{"empty timeline", `{"thread_id":"th_1","status":"open","owner_agent":"a","counterparty_agent":"b","created_at":"t","updated_at":"t","timeline":[]}`, "invalid field: timeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, validateThread(gjson.Parse(tt.mutate)), tt.wantErr)
		})
	}
}

const validSubscriptionJSON = `{
	"subscription_id": "8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1",
	"owner_agent": "agent://user/alice",
	"url": "https://hooks.example.test/inbound",
	"event_types": ["message.created"],
	"active": true,
	"created_at": "2024-01-01T00:00:00Z",
	"updated_at": "2024-01-01T00:00:00Z",
	"secret_hint": "...abcd"
}`

func TestValidateSubscription(t *testing.T) {
	valid := gjson.Parse(validSubscriptionJSON)
	require.NoError(t, validateSubscription(valid))

	t.Run("revoked_at variants", func(t *testing.T) {
		for _, tail := range []string{
			`"revoked_at": "2024-01-02T00:00:00Z"`,
			`"revoked_at": null`,
		} {
			doc := validSubscriptionJSON[:len(validSubscriptionJSON)-2] + ",\n" + tail + "\n}"
			require.NoError(t, validateSubscription(gjson.Parse(doc)), "revoked_at as %s", tail)
		}
		doc := validSubscriptionJSON[:len(validSubscriptionJSON)-2] + ",\n\"revoked_at\": 7\n}"
		require.EqualError(t, validateSubscription(gjson.Parse(doc)), "invalid field: revoked_at")
	})

	t.Run("violations", func(t *testing.T) {
		tests := []struct {
			name    string
			json    string
			wantErr string
		}{
			{
				"non-UUID id",
				`{"subscription_id":"sub-1","owner_agent":"a","url":"u","event_types":[],"active":true,"created_at":"t","updated_at":"t","secret_hint":"h"}`,
				"invalid field: subscription_id",
			},
			{
				"missing event_types",
				`{"subscription_id":"8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1","owner_agent":"a","url":"u","active":true,"created_at":"t","updated_at":"t","secret_hint":"h"}`,
				"missing field: event_types",
			},
			{
				"active as string",
				`{"subscription_id":"8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1","owner_agent":"a","url":"u","event_types":[],"active":"yes","created_at":"t","updated_at":"t","secret_hint":"h"}`,
				"invalid field: active",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				require.EqualError(t, validateSubscription(gjson.Parse(tt.json)), tt.wantErr)
			})
		}
	})
}

func TestValidateChangeEntry(t *testing.T) {
	valid := `{"cursor": "c000001", "thread": ` + validThreadJSON + `}`
	require.NoError(t, validateChangeEntry(gjson.Parse(valid)))

	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"missing cursor", `{"thread": ` + validThreadJSON + `}`, "missing field: cursor"},
		{"short cursor", `{"cursor": "c1", "thread": ` + validThreadJSON + `}`, "invalid field: cursor"},
		{"numeric cursor", `{"cursor": 42, "thread": ` + validThreadJSON + `}`, "invalid field: cursor"},
		{"missing thread", `{"cursor": "c000001"}`, "missing field: thread"},
		{"bad embedded thread", `{"cursor": "c000001", "thread": {"status": "open"}}`, "missing field: thread_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, validateChangeEntry(gjson.Parse(tt.json)), tt.wantErr)
		})
	}
}

func TestValidateCounters(t *testing.T) {
	require.NoError(t, validateCounters(gjson.Parse(
		`{"queued": 1, "processed": 1, "delivered": 1, "pending": 0, "dead_lettered": 0}`,
	)))

	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"missing counter", `{"queued": 1, "processed": 1, "delivered": 1, "pending": 0}`, "missing field: dead_lettered"},
		{"negative", `{"queued": -1, "processed": 1, "delivered": 1, "pending": 0, "dead_lettered": 0}`, "invalid field: queued"},
		{"fractional", `{"queued": 1, "processed": 1.5, "delivered": 1, "pending": 0, "dead_lettered": 0}`, "invalid field: processed"},
		{"string", `{"queued": 1, "processed": 1, "delivered": "1", "pending": 0, "dead_lettered": 0}`, "invalid field: delivered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, validateCounters(gjson.Parse(tt.json)), tt.wantErr)
		})
	}
}
