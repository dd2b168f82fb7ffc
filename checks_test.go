package conformance

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threadJSON(id string) string {
	return fmt.Sprintf(`{
		"thread_id": %q,
		"status": "open",
		"owner_agent": "agent://user/conformance",
		"counterparty_agent": "agent://service/axme",
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-01-01T00:00:00Z",
		"timeline": [{"kind": "message", "text": "hi"}]
	}`, id)
}

func TestCheckHealthMissingOkField(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status": "up"}`), nil
	}))

	res, err := checkHealth(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "missing field: ok", res.Details)
}

func TestCheckCapabilitiesRejectsMixedArray(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"capabilities": ["inbox"], "supported_intent_types": ["notify", 7]}`), nil
	}))

	res, err := checkCapabilities(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "invalid field: supported_intent_types", res.Details)
}

func TestCheckIntentCreateRejectsNonUUID(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"intent_id": "intent-123"}`), nil
	}))

	res, err := checkIntentCreate(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "invalid field: intent_id", res.Details)
}

func TestCheckIntentIdempotencyReplayMismatch(t *testing.T) {
	calls := 0
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		// A different identifier on every call violates key replay
		return jsonResponse(http.StatusOK, fmt.Sprintf(`{"intent_id": "8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a%d"}`, calls)), nil
	}))

	res, err := checkIntentIdempotency(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Details, "intent_id mismatch on replay")
	assert.Equal(t, 2, calls, "the check should stop at the mismatching replay")
}

func TestCheckIntentIdempotencyRequiresConflict(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		// The mutated body is accepted instead of being rejected with 409
		return jsonResponse(http.StatusOK, `{"intent_id": "8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1"}`), nil
	}))

	res, err := checkIntentIdempotency(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "unexpected status=200 for mutated body, want 409", res.Details)
}

func TestCheckInboxReplyUsesFallbackThread(t *testing.T) {
	var replyPath string
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.Method == http.MethodGet && req.URL.Path == "/v1/inbox":
			return jsonResponse(http.StatusOK, `{"ok": true, "threads": []}`), nil
		case req.Method == http.MethodPost:
			replyPath = req.URL.Path
			return jsonResponse(http.StatusOK, `{"ok": true, "thread": `+threadJSON(fallbackThreadID)+`}`), nil
		}
		return jsonResponse(http.StatusNotFound, `{}`), nil
	}))

	res, err := checkInboxReply(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, res.Passed, res.Details)
	assert.Equal(t, "/v1/inbox/"+fallbackThreadID+"/reply", replyPath)
}

func TestCheckInboxReplyThreadIDMismatch(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodGet {
			return jsonResponse(http.StatusOK, `{"ok": true, "threads": [`+threadJSON("th_listed")+`]}`), nil
		}
		return jsonResponse(http.StatusOK, `{"ok": true, "thread": `+threadJSON("th_other")+`}`), nil
	}))

	res, err := checkInboxReply(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "thread_id mismatch: got th_other, want th_listed", res.Details)
}

func changesPage(cursor string, hasMore bool, next string) string {
	return fmt.Sprintf(`{
		"ok": true,
		"changes": [{"cursor": %q, "thread": %s}],
		"has_more": %t,
		"next_cursor": %q
	}`, cursor, threadJSON("th_1"), hasMore, next)
}

func TestCheckInboxChangesFollowsContinuationCursor(t *testing.T) {
	var cursors []string
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		cursors = append(cursors, req.URL.Query().Get("cursor"))
		if len(cursors) == 1 {
			return jsonResponse(http.StatusOK, changesPage("c000001", true, "c000001")), nil
		}
		return jsonResponse(http.StatusOK, changesPage("c000002", false, "c000002")), nil
	}))

	res, err := checkInboxChanges(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, res.Passed, res.Details)
	require.Equal(t, []string{"", "c000001"}, cursors, "the follow-up page should carry the advertised cursor")
}

func TestCheckInboxChangesRejectsShortContinuationCursor(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, changesPage("c000001", true, "c1")), nil
	}))

	res, err := checkInboxChanges(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "invalid field: next_cursor", res.Details)
}

func TestCheckInboxChangesCursorPageFailure(t *testing.T) {
	calls := 0
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusOK, changesPage("c000001", true, "c000001")), nil
		}
		return jsonResponse(http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`), nil
	}))

	res, err := checkInboxChanges(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "unexpected status=500 on cursor page", res.Details)
}

func TestCheckApprovalDecisionMissingID(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"intent_id": "8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1"}`), nil
	}))

	res, err := checkApprovalDecision(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "missing field: approval_id", res.Details)
}

func TestCheckSchemaRegistryHashLength(t *testing.T) {
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"semantic_type": "conformance.probe.v1", "schema_hash": "abc123"}`), nil
	}))

	res, err := checkSchemaRegistry(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "invalid field: schema_hash", res.Details)
}

func TestCheckWebhookEventsReplayMismatch(t *testing.T) {
	const counters = `{"queued": 0, "processed": 0, "delivered": 0, "pending": 0, "dead_lettered": 0}`
	c := newTestClient(t, transportFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/v1/webhooks/events" {
			return jsonResponse(http.StatusOK, `{"event_id": "8f14e45f-ceea-4673-9a6b-1c5ff0d6b0a1", "counters": `+counters+`}`), nil
		}
		return jsonResponse(http.StatusOK, `{"event_id": "00000000-0000-4000-8000-000000000000", "replayed_at": "2024-01-01T00:00:00Z", "counters": `+counters+`}`), nil
	}))

	res, err := checkWebhookEvents(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Details, "event_id mismatch on replay")
}
