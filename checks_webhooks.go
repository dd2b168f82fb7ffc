package conformance

import (
	"context"
	"net/http"
	"net/url"
)

// checkWebhookSubscriptions upserts a subscription, requires it to appear in
// the owner's listing with the full subscription shape, then deletes it and
// requires the delete response to name the same subscription with a
// revocation timestamp.
func checkWebhookSubscriptions(ctx context.Context, c *client) (Result, error) {
	const name = "webhook_subscriptions"

	upserted, err := c.post(ctx, "/v1/webhooks/subscriptions", nil, map[string]any{
		"owner_agent": c.owner,
		"url":         "https://hooks.axme.test/conformance",
		"event_types": []string{"message.created", "intent.completed"},
	})
	if err != nil {
		return Result{}, err
	}
	if upserted.status != http.StatusOK {
		return fail(name, "unexpected status=%d", upserted.status), nil
	}
	sub := upserted.json()
	if err := validateSubscription(sub); err != nil {
		return fail(name, "%s", err), nil
	}
	subID := sub.Get("subscription_id").String()

	listed, err := c.get(ctx, "/v1/webhooks/subscriptions", url.Values{"owner_agent": {c.owner}})
	if err != nil {
		return Result{}, err
	}
	if listed.status != http.StatusOK {
		return fail(name, "unexpected status=%d on list", listed.status), nil
	}
	listBody := listed.json()
	if err := requireArray(listBody, "subscriptions"); err != nil {
		return fail(name, "%s", err), nil
	}
	found := false
	for _, entry := range listBody.Get("subscriptions").Array() {
		if entry.Get("subscription_id").String() != subID {
			continue
		}
		if err := validateSubscription(entry); err != nil {
			return fail(name, "%s", err), nil
		}
		found = true
		break
	}
	if !found {
		return fail(name, "created subscription %s not in list", subID), nil
	}

	deleted, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/v1/webhooks/subscriptions/" + subID,
	})
	if err != nil {
		return Result{}, err
	}
	if deleted.status != http.StatusOK {
		return fail(name, "unexpected status=%d on delete", deleted.status), nil
	}
	deletedBody := deleted.json()
	if err := requireBool(deletedBody, "ok"); err != nil {
		return fail(name, "%s", err), nil
	}
	if got := deletedBody.Get("subscription_id").String(); got != subID {
		return fail(name, "subscription_id mismatch on delete: got %s, want %s", got, subID), nil
	}
	if err := requireString(deletedBody, "revoked_at"); err != nil {
		return fail(name, "%s", err), nil
	}
	return pass(name), nil
}

// checkWebhookEvents emits an event, requires a full set of delivery
// counters, then replays the event and requires the same identifier with a
// replay timestamp and its own counter set.
func checkWebhookEvents(ctx context.Context, c *client) (Result, error) {
	const name = "webhook_events"

	emitted, err := c.post(ctx, "/v1/webhooks/events", nil, map[string]any{
		"owner_agent": c.owner,
		"event_type":  "message.created",
		"payload":     map[string]any{"text": "conformance event"},
	})
	if err != nil {
		return Result{}, err
	}
	if emitted.status != http.StatusOK {
		return fail(name, "unexpected status=%d", emitted.status), nil
	}
	body := emitted.json()
	eventID := body.Get("event_id")
	if !eventID.Exists() {
		return fail(name, "missing field: event_id"), nil
	}
	if !isUUID(eventID.String()) {
		return fail(name, "invalid field: event_id"), nil
	}
	counters := body.Get("counters")
	if !counters.Exists() {
		return fail(name, "missing field: counters"), nil
	}
	if err := validateCounters(counters); err != nil {
		return fail(name, "%s", err), nil
	}

	replayed, err := c.post(ctx, "/v1/webhooks/events/"+eventID.String()+"/replay", nil, nil)
	if err != nil {
		return Result{}, err
	}
	if replayed.status != http.StatusOK {
		return fail(name, "unexpected status=%d on replay", replayed.status), nil
	}
	replayBody := replayed.json()
	if got := replayBody.Get("event_id").String(); got != eventID.String() {
		return fail(name, "event_id mismatch on replay: got %s, want %s", got, eventID.String()), nil
	}
	if err := requireString(replayBody, "replayed_at"); err != nil {
		return fail(name, "%s", err), nil
	}
	replayCounters := replayBody.Get("counters")
	if !replayCounters.Exists() {
		return fail(name, "missing field: counters"), nil
	}
	if err := validateCounters(replayCounters); err != nil {
		return fail(name, "%s", err), nil
	}
	return pass(name), nil
}
