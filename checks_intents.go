package conformance

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// checkIntentCreate verifies the basic create path: a notify intent addressed
// to the acting agent yields a fresh UUID identifier.
func checkIntentCreate(ctx context.Context, c *client) (Result, error) {
	const name = "intent_create"

	resp, err := c.post(ctx, "/v1/intents", nil, map[string]any{
		"intent_type": "notify",
		"recipient":   c.owner,
	})
	if err != nil {
		return Result{}, err
	}
	if resp.status != http.StatusOK {
		return fail(name, "unexpected status=%d", resp.status), nil
	}
	id := resp.json().Get("intent_id")
	if !id.Exists() {
		return fail(name, "missing field: intent_id"), nil
	}
	if !isUUID(id.String()) {
		return fail(name, "invalid field: intent_id"), nil
	}
	return pass(name), nil
}

// checkIntentIdempotency encodes the one true protocol invariant of the
// suite: an idempotency key is scoped to payload equality. Replaying a key
// with a byte-identical body must return the original identifier; replaying
// it with a mutated payload must be rejected with a conflict.
func checkIntentIdempotency(ctx context.Context, c *client) (Result, error) {
	const name = "intent_idempotency"

	key := uuid.NewString()
	body := map[string]any{
		"intent_type": "notify",
		"recipient":   c.owner,
		"payload":     map[string]any{"text": "idempotency probe"},
	}

	first, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/v1/intents",
		body:    body,
		headers: map[string]string{"Idempotency-Key": key},
	})
	if err != nil {
		return Result{}, err
	}
	if first.status != http.StatusOK {
		return fail(name, "unexpected status=%d", first.status), nil
	}
	firstID := first.json().Get("intent_id")
	if !firstID.Exists() {
		return fail(name, "missing field: intent_id"), nil
	}

	replay, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/v1/intents",
		body:    body,
		headers: map[string]string{"Idempotency-Key": key},
	})
	if err != nil {
		return Result{}, err
	}
	if replay.status != http.StatusOK {
		return fail(name, "unexpected status=%d on replay", replay.status), nil
	}
	if got := replay.json().Get("intent_id").String(); got != firstID.String() {
		return fail(name, "intent_id mismatch on replay: got %s, want %s", got, firstID.String()), nil
	}

	mutated := map[string]any{
		"intent_type": "notify",
		"recipient":   c.owner,
		"payload":     map[string]any{"text": "mutated probe"},
	}
	conflict, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/v1/intents",
		body:    mutated,
		headers: map[string]string{"Idempotency-Key": key},
	})
	if err != nil {
		return Result{}, err
	}
	if conflict.status != http.StatusConflict {
		return fail(name, "unexpected status=%d for mutated body, want 409", conflict.status), nil
	}
	return pass(name), nil
}

// checkApprovalDecision creates an approval request and immediately decides
// it. The identifier from the create step is threaded into the decision call
// and must come back unchanged.
func checkApprovalDecision(ctx context.Context, c *client) (Result, error) {
	const name = "approval_decision"

	created, err := c.post(ctx, "/v1/intents", nil, map[string]any{
		"intent_type": "approval_request",
		"recipient":   c.owner,
		"payload":     map[string]any{"action": "conformance probe"},
	})
	if err != nil {
		return Result{}, err
	}
	if created.status != http.StatusOK {
		return fail(name, "unexpected status=%d", created.status), nil
	}
	approvalID := created.json().Get("approval_id").String()
	if approvalID == "" {
		return fail(name, "missing field: approval_id"), nil
	}

	decided, err := c.post(ctx, "/v1/approvals/"+approvalID+"/decision", nil, map[string]any{
		"decision": "approve",
	})
	if err != nil {
		return Result{}, err
	}
	if decided.status != http.StatusOK {
		return fail(name, "unexpected status=%d on decision", decided.status), nil
	}
	body := decided.json()
	if err := requireBool(body, "ok"); err != nil {
		return fail(name, "%s", err), nil
	}
	approval := body.Get("approval")
	if !approval.Exists() {
		return fail(name, "missing field: approval"), nil
	}
	if got := approval.Get("approval_id").String(); got != approvalID {
		return fail(name, "approval_id mismatch: got %s, want %s", got, approvalID), nil
	}
	for _, key := range []string{"decision", "decided_at"} {
		if err := requireString(approval, key); err != nil {
			return fail(name, "%s", err), nil
		}
	}
	return pass(name), nil
}
