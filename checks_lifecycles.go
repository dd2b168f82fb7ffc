package conformance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// checkInviteLifecycle walks an invite through create, get, and accept. The
// issued token is used verbatim in the follow-up calls and must be echoed
// back unchanged by each of them.
func checkInviteLifecycle(ctx context.Context, c *client) (Result, error) {
	const name = "invite_lifecycle"

	created, err := c.post(ctx, "/v1/invites", nil, map[string]any{"owner_agent": c.owner})
	if err != nil {
		return Result{}, err
	}
	if created.status != http.StatusOK {
		return fail(name, "unexpected status=%d", created.status), nil
	}
	body := created.json()
	token := body.Get("token").String()
	if token == "" {
		return fail(name, "missing field: token"), nil
	}
	for _, key := range []string{"status", "created_at", "expires_at"} {
		if err := requireString(body, key); err != nil {
			return fail(name, "%s", err), nil
		}
	}

	fetched, err := c.get(ctx, "/v1/invites/"+token, nil)
	if err != nil {
		return Result{}, err
	}
	if fetched.status != http.StatusOK {
		return fail(name, "unexpected status=%d on get", fetched.status), nil
	}
	if got := fetched.json().Get("token").String(); got != token {
		return fail(name, "token mismatch on get: got %s, want %s", got, token), nil
	}
	if err := requireString(fetched.json(), "status"); err != nil {
		return fail(name, "%s", err), nil
	}

	accepted, err := c.post(ctx, "/v1/invites/"+token+"/accept", nil, nil)
	if err != nil {
		return Result{}, err
	}
	if accepted.status != http.StatusOK {
		return fail(name, "unexpected status=%d on accept", accepted.status), nil
	}
	acceptedBody := accepted.json()
	if got := acceptedBody.Get("token").String(); got != token {
		return fail(name, "token mismatch on accept: got %s, want %s", got, token), nil
	}
	if got := acceptedBody.Get("status").String(); got != "accepted" {
		return fail(name, "status mismatch on accept: got %q, want %q", got, "accepted"), nil
	}
	if err := requireString(acceptedBody, "accepted_at"); err != nil {
		return fail(name, "%s", err), nil
	}
	return pass(name), nil
}

// checkMediaUploadLifecycle walks an upload through create, get, and
// finalize, threading the created identifier through every step.
func checkMediaUploadLifecycle(ctx context.Context, c *client) (Result, error) {
	const name = "media_upload_lifecycle"

	created, err := c.post(ctx, "/v1/media/uploads", nil, map[string]any{
		"owner_agent":  c.owner,
		"filename":     "conformance.txt",
		"content_type": "text/plain",
		"size_bytes":   11,
	})
	if err != nil {
		return Result{}, err
	}
	if created.status != http.StatusOK {
		return fail(name, "unexpected status=%d", created.status), nil
	}
	body := created.json()
	uploadID := body.Get("upload_id")
	if !uploadID.Exists() {
		return fail(name, "missing field: upload_id"), nil
	}
	if !isUUID(uploadID.String()) {
		return fail(name, "invalid field: upload_id"), nil
	}
	if err := requireString(body, "status"); err != nil {
		return fail(name, "%s", err), nil
	}
	id := uploadID.String()

	fetched, err := c.get(ctx, "/v1/media/uploads/"+id, nil)
	if err != nil {
		return Result{}, err
	}
	if fetched.status != http.StatusOK {
		return fail(name, "unexpected status=%d on get", fetched.status), nil
	}
	if got := fetched.json().Get("upload_id").String(); got != id {
		return fail(name, "upload_id mismatch on get: got %s, want %s", got, id), nil
	}

	finalized, err := c.post(ctx, "/v1/media/uploads/"+id+"/finalize", nil, nil)
	if err != nil {
		return Result{}, err
	}
	if finalized.status != http.StatusOK {
		return fail(name, "unexpected status=%d on finalize", finalized.status), nil
	}
	finalBody := finalized.json()
	if got := finalBody.Get("upload_id").String(); got != id {
		return fail(name, "upload_id mismatch on finalize: got %s, want %s", got, id), nil
	}
	if err := requireString(finalBody, "status"); err != nil {
		return fail(name, "%s", err), nil
	}
	return pass(name), nil
}

// checkSchemaRegistry upserts a schema for a fixed semantic type and requires
// the registry to hand back the same content hash on the follow-up get.
func checkSchemaRegistry(ctx context.Context, c *client) (Result, error) {
	const name = "schema_registry"
	const semanticType = "conformance.probe.v1"

	upserted, err := c.post(ctx, "/v1/schemas", nil, map[string]any{
		"semantic_type": semanticType,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
	})
	if err != nil {
		return Result{}, err
	}
	if upserted.status != http.StatusOK {
		return fail(name, "unexpected status=%d", upserted.status), nil
	}
	body := upserted.json()
	if got := body.Get("semantic_type").String(); got != semanticType {
		return fail(name, "semantic_type mismatch: got %s, want %s", got, semanticType), nil
	}
	hash := body.Get("schema_hash")
	if !hash.Exists() {
		return fail(name, "missing field: schema_hash"), nil
	}
	if len(hash.String()) != 64 {
		return fail(name, "invalid field: schema_hash"), nil
	}

	fetched, err := c.get(ctx, "/v1/schemas/"+semanticType, nil)
	if err != nil {
		return Result{}, err
	}
	if fetched.status != http.StatusOK {
		return fail(name, "unexpected status=%d on get", fetched.status), nil
	}
	if got := fetched.json().Get("schema_hash").String(); got != hash.String() {
		return fail(name, "schema_hash mismatch: got %s, want %s", got, hash.String()), nil
	}
	return pass(name), nil
}

// checkUserNicknames exercises the nickname surface end to end: availability
// check, registration, rename, then profile read and update. The nick is
// derived from a fresh UUID so repeated runs never collide with themselves.
func checkUserNicknames(ctx context.Context, c *client) (Result, error) {
	const name = "user_nicknames"

	nick := fmt.Sprintf("conf_%.8s", uuid.NewString())

	checked, err := c.get(ctx, "/v1/users/nick-check", url.Values{"nick": {nick}})
	if err != nil {
		return Result{}, err
	}
	if checked.status != http.StatusOK {
		return fail(name, "unexpected status=%d", checked.status), nil
	}
	checkedBody := checked.json()
	for _, key := range []string{"nick", "normalized_nick"} {
		if err := requireString(checkedBody, key); err != nil {
			return fail(name, "%s", err), nil
		}
	}
	if err := requireBool(checkedBody, "available"); err != nil {
		return fail(name, "%s", err), nil
	}

	registered, err := c.post(ctx, "/v1/users/nicks", nil, map[string]any{
		"owner_agent": c.owner,
		"nick":        nick,
	})
	if err != nil {
		return Result{}, err
	}
	if registered.status != http.StatusOK {
		return fail(name, "unexpected status=%d on register", registered.status), nil
	}
	registeredBody := registered.json()
	if got := registeredBody.Get("owner_agent").String(); got != c.owner {
		return fail(name, "owner_agent mismatch on register: got %s, want %s", got, c.owner), nil
	}
	for _, key := range []string{"nick", "normalized_nick"} {
		if err := requireString(registeredBody, key); err != nil {
			return fail(name, "%s", err), nil
		}
	}

	renamedNick := nick + "_r"
	renamed, err := c.post(ctx, "/v1/users/nicks/rename", nil, map[string]any{
		"owner_agent": c.owner,
		"nick":        renamedNick,
	})
	if err != nil {
		return Result{}, err
	}
	if renamed.status != http.StatusOK {
		return fail(name, "unexpected status=%d on rename", renamed.status), nil
	}
	if got := renamed.json().Get("nick").String(); got != renamedNick {
		return fail(name, "nick mismatch on rename: got %s, want %s", got, renamedNick), nil
	}

	profile, err := c.get(ctx, "/v1/users/profile", url.Values{"owner_agent": {c.owner}})
	if err != nil {
		return Result{}, err
	}
	if profile.status != http.StatusOK {
		return fail(name, "unexpected status=%d on profile get", profile.status), nil
	}
	profileBody := profile.json()
	if got := profileBody.Get("owner_agent").String(); got != c.owner {
		return fail(name, "owner_agent mismatch on profile get: got %s, want %s", got, c.owner), nil
	}
	if err := requireString(profileBody, "nick"); err != nil {
		return fail(name, "%s", err), nil
	}

	updated, err := c.post(ctx, "/v1/users/profile", nil, map[string]any{
		"owner_agent":  c.owner,
		"display_name": "Conformance Probe",
	})
	if err != nil {
		return Result{}, err
	}
	if updated.status != http.StatusOK {
		return fail(name, "unexpected status=%d on profile update", updated.status), nil
	}
	updatedBody := updated.json()
	if got := updatedBody.Get("owner_agent").String(); got != c.owner {
		return fail(name, "owner_agent mismatch on profile update: got %s, want %s", got, c.owner), nil
	}
	if got := updatedBody.Get("display_name").String(); got != "Conformance Probe" {
		return fail(name, "display_name mismatch: got %q, want %q", got, "Conformance Probe"), nil
	}
	return pass(name), nil
}
