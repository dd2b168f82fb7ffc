package conformance

import (
	"context"
	"net/http"
	"net/url"
)

// fallbackThreadID is the recognizable placeholder used by the reply check
// when the inbox has no thread to reuse. The service is expected to accept it
// and answer with a thread carrying this exact identifier.
const fallbackThreadID = "th_conformance_fallback"

// checkInboxList verifies the inbox listing envelope and that every returned
// thread carries the full thread shape.
func checkInboxList(ctx context.Context, c *client) (Result, error) {
	const name = "inbox_list"

	resp, err := c.get(ctx, "/v1/inbox", url.Values{"owner_agent": {c.owner}})
	if err != nil {
		return Result{}, err
	}
	if resp.status != http.StatusOK {
		return fail(name, "unexpected status=%d", resp.status), nil
	}
	body := resp.json()
	if err := requireBool(body, "ok"); err != nil {
		return fail(name, "%s", err), nil
	}
	if err := requireArray(body, "threads"); err != nil {
		return fail(name, "%s", err), nil
	}
	for _, th := range body.Get("threads").Array() {
		if err := validateThread(th); err != nil {
			return fail(name, "%s", err), nil
		}
	}
	return pass(name), nil
}

// checkInboxReply replies to the first listed thread, falling back to the
// placeholder identifier when the inbox is empty, and requires the thread in
// the response to echo the identifier that was addressed.
func checkInboxReply(ctx context.Context, c *client) (Result, error) {
	const name = "inbox_reply"

	listed, err := c.get(ctx, "/v1/inbox", url.Values{"owner_agent": {c.owner}})
	if err != nil {
		return Result{}, err
	}
	if listed.status != http.StatusOK {
		return fail(name, "unexpected status=%d", listed.status), nil
	}

	threadID := fallbackThreadID
	if threads := listed.json().Get("threads").Array(); len(threads) > 0 {
		if id := threads[0].Get("thread_id").String(); id != "" {
			threadID = id
		}
	}

	resp, err := c.post(ctx, "/v1/inbox/"+threadID+"/reply", url.Values{"owner_agent": {c.owner}}, map[string]any{
		"text": "conformance reply",
	})
	if err != nil {
		return Result{}, err
	}
	if resp.status != http.StatusOK {
		return fail(name, "unexpected status=%d on reply", resp.status), nil
	}
	body := resp.json()
	if err := requireBool(body, "ok"); err != nil {
		return fail(name, "%s", err), nil
	}
	thread := body.Get("thread")
	if !thread.Exists() {
		return fail(name, "missing field: thread"), nil
	}
	if err := validateThread(thread); err != nil {
		return fail(name, "%s", err), nil
	}
	if got := thread.Get("thread_id").String(); got != threadID {
		return fail(name, "thread_id mismatch: got %s, want %s", got, threadID), nil
	}
	return pass(name), nil
}

// checkInboxChanges verifies the change-feed envelope, each entry's cursor
// and embedded thread, and, when the feed declares more data, that the
// continuation cursor is honored by a follow-up page fetch.
func checkInboxChanges(ctx context.Context, c *client) (Result, error) {
	const name = "inbox_changes"

	resp, err := c.get(ctx, "/v1/inbox/changes", url.Values{"owner_agent": {c.owner}})
	if err != nil {
		return Result{}, err
	}
	if resp.status != http.StatusOK {
		return fail(name, "unexpected status=%d", resp.status), nil
	}
	body := resp.json()
	if err := requireBool(body, "ok"); err != nil {
		return fail(name, "%s", err), nil
	}
	if err := requireArray(body, "changes"); err != nil {
		return fail(name, "%s", err), nil
	}
	for _, entry := range body.Get("changes").Array() {
		if err := validateChangeEntry(entry); err != nil {
			return fail(name, "%s", err), nil
		}
	}
	if err := requireBool(body, "has_more"); err != nil {
		return fail(name, "%s", err), nil
	}
	if err := requireString(body, "next_cursor"); err != nil {
		return fail(name, "%s", err), nil
	}

	if body.Get("has_more").Bool() {
		cursor := body.Get("next_cursor").String()
		if len(cursor) < minCursorLength {
			return fail(name, "invalid field: next_cursor"), nil
		}
		page, err := c.get(ctx, "/v1/inbox/changes", url.Values{
			"owner_agent": {c.owner},
			"cursor":      {cursor},
		})
		if err != nil {
			return Result{}, err
		}
		if page.status != http.StatusOK {
			return fail(name, "unexpected status=%d on cursor page", page.status), nil
		}
	}
	return pass(name), nil
}
