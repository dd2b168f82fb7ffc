package conformance

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// minCursorLength is the shortest continuation cursor accepted as
// non-trivial.
const minCursorLength = 3

// deliveryCounterKeys names the five counters every webhook delivery report
// must carry.
var deliveryCounterKeys = []string{"queued", "processed", "delivered", "pending", "dead_lettered"}

// isUUID reports whether s is syntactically valid UUID text.
func isUUID(s string) bool {
	return uuid.Validate(s) == nil
}

// requireString checks that key is present as a JSON string.
func requireString(v gjson.Result, key string) error {
	f := v.Get(key)
	if !f.Exists() {
		return fmt.Errorf("missing field: %s", key)
	}
	if f.Type != gjson.String {
		return fmt.Errorf("invalid field: %s", key)
	}
	return nil
}

// requireBool checks that key is present as a JSON boolean.
func requireBool(v gjson.Result, key string) error {
	f := v.Get(key)
	if !f.Exists() {
		return fmt.Errorf("missing field: %s", key)
	}
	if !f.IsBool() {
		return fmt.Errorf("invalid field: %s", key)
	}
	return nil
}

// requireArray checks that key is present as a JSON array.
func requireArray(v gjson.Result, key string) error {
	f := v.Get(key)
	if !f.Exists() {
		return fmt.Errorf("missing field: %s", key)
	}
	if !f.IsArray() {
		return fmt.Errorf("invalid field: %s", key)
	}
	return nil
}

// requireStringArray checks that key is a JSON array whose elements are all
// strings.
func requireStringArray(v gjson.Result, key string) error {
	if err := requireArray(v, key); err != nil {
		return err
	}
	for _, el := range v.Get(key).Array() {
		if el.Type != gjson.String {
			return fmt.Errorf("invalid field: %s", key)
		}
	}
	return nil
}

// validateThread checks the shape shared by every conversation thread object:
// identifier, status, both agent addresses, timestamps, and a non-empty
// timeline.
func validateThread(v gjson.Result) error {
	for _, key := range []string{"thread_id", "status", "owner_agent", "counterparty_agent", "created_at", "updated_at"} {
		if err := requireString(v, key); err != nil {
			return err
		}
	}
	timeline := v.Get("timeline")
	if !timeline.Exists() {
		return errors.New("missing field: timeline")
	}
	if !timeline.IsArray() || len(timeline.Array()) == 0 {
		return errors.New("invalid field: timeline")
	}
	return nil
}

// validateSubscription checks the shape of a webhook subscription object.
// revoked_at is the one optional key: absent or null while the subscription
// is live, a string once revoked.
func validateSubscription(v gjson.Result) error {
	if err := requireString(v, "subscription_id"); err != nil {
		return err
	}
	if !isUUID(v.Get("subscription_id").String()) {
		return errors.New("invalid field: subscription_id")
	}
	for _, key := range []string{"owner_agent", "url", "created_at", "updated_at", "secret_hint"} {
		if err := requireString(v, key); err != nil {
			return err
		}
	}
	if err := requireStringArray(v, "event_types"); err != nil {
		return err
	}
	if err := requireBool(v, "active"); err != nil {
		return err
	}
	if f := v.Get("revoked_at"); f.Exists() && f.Type != gjson.String && f.Type != gjson.Null {
		return errors.New("invalid field: revoked_at")
	}
	return nil
}

// validateChangeEntry checks one element of an inbox change feed: a usable
// continuation cursor plus the embedded thread it refers to.
func validateChangeEntry(v gjson.Result) error {
	cursor := v.Get("cursor")
	if !cursor.Exists() {
		return errors.New("missing field: cursor")
	}
	if cursor.Type != gjson.String || len(cursor.String()) < minCursorLength {
		return errors.New("invalid field: cursor")
	}
	thread := v.Get("thread")
	if !thread.Exists() {
		return errors.New("missing field: thread")
	}
	return validateThread(thread)
}

// validateCounters checks a delivery-counter object: all five counters
// present as non-negative integers.
func validateCounters(v gjson.Result) error {
	for _, key := range deliveryCounterKeys {
		f := v.Get(key)
		if !f.Exists() {
			return fmt.Errorf("missing field: %s", key)
		}
		if f.Type != gjson.Number || f.Num < 0 || f.Num != math.Trunc(f.Num) {
			return fmt.Errorf("invalid field: %s", key)
		}
	}
	return nil
}
