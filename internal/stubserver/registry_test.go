package stubserver

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/tidwall/gjson"
)

func TestSchemaHashIsStable(t *testing.T) {
	a, err := schemaHash([]byte(`{"type": "object", "required": ["text"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d: %q", len(a), a)
	}

	// Key order and whitespace do not matter
	b, err := schemaHash([]byte(`{"required":["text"],"type":"object"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected identical hashes, got %q and %q", a, b)
	}

	if _, err := schemaHash([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed schema")
	}
}

func TestSchemaUpsertAndGet(t *testing.T) {
	srv := New(Config{})

	created := doRequest(t, srv, http.MethodPost, "/v1/schemas", "", map[string]any{
		"semantic_type": "todo.item.v1",
		"schema":        map[string]any{"type": "object"},
	})
	if created.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", created.Code, created.Body.String())
	}
	body := created.Body.String()
	if got := gjson.Get(body, "semantic_type").String(); got != "todo.item.v1" {
		t.Errorf("expected semantic_type to be echoed, got %q", got)
	}
	hash := gjson.Get(body, "schema_hash").String()
	if len(hash) != 64 {
		t.Fatalf("expected 64 char schema_hash, got %q", hash)
	}

	fetched := doRequest(t, srv, http.MethodGet, "/v1/schemas/todo.item.v1", "", nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("expected status 200 on get, got %d", fetched.Code)
	}
	if got := gjson.Get(fetched.Body.String(), "schema_hash").String(); got != hash {
		t.Errorf("expected stored hash %q, got %q", hash, got)
	}
}

func TestSchemaUpsertRejectsIncompleteBody(t *testing.T) {
	srv := New(Config{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing semantic_type", map[string]any{"schema": map[string]any{"type": "object"}}},
		{"missing schema", map[string]any{"semantic_type": "todo.item.v1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/v1/schemas", "", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestSchemaUnknownType(t *testing.T) {
	srv := New(Config{})

	rec := doRequest(t, srv, http.MethodGet, "/v1/schemas/no.such.type", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestNickCheckAndRegister(t *testing.T) {
	srv := New(Config{})

	check := doRequest(t, srv, http.MethodGet, "/v1/users/nick-check?nick=Ada", "", nil)
	if check.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", check.Code)
	}
	body := check.Body.String()
	if got := gjson.Get(body, "normalized_nick").String(); got != "ada" {
		t.Errorf("expected normalized_nick ada, got %q", got)
	}
	if !gjson.Get(body, "available").Bool() {
		t.Error("expected fresh nick to be available")
	}

	registered := doRequest(t, srv, http.MethodPost, "/v1/users/nicks", "", map[string]any{
		"owner_agent": testOwner,
		"nick":        "Ada",
	})
	if registered.Code != http.StatusOK {
		t.Fatalf("expected status 200 on register, got %d", registered.Code)
	}
	body = registered.Body.String()
	if got := gjson.Get(body, "owner_agent").String(); got != testOwner {
		t.Errorf("expected owner_agent to be echoed, got %q", got)
	}
	if got := gjson.Get(body, "nick").String(); got != "Ada" {
		t.Errorf("expected nick Ada, got %q", got)
	}

	check = doRequest(t, srv, http.MethodGet, "/v1/users/nick-check?nick=ADA", "", nil)
	if gjson.Get(check.Body.String(), "available").Bool() {
		t.Error("expected registered nick to be unavailable under any casing")
	}
}

func TestNickRegisterConflict(t *testing.T) {
	srv := New(Config{})

	first := doRequest(t, srv, http.MethodPost, "/v1/users/nicks", "", map[string]any{
		"owner_agent": testOwner,
		"nick":        "ada",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", first.Code)
	}

	// Same owner may re-register its own nick
	again := doRequest(t, srv, http.MethodPost, "/v1/users/nicks", "", map[string]any{
		"owner_agent": testOwner,
		"nick":        "ada",
	})
	if again.Code != http.StatusOK {
		t.Errorf("expected status 200 on re-register, got %d", again.Code)
	}

	other := doRequest(t, srv, http.MethodPost, "/v1/users/nicks", "", map[string]any{
		"owner_agent": "agent://user/bob",
		"nick":        "Ada",
	})
	if other.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", other.Code)
	}
	if got := gjson.Get(other.Body.String(), "error.type").String(); got != "conflict_error" {
		t.Errorf("expected conflict_error, got %q", got)
	}
}

func TestNickRename(t *testing.T) {
	srv := New(Config{})

	doRequest(t, srv, http.MethodPost, "/v1/users/nicks", "", map[string]any{
		"owner_agent": testOwner,
		"nick":        "ada",
	})

	renamed := doRequest(t, srv, http.MethodPost, "/v1/users/nicks/rename", "", map[string]any{
		"owner_agent": testOwner,
		"nick":        "lovelace",
	})
	if renamed.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", renamed.Code, renamed.Body.String())
	}
	if got := gjson.Get(renamed.Body.String(), "nick").String(); got != "lovelace" {
		t.Errorf("expected nick lovelace, got %q", got)
	}

	// The old nick is released
	check := doRequest(t, srv, http.MethodGet, "/v1/users/nick-check?nick=ada", "", nil)
	if !gjson.Get(check.Body.String(), "available").Bool() {
		t.Error("expected former nick to become available")
	}
}

func TestNickRenameWithoutRegistration(t *testing.T) {
	srv := New(Config{})

	rec := doRequest(t, srv, http.MethodPost, "/v1/users/nicks/rename", "", map[string]any{
		"owner_agent": testOwner,
		"nick":        "ada",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestProfileUpdateAndGet(t *testing.T) {
	srv := New(Config{})

	missing := doRequest(t, srv, http.MethodGet, "/v1/users/profile?owner_agent="+url.QueryEscape(testOwner), "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown owner, got %d", missing.Code)
	}

	updated := doRequest(t, srv, http.MethodPost, "/v1/users/profile", "", map[string]any{
		"owner_agent":  testOwner,
		"display_name": "Ada Lovelace",
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", updated.Code)
	}
	if got := gjson.Get(updated.Body.String(), "display_name").String(); got != "Ada Lovelace" {
		t.Errorf("expected display_name to be echoed, got %q", got)
	}

	fetched := doRequest(t, srv, http.MethodGet, "/v1/users/profile?owner_agent="+url.QueryEscape(testOwner), "", nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", fetched.Code)
	}
	body := fetched.Body.String()
	if got := gjson.Get(body, "owner_agent").String(); got != testOwner {
		t.Errorf("expected owner_agent to be echoed, got %q", got)
	}
	if got := gjson.Get(body, "display_name").String(); got != "Ada Lovelace" {
		t.Errorf("expected stored display_name, got %q", got)
	}
}
