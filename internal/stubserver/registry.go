package stubserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type schemaRecord struct {
	SemanticType string          `json:"semantic_type"`
	Schema       json.RawMessage `json:"schema"`
	SchemaHash   string          `json:"schema_hash"`
	UpdatedAt    string          `json:"updated_at"`
}

type profile struct {
	OwnerAgent  string `json:"owner_agent"`
	Nick        string `json:"nick,omitempty"`
	Normalized  string `json:"normalized_nick,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// schemaHash derives the content hash registered for a schema. The schema is
// re-marshaled first so formatting differences and key order do not change
// the hash.
func schemaHash(schema json.RawMessage) (string, error) {
	var decoded any
	if err := json.Unmarshal(schema, &decoded); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// normalizeNick folds a nickname to its canonical registry key.
func normalizeNick(nick string) string {
	return strings.ToLower(strings.TrimSpace(nick))
}

// handleSchemaUpsert handles POST /v1/schemas.
func (s *Server) handleSchemaUpsert(c echo.Context) error {
	var req struct {
		SemanticType string          `json:"semantic_type"`
		Schema       json.RawMessage `json:"schema"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.SemanticType == "" || len(req.Schema) == 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "semantic_type and schema are required")
	}
	hash, err := schemaHash(req.Schema)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "schema is not valid JSON")
	}

	rec := &schemaRecord{
		SemanticType: req.SemanticType,
		Schema:       req.Schema,
		SchemaHash:   hash,
		UpdatedAt:    now(),
	}

	s.mu.Lock()
	s.schemas[req.SemanticType] = rec
	s.mu.Unlock()

	return c.JSON(http.StatusOK, rec)
}

// handleSchemaGet handles GET /v1/schemas/:semantic_type.
func (s *Server) handleSchemaGet(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.schemas[c.Param("semantic_type")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown semantic type")
	}
	return c.JSON(http.StatusOK, rec)
}

// handleNickCheck handles GET /v1/users/nick-check.
func (s *Server) handleNickCheck(c echo.Context) error {
	nick := c.QueryParam("nick")
	if nick == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "nick is required")
	}
	normalized := normalizeNick(nick)

	s.mu.Lock()
	_, taken := s.nicks[normalized]
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{
		"nick":            nick,
		"normalized_nick": normalized,
		"available":       !taken,
	})
}

// handleNickRegister handles POST /v1/users/nicks.
func (s *Server) handleNickRegister(c echo.Context) error {
	var req struct {
		OwnerAgent string `json:"owner_agent"`
		Nick       string `json:"nick"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.OwnerAgent == "" || req.Nick == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent and nick are required")
	}
	normalized := normalizeNick(req.Nick)

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, taken := s.nicks[normalized]; taken && owner != req.OwnerAgent {
		return writeError(c, http.StatusConflict, "conflict_error", "nick is already taken")
	}
	s.nicks[normalized] = req.OwnerAgent
	p := s.profileFor(req.OwnerAgent)
	p.Nick = req.Nick
	p.Normalized = normalized

	return c.JSON(http.StatusOK, p)
}

// handleNickRename handles POST /v1/users/nicks/rename.
func (s *Server) handleNickRename(c echo.Context) error {
	var req struct {
		OwnerAgent string `json:"owner_agent"`
		Nick       string `json:"nick"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.OwnerAgent == "" || req.Nick == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent and nick are required")
	}
	normalized := normalizeNick(req.Nick)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[req.OwnerAgent]
	if !ok || p.Nick == "" {
		return writeError(c, http.StatusNotFound, "not_found_error", "owner has no registered nick")
	}
	if owner, taken := s.nicks[normalized]; taken && owner != req.OwnerAgent {
		return writeError(c, http.StatusConflict, "conflict_error", "nick is already taken")
	}
	delete(s.nicks, p.Normalized)
	s.nicks[normalized] = req.OwnerAgent
	p.Nick = req.Nick
	p.Normalized = normalized

	return c.JSON(http.StatusOK, p)
}

// handleProfileGet handles GET /v1/users/profile.
func (s *Server) handleProfileGet(c echo.Context) error {
	owner := c.QueryParam("owner_agent")
	if owner == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[owner]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown owner")
	}
	return c.JSON(http.StatusOK, p)
}

// handleProfileUpdate handles POST /v1/users/profile.
func (s *Server) handleProfileUpdate(c echo.Context) error {
	var req struct {
		OwnerAgent  string `json:"owner_agent"`
		DisplayName string `json:"display_name"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.OwnerAgent == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profileFor(req.OwnerAgent)
	p.DisplayName = req.DisplayName

	return c.JSON(http.StatusOK, p)
}

// profileFor returns owner's profile, creating it on first touch. Callers
// must hold s.mu.
func (s *Server) profileFor(owner string) *profile {
	p, ok := s.profiles[owner]
	if !ok {
		p = &profile{OwnerAgent: owner}
		s.profiles[owner] = p
	}
	return p
}
