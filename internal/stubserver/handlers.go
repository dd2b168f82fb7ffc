package stubserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"
)

// now formats the current time the way every timestamp field is rendered.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// idempotencyRecord remembers the outcome of an intent create keyed by its
// Idempotency-Key header. The hash is over the raw request bytes, so replay
// detection is scoped to payload equality.
type idempotencyRecord struct {
	bodyHash uint64
	intentID string
}

type approval struct {
	ApprovalID string `json:"approval_id"`
	Decision   string `json:"decision"`
	DecidedAt  string `json:"decided_at"`
}

type intentRequest struct {
	IntentType string          `json:"intent_type"`
	Recipient  string          `json:"recipient"`
	Payload    json.RawMessage `json:"payload"`
}

type intentResponse struct {
	IntentID   string `json:"intent_id"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c echo.Context) error {
	if traceID := c.Request().Header.Get("X-Trace-Id"); traceID != "" {
		c.Response().Header().Set("X-Trace-Id", traceID)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// handleCapabilities handles GET /v1/capabilities.
func (s *Server) handleCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"capabilities":           []string{"intents", "inbox", "approvals", "invites", "media", "schemas", "users", "webhooks"},
		"supported_intent_types": []string{"notify", "approval_request", "share"},
	})
}

// handleIntentCreate handles POST /v1/intents. The raw body is hashed before
// decoding so idempotency replays are judged on byte equality, and a notify
// intent lands as a new thread in the recipient's inbox.
func (s *Server) handleIntentCreate(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "unreadable request body")
	}
	var req intentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.IntentType == "" || req.Recipient == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "intent_type and recipient are required")
	}

	key := c.Request().Header.Get("Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if rec, ok := s.idempotency[key]; ok {
			if rec.bodyHash != xxhash.Sum64(raw) {
				return writeError(c, http.StatusConflict, "conflict_error", "idempotency key reused with a different payload")
			}
			return c.JSON(http.StatusOK, intentResponse{IntentID: rec.intentID})
		}
	}

	resp := intentResponse{IntentID: uuid.NewString()}
	if req.IntentType == "approval_request" {
		a := &approval{ApprovalID: uuid.NewString()}
		s.approvals[a.ApprovalID] = a
		resp.ApprovalID = a.ApprovalID
	}
	if key != "" {
		s.idempotency[key] = idempotencyRecord{bodyHash: xxhash.Sum64(raw), intentID: resp.IntentID}
	}

	text := gjson.GetBytes(req.Payload, "text").String()
	if text == "" {
		text = req.IntentType
	}
	s.appendThread(req.Recipient, req.IntentType, text)

	return c.JSON(http.StatusOK, resp)
}

// handleApprovalDecision handles POST /v1/approvals/:approval_id/decision.
func (s *Server) handleApprovalDecision(c echo.Context) error {
	var req struct {
		Decision string `json:"decision"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "decision must be approve or reject")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[c.Param("approval_id")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown approval")
	}
	a.Decision = req.Decision
	a.DecidedAt = now()

	return c.JSON(http.StatusOK, map[string]any{
		"ok":       true,
		"approval": a,
	})
}
