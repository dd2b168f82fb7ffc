package stubserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type invite struct {
	Token      string `json:"token"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	AcceptedAt string `json:"accepted_at,omitempty"`
}

type upload struct {
	UploadID    string `json:"upload_id"`
	Status      string `json:"status"`
	Filename    string `json:"filename,omitempty"`
	CreatedAt   string `json:"created_at"`
	FinalizedAt string `json:"finalized_at,omitempty"`
}

// handleInviteCreate handles POST /v1/invites.
func (s *Server) handleInviteCreate(c echo.Context) error {
	ts := time.Now().UTC()
	inv := &invite{
		Token:     "inv_" + uuid.NewString(),
		Status:    "pending",
		CreatedAt: ts.Format(time.RFC3339),
		ExpiresAt: ts.Add(72 * time.Hour).Format(time.RFC3339),
	}

	s.mu.Lock()
	s.invites[inv.Token] = inv
	s.mu.Unlock()

	return c.JSON(http.StatusOK, inv)
}

// handleInviteGet handles GET /v1/invites/:token.
func (s *Server) handleInviteGet(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[c.Param("token")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown invite token")
	}
	return c.JSON(http.StatusOK, inv)
}

// handleInviteAccept handles POST /v1/invites/:token/accept. Accepting twice
// is allowed and keeps the original acceptance timestamp.
func (s *Server) handleInviteAccept(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[c.Param("token")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown invite token")
	}
	if inv.Status != "accepted" {
		inv.Status = "accepted"
		inv.AcceptedAt = now()
	}
	return c.JSON(http.StatusOK, inv)
}

// handleUploadCreate handles POST /v1/media/uploads.
func (s *Server) handleUploadCreate(c echo.Context) error {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}

	up := &upload{
		UploadID:  uuid.NewString(),
		Status:    "pending",
		Filename:  req.Filename,
		CreatedAt: now(),
	}

	s.mu.Lock()
	s.uploads[up.UploadID] = up
	s.mu.Unlock()

	return c.JSON(http.StatusOK, up)
}

// handleUploadGet handles GET /v1/media/uploads/:upload_id.
func (s *Server) handleUploadGet(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, ok := s.uploads[c.Param("upload_id")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown upload")
	}
	return c.JSON(http.StatusOK, up)
}

// handleUploadFinalize handles POST /v1/media/uploads/:upload_id/finalize.
func (s *Server) handleUploadFinalize(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, ok := s.uploads[c.Param("upload_id")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown upload")
	}
	if up.Status != "ready" {
		up.Status = "ready"
		up.FinalizedAt = now()
	}
	return c.JSON(http.StatusOK, up)
}
