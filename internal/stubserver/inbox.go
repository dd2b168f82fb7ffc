package stubserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// counterpartyAgent is the address the stub writes on the far side of every
// thread it fabricates.
const counterpartyAgent = "agent://service/axme"

type timelineEntry struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	At   string `json:"at"`
}

type thread struct {
	ThreadID     string          `json:"thread_id"`
	Status       string          `json:"status"`
	OwnerAgent   string          `json:"owner_agent"`
	Counterparty string          `json:"counterparty_agent"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Timeline     []timelineEntry `json:"timeline"`
}

// changeRecord is one entry of an owner's change feed. Sequence numbers grow
// monotonically per owner and render as cursors.
type changeRecord struct {
	seq    int
	thread *thread
}

type changeEntry struct {
	Cursor string  `json:"cursor"`
	Thread *thread `json:"thread"`
}

// cursorFor renders a feed position as an opaque continuation cursor.
func cursorFor(seq int) string {
	return fmt.Sprintf("c%06d", seq)
}

// parseCursor inverts cursorFor. Empty means "from the beginning".
func parseCursor(cursor string) (int, bool) {
	if cursor == "" {
		return 0, true
	}
	if !strings.HasPrefix(cursor, "c") {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(cursor, "c"))
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// appendThread creates a thread in owner's inbox and records the change.
// Callers must hold s.mu.
func (s *Server) appendThread(owner, kind, text string) *thread {
	ts := now()
	t := &thread{
		ThreadID:     "th_" + uuid.NewString(),
		Status:       "open",
		OwnerAgent:   owner,
		Counterparty: counterpartyAgent,
		CreatedAt:    ts,
		UpdatedAt:    ts,
		Timeline:     []timelineEntry{{Kind: kind, Text: text, At: ts}},
	}
	s.threads[owner] = append(s.threads[owner], t)
	s.recordChange(owner, t)
	return t
}

// recordChange appends t to owner's change feed. Callers must hold s.mu.
func (s *Server) recordChange(owner string, t *thread) {
	seq := len(s.changes[owner]) + 1
	s.changes[owner] = append(s.changes[owner], changeRecord{seq: seq, thread: t})
}

// findThread returns owner's thread by id. Callers must hold s.mu.
func (s *Server) findThread(owner, threadID string) *thread {
	for _, t := range s.threads[owner] {
		if t.ThreadID == threadID {
			return t
		}
	}
	return nil
}

// handleInboxList handles GET /v1/inbox.
func (s *Server) handleInboxList(c echo.Context) error {
	owner := c.QueryParam("owner_agent")
	if owner == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threads := s.threads[owner]
	if threads == nil {
		threads = []*thread{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":      true,
		"threads": threads,
	})
}

// handleInboxReply handles POST /v1/inbox/:thread_id/reply. Replying to an
// unknown thread identifier materializes a thread under that identifier, so
// probes addressed at placeholder threads still exercise the reply path.
func (s *Server) handleInboxReply(c echo.Context) error {
	owner := c.QueryParam("owner_agent")
	if owner == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent is required")
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	threadID := c.Param("thread_id")

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findThread(owner, threadID)
	ts := now()
	if t == nil {
		t = &thread{
			ThreadID:     threadID,
			Status:       "open",
			OwnerAgent:   owner,
			Counterparty: counterpartyAgent,
			CreatedAt:    ts,
			UpdatedAt:    ts,
		}
		s.threads[owner] = append(s.threads[owner], t)
	}
	t.Timeline = append(t.Timeline, timelineEntry{Kind: "reply", Text: req.Text, At: ts})
	t.UpdatedAt = ts
	s.recordChange(owner, t)

	return c.JSON(http.StatusOK, map[string]any{
		"ok":     true,
		"thread": t,
	})
}

// handleInboxChanges handles GET /v1/inbox/changes.
func (s *Server) handleInboxChanges(c echo.Context) error {
	owner := c.QueryParam("owner_agent")
	if owner == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent is required")
	}
	after, ok := parseCursor(c.QueryParam("cursor"))
	if !ok {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "malformed cursor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	feed := s.changes[owner]
	page := make([]changeEntry, 0, s.cfg.ChangePageSize)
	lastSeq := after
	hasMore := false
	for _, rec := range feed {
		if rec.seq <= after {
			continue
		}
		if len(page) == s.cfg.ChangePageSize {
			hasMore = true
			break
		}
		page = append(page, changeEntry{Cursor: cursorFor(rec.seq), Thread: rec.thread})
		lastSeq = rec.seq
	}

	nextCursor := ""
	if len(page) > 0 {
		nextCursor = cursorFor(lastSeq)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":          true,
		"changes":     page,
		"has_more":    hasMore,
		"next_cursor": nextCursor,
	})
}
