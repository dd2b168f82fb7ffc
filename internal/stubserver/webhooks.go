package stubserver

import (
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type subscription struct {
	SubscriptionID string   `json:"subscription_id"`
	OwnerAgent     string   `json:"owner_agent"`
	URL            string   `json:"url"`
	EventTypes     []string `json:"event_types"`
	Active         bool     `json:"active"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	RevokedAt      *string  `json:"revoked_at,omitempty"`
	SecretHint     string   `json:"secret_hint"`

	secret string
}

type deliveryCounters struct {
	Queued       int `json:"queued"`
	Processed    int `json:"processed"`
	Delivered    int `json:"delivered"`
	Pending      int `json:"pending"`
	DeadLettered int `json:"dead_lettered"`
}

type webhookEvent struct {
	EventID    string `json:"event_id"`
	OwnerAgent string `json:"owner_agent"`
	EventType  string `json:"event_type"`
}

// secretHint renders the shareable tail of a webhook secret.
func secretHint(secret string) string {
	if len(secret) <= 4 {
		return secret
	}
	return "..." + secret[len(secret)-4:]
}

// handleSubscriptionUpsert handles POST /v1/webhooks/subscriptions. The
// upsert key is owner plus callback URL; re-upserting refreshes the event
// types and reactivates a revoked subscription under its original id.
func (s *Server) handleSubscriptionUpsert(c echo.Context) error {
	var req struct {
		OwnerAgent string   `json:"owner_agent"`
		URL        string   `json:"url"`
		EventTypes []string `json:"event_types"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.OwnerAgent == "" || req.URL == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent and url are required")
	}
	if req.EventTypes == nil {
		req.EventTypes = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	for _, sub := range s.subscriptions {
		if sub.OwnerAgent == req.OwnerAgent && sub.URL == req.URL {
			sub.EventTypes = req.EventTypes
			sub.Active = true
			sub.RevokedAt = nil
			sub.UpdatedAt = ts
			return c.JSON(http.StatusOK, sub)
		}
	}

	secret := "whsec_" + uuid.NewString()
	sub := &subscription{
		SubscriptionID: uuid.NewString(),
		OwnerAgent:     req.OwnerAgent,
		URL:            req.URL,
		EventTypes:     req.EventTypes,
		Active:         true,
		CreatedAt:      ts,
		UpdatedAt:      ts,
		SecretHint:     secretHint(secret),
		secret:         secret,
	}
	s.subscriptions[sub.SubscriptionID] = sub

	return c.JSON(http.StatusOK, sub)
}

// handleSubscriptionList handles GET /v1/webhooks/subscriptions.
func (s *Server) handleSubscriptionList(c echo.Context) error {
	owner := c.QueryParam("owner_agent")
	if owner == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "owner_agent is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs := []*subscription{}
	for _, sub := range s.subscriptions {
		if sub.OwnerAgent == owner {
			subs = append(subs, sub)
		}
	}
	slices.SortFunc(subs, func(a, b *subscription) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt < b.CreatedAt {
				return -1
			}
			return 1
		}
		if a.SubscriptionID < b.SubscriptionID {
			return -1
		}
		if a.SubscriptionID > b.SubscriptionID {
			return 1
		}
		return 0
	})

	return c.JSON(http.StatusOK, map[string]any{
		"ok":            true,
		"subscriptions": subs,
	})
}

// handleSubscriptionDelete handles DELETE /v1/webhooks/subscriptions/:subscription_id.
func (s *Server) handleSubscriptionDelete(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[c.Param("subscription_id")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown subscription")
	}
	ts := now()
	sub.Active = false
	sub.RevokedAt = &ts
	sub.UpdatedAt = ts

	return c.JSON(http.StatusOK, map[string]any{
		"ok":              true,
		"subscription_id": sub.SubscriptionID,
		"revoked_at":      ts,
	})
}

// handleEventEmit handles POST /v1/webhooks/events. Delivery is synchronous
// in the stub, so matched subscriptions count as delivered immediately.
func (s *Server) handleEventEmit(c echo.Context) error {
	var req struct {
		OwnerAgent string `json:"owner_agent"`
		EventType  string `json:"event_type"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
	}
	if req.EventType == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "event_type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := &webhookEvent{
		EventID:    uuid.NewString(),
		OwnerAgent: req.OwnerAgent,
		EventType:  req.EventType,
	}
	s.events[ev.EventID] = ev

	return c.JSON(http.StatusOK, map[string]any{
		"event_id": ev.EventID,
		"counters": s.countersFor(ev),
	})
}

// handleEventReplay handles POST /v1/webhooks/events/:event_id/replay.
func (s *Server) handleEventReplay(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[c.Param("event_id")]
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found_error", "unknown event")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"event_id":    ev.EventID,
		"replayed_at": now(),
		"counters":    s.countersFor(ev),
	})
}

// countersFor computes delivery counters against the subscriptions active
// right now. Callers must hold s.mu.
func (s *Server) countersFor(ev *webhookEvent) deliveryCounters {
	matched := 0
	for _, sub := range s.subscriptions {
		if !sub.Active {
			continue
		}
		if ev.OwnerAgent != "" && sub.OwnerAgent != ev.OwnerAgent {
			continue
		}
		if slices.Contains(sub.EventTypes, ev.EventType) {
			matched++
		}
	}
	return deliveryCounters{
		Queued:    matched,
		Processed: matched,
		Delivered: matched,
	}
}
