package conformance

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// checkHealth probes liveness. The trace header is accepted by the service
// but is not required to change the response shape.
func checkHealth(ctx context.Context, c *client) (Result, error) {
	const name = "health"

	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/health",
		headers: map[string]string{"X-Trace-Id": uuid.NewString()},
	})
	if err != nil {
		return Result{}, err
	}
	if resp.status != http.StatusOK {
		return fail(name, "unexpected status=%d", resp.status), nil
	}
	if err := requireBool(resp.json(), "ok"); err != nil {
		return fail(name, "%s", err), nil
	}
	return pass(name), nil
}

// checkCapabilities verifies the discovery endpoint advertises both the
// feature list and the accepted intent types.
func checkCapabilities(ctx context.Context, c *client) (Result, error) {
	const name = "capabilities"

	resp, err := c.get(ctx, "/v1/capabilities", nil)
	if err != nil {
		return Result{}, err
	}
	if resp.status != http.StatusOK {
		return fail(name, "unexpected status=%d", resp.status), nil
	}
	body := resp.json()
	for _, key := range []string{"capabilities", "supported_intent_types"} {
		if err := requireStringArray(body, key); err != nil {
			return fail(name, "%s", err), nil
		}
	}
	return pass(name), nil
}
