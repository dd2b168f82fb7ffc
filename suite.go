// Package conformance issues a fixed, ordered sequence of HTTP requests
// against an agent-messaging API and validates each response against its
// structural contract (status code, required fields, field types, simple
// invariants such as UUID format). The outcome of a run is one Result per
// registered check, in registration order.
package conformance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds every request issued during a suite run.
	DefaultTimeout = 15 * time.Second

	// DefaultOwnerAgent is the agent address the suite acts as when it
	// creates intents, threads, and subscriptions on the target service.
	DefaultOwnerAgent = "agent://user/conformance"
)

// Result records the outcome of a single contract check. Details carries a
// short confirmation on success and a description of the discrepancy on
// failure, including any observed status code or offending field name. A
// Result is created once per check invocation and never mutated.
type Result struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// Options configures a suite run.
type Options struct {
	// BaseURL is the root of the API under test. A trailing slash is trimmed.
	BaseURL string

	// APIKey is sent as a bearer token in the Authorization header on every
	// request.
	APIKey string

	// TransportFactory, when non-nil, produces the HTTP transport for the
	// run. Tests use it to substitute deterministic fakes for the network.
	TransportFactory func() http.RoundTripper

	// Timeout bounds each individual request. Zero means DefaultTimeout.
	Timeout time.Duration

	// OwnerAgent overrides DefaultOwnerAgent as the acting agent address.
	OwnerAgent string

	// RequestsPerSecond paces outgoing requests when positive. Zero disables
	// pacing.
	RequestsPerSecond float64

	// Logger receives structured progress logs. Nil discards them.
	Logger *slog.Logger
}

type checkFunc func(ctx context.Context, c *client) (Result, error)

// contractChecks is the fixed execution order. Extending the suite means
// appending an entry here; checks share nothing beyond the client they are
// handed.
var contractChecks = []struct {
	name string
	run  checkFunc
}{
	{"health", checkHealth},
	{"intent_create", checkIntentCreate},
	{"intent_idempotency", checkIntentIdempotency},
	{"inbox_list", checkInboxList},
	{"inbox_reply", checkInboxReply},
	{"inbox_changes", checkInboxChanges},
	{"approval_decision", checkApprovalDecision},
	{"capabilities", checkCapabilities},
	{"invite_lifecycle", checkInviteLifecycle},
	{"media_upload_lifecycle", checkMediaUploadLifecycle},
	{"schema_registry", checkSchemaRegistry},
	{"user_nicknames", checkUserNicknames},
	{"webhook_subscriptions", checkWebhookSubscriptions},
	{"webhook_events", checkWebhookEvents},
}

// Checks returns the names of all registered checks in execution order.
func Checks() []string {
	names := make([]string, len(contractChecks))
	for i, chk := range contractChecks {
		names[i] = chk.name
	}
	return names
}

// Run executes every registered contract check, in order, against the service
// described by opts. It returns one Result per check no matter how the
// service responds: a malformed or unexpected response fails that check and
// the run continues. Transport-level errors (connection refused, timeout)
// abort the run and are returned together with the results gathered so far.
// Requests are never retried; the underlying HTTP session is released on
// every exit path.
func Run(ctx context.Context, opts Options) ([]Result, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	defer c.close()

	results := make([]Result, 0, len(contractChecks))
	for _, chk := range contractChecks {
		res, err := chk.run(ctx, c)
		if err != nil {
			return results, fmt.Errorf("check %s: %w", chk.name, err)
		}
		c.logger.Debug("contract check finished", "check", chk.name, "passed", res.Passed)
		results = append(results, res)
	}
	return results, nil
}

// pass builds the Result for a check that met every expectation.
func pass(name string) Result {
	return Result{Name: name, Passed: true, Details: "ok"}
}

// fail builds the Result for a check whose expectation was violated.
func fail(name, format string, args ...any) Result {
	return Result{Name: name, Passed: false, Details: fmt.Sprintf(format, args...)}
}
