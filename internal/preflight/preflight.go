// Package preflight holds the advisory and entitlement checks that run
// before the action does any work.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultSubscriptionURL is the entitlement endpoint; %s is the repository
// ("owner/name").
const DefaultSubscriptionURL = "https://agent.api.stepsecurity.io/v1/github/%s/actions/subscription"

// SubscriptionTimeout bounds the entitlement request.
const SubscriptionTimeout = 3 * time.Second

// ErrSubscriptionRejected signals that the repository may not use the
// action. The run must halt immediately without reporting a failure message.
var ErrSubscriptionRejected = errors.New("subscription is not valid")

// Annotator emits workflow annotations.
type Annotator interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Opt configures a Checker.
type Opt func(*Checker)

// WithSubscriptionURL overrides the entitlement endpoint format.
func WithSubscriptionURL(format string) Opt {
	return func(c *Checker) {
		c.subscriptionURL = format
	}
}

// WithHTTPClient sets the HTTP client used for the entitlement check.
func WithHTTPClient(client *http.Client) Opt {
	return func(c *Checker) {
		c.http = client
	}
}

// WithTimeout overrides the entitlement request timeout.
func WithTimeout(d time.Duration) Opt {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Opt {
	return func(c *Checker) {
		c.logger = l
	}
}

// Checker runs the pre-flight checks.
type Checker struct {
	out             Annotator
	http            *http.Client
	subscriptionURL string
	timeout         time.Duration
	logger          hclog.Logger
}

// New creates a Checker.
func New(out Annotator, opts ...Opt) *Checker {
	c := &Checker{
		out:             out,
		http:            http.DefaultClient,
		subscriptionURL: DefaultSubscriptionURL,
		timeout:         SubscriptionTimeout,
		logger:          hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckPin warns when the action is referenced by a mutable branch.
// actionRepo is e.g. "owner/setup-cloudsdk", ref the ref it was used at and
// recommended the ref to suggest instead.
func (c *Checker) CheckPin(actionRepo, ref, recommended string) {
	if ref != "main" && ref != "master" {
		return
	}
	c.out.Warningf(
		"%[1]s is pinned at %[2]q. We strongly advise against pinning to \"@%[2]s\" as it may be unstable. "+
			"Please update your GitHub Action YAML from:\n\n    uses: '%[1]s@%[2]s'\n\nto:\n\n    uses: '%[1]s@%[3]s'\n\n"+
			"Alternatively, you can pin to any git tag or git SHA in the repository.",
		actionRepo, ref, recommended)
}

// CheckSubscription verifies that repo is entitled to use the action.
// It returns ErrSubscriptionRejected on HTTP 403 and nil otherwise; every
// other failure is logged and ignored.
func (c *Checker) CheckSubscription(ctx context.Context, repo string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf(c.subscriptionURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.out.Infof("Timeout or API not reachable. Continuing to next step.")
		c.logger.Debug("subscription request", "error", err)
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.out.Infof("Timeout or API not reachable. Continuing to next step.")
		c.logger.Debug("subscription request", "url", endpoint, "error", err)
		return nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		c.out.Errorf("Subscription is not valid. Reach out to support@stepsecurity.io")
		return ErrSubscriptionRejected
	case resp.StatusCode >= 400:
		c.out.Infof("Timeout or API not reachable. Continuing to next step.")
		c.logger.Debug("subscription request", "url", endpoint, "status", resp.StatusCode)
	}
	return nil
}
