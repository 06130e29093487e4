package descriptor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/logging"
)

// ResolverOptions configure a Resolver.
type ResolverOptions struct {
	// HTTPClient performs discovery fetches. Defaults to a client with a
	// 10 second timeout.
	HTTPClient *http.Client
	// Logger receives resolution events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Resolver resolves references into validated descriptors. Resolution has no
// side effects beyond the discovery fetch; callers cache the result for the
// duration of one orchestration run only.
type Resolver struct {
	client *http.Client
	logger logging.Logger
}

// NewResolver constructs a Resolver with optional overrides.
func NewResolver(optFns ...func(o *ResolverOptions)) *Resolver {
	opts := ResolverOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{client: opts.HTTPClient, logger: opts.Logger}
}

// Resolve returns the descriptor named by ref. An inline descriptor is
// validated and returned as-is; a URL reference fetches the well-known
// document under the base URL. Network failures and malformed documents fail
// with a discovery error, a 404 from the remote fails with not found.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (*Descriptor, error) {
	if ref.Inline != nil {
		if err := ref.Inline.Validate(); err != nil {
			return nil, err
		}
		d := *ref.Inline
		return &d, nil
	}

	if ref.URL == "" {
		return nil, core.NewError(core.KindDiscovery, "empty descriptor reference")
	}

	url := strings.TrimSuffix(ref.URL, "/") + WellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.WrapError(core.KindDiscovery, err, "building discovery request for %s", url)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.KindDiscovery, err, "fetching descriptor document from %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.NewError(core.KindNotFound, "no descriptor document at %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewError(core.KindDiscovery, "discovery fetch from %s returned status %d", url, resp.StatusCode)
	}

	var d Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, core.WrapError(core.KindDiscovery, err, "malformed descriptor document at %s", url)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r.logger.Debug("descriptor.resolved", "agent_id", d.AgentID, "endpoint", d.Endpoint, "source", url)

	return &d, nil
}
