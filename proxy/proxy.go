// Package proxy implements the remote agent proxy: a client-side stand-in for
// an agent reachable over the network. It enforces a hard per-call timeout,
// retries unreachable endpoints a bounded number of times, accumulates
// streamed response chunks into one complete response, and wraps the exchange
// in a circuit breaker. The proxy keeps no state between calls beyond breaker
// counters.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/crewlink/crewlink/core"
	"github.com/crewlink/crewlink/descriptor"
	"github.com/crewlink/crewlink/logging"
)

// Options configure a RemoteAgent.
type Options struct {
	// Timeout is the hard per-call deadline. A call that exceeds it fails
	// with a timeout and is never retried. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries bounds re-attempts after an unreachable endpoint. Defaults
	// to 1. Timeouts and remote errors are never retried.
	MaxRetries int
	// RetryBackoff is the pause before a retry. Defaults to 200ms.
	RetryBackoff time.Duration
	// Stream selects the chunked invoke endpoint; chunks are accumulated so
	// the caller still receives exactly one complete response.
	Stream bool
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Defaults to 5.
	BreakerThreshold uint32
	// HTTPClient defaults to a plain http.Client; the per-call deadline comes
	// from the context, not the client.
	HTTPClient *http.Client
	// Logger receives call events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// RemoteAgent invokes one remote agent identified by its resolved descriptor.
// It is safe for concurrent use.
type RemoteAgent struct {
	desc    descriptor.Descriptor
	opts    Options
	breaker *gobreaker.CircuitBreaker[*core.AgentResponse]
}

// New creates a proxy for a resolved descriptor.
func New(desc descriptor.Descriptor, optFns ...func(o *Options)) (*RemoteAgent, error) {
	opts := Options{
		Timeout:          30 * time.Second,
		MaxRetries:       1,
		RetryBackoff:     200 * time.Millisecond,
		BreakerThreshold: 5,
		HTTPClient:       &http.Client{},
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}

	threshold := opts.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker[*core.AgentResponse](gobreaker.Settings{
		Name:        desc.AgentID,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &RemoteAgent{desc: desc, opts: opts, breaker: breaker}, nil
}

// Dial resolves a reference and creates a proxy for the resulting descriptor.
func Dial(ctx context.Context, resolver *descriptor.Resolver, ref descriptor.Reference, optFns ...func(o *Options)) (*RemoteAgent, error) {
	desc, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return New(*desc, optFns...)
}

// Descriptor returns the descriptor this proxy was built from.
func (r *RemoteAgent) Descriptor() descriptor.Descriptor { return r.desc }

// Call invokes the remote agent and returns its complete response.
//
// Failure modes:
//   - timeout: the per-call deadline expired; the deadline is hard, no retry
//   - unreachable: the endpoint could not be reached; retried up to
//     MaxRetries with a short backoff
//   - remote_error: the agent returned a well-formed error; its body is
//     carried verbatim in the error payload
func (r *RemoteAgent) Call(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			r.opts.Logger.Debug("proxy.call.retry", "agent_id", r.desc.AgentID, "attempt", attempt)
			select {
			case <-time.After(r.opts.RetryBackoff):
			case <-callCtx.Done():
				return nil, r.classifyContextErr(ctx, callCtx)
			}
		}

		resp, err := r.breaker.Execute(func() (*core.AgentResponse, error) {
			return r.exchange(callCtx, req)
		})
		if err == nil {
			return resp, nil
		}

		lastErr = r.classify(ctx, callCtx, err)
		if !core.IsKind(lastErr, core.KindUnreachable) {
			break
		}
	}

	r.opts.Logger.Warn("proxy.call.failed", "agent_id", r.desc.AgentID, "error", lastErr.Error())

	return nil, lastErr
}

// exchange performs one HTTP round trip, blocking or streamed.
func (r *RemoteAgent) exchange(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	path := "/invoke"
	if r.opts.Stream {
		path = "/invoke/stream"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.AgentError(core.KindRemote, r.desc.AgentID, err, "encoding request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(r.desc.Endpoint, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, core.AgentError(core.KindUnreachable, r.desc.AgentID, err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, r.remoteError(httpResp)
	}

	if r.opts.Stream {
		return r.accumulate(httpResp.Body)
	}

	var resp core.AgentResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, core.AgentError(core.KindRemote, r.desc.AgentID, err, "decoding response body")
	}
	resp.Final = true

	return &resp, nil
}

// accumulate folds NDJSON chunks into one response. The stream either ends
// with a final chunk or a terminal error frame; routers never observe the
// partial states in between.
func (r *RemoteAgent) accumulate(body io.Reader) (*core.AgentResponse, error) {
	var acc core.AgentResponse

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame struct {
			core.AgentResponse
			Error json.RawMessage `json:"error,omitempty"`
		}
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, core.AgentError(core.KindRemote, r.desc.AgentID, err, "decoding stream chunk")
		}
		if len(frame.Error) > 0 {
			return nil, &core.Error{
				Kind:    core.KindRemote,
				Agent:   r.desc.AgentID,
				Message: "remote agent reported an error",
				Payload: append(json.RawMessage(nil), frame.Error...),
			}
		}

		acc.Merge(frame.AgentResponse)
		if frame.Final {
			return &acc, nil
		}
	}
	// A drop after the status line means remote work has already started;
	// classifying it as unreachable would let Call retry and duplicate side
	// effects, so it surfaces as a remote error instead.
	if err := scanner.Err(); err != nil {
		return nil, core.AgentError(core.KindRemote, r.desc.AgentID, err, "stream interrupted")
	}

	return nil, core.AgentError(core.KindRemote, r.desc.AgentID, nil, "stream ended without a final chunk")
}

// remoteError wraps a non-200 response, carrying the body verbatim so the
// front door can surface the remote agent's own error unmodified.
func (r *RemoteAgent) remoteError(httpResp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64*1024))

	return &core.Error{
		Kind:    core.KindRemote,
		Agent:   r.desc.AgentID,
		Message: "remote agent returned status " + httpResp.Status,
		Payload: json.RawMessage(payload),
	}
}

// classify maps transport-level failures onto the error taxonomy. A breaker
// in the open state counts as unreachable so callers observe a consistent
// kind whether the endpoint or the breaker rejected the call.
func (r *RemoteAgent) classify(parent, callCtx context.Context, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.AgentError(core.KindUnreachable, r.desc.AgentID, err, "circuit open")
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil || parent.Err() != nil {
		return r.classifyContextErr(parent, callCtx)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return core.AgentError(core.KindUnreachable, r.desc.AgentID, err, "endpoint %s unreachable", r.desc.Endpoint)
	}

	return core.AgentError(core.KindUnreachable, r.desc.AgentID, err, "call failed")
}

// classifyContextErr separates the proxy's own deadline from caller
// cancellation: only the former is a timeout in the taxonomy.
func (r *RemoteAgent) classifyContextErr(parent, callCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return core.AgentError(core.KindTimeout, r.desc.AgentID, callCtx.Err(),
		"call exceeded %s deadline", r.opts.Timeout)
}
