package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/secretauth"
)

// healthCheckRetries bounds how many attempts (the first one included) a
// single HealthCheck call makes on transport failures before giving up;
// the distributor then marks the node DOWN.
const healthCheckRetries uint = 3

// Remote is a Node handle that talks to a node's HTTP surface
// (spec.md §6: "Node service exposes newSession, executeWebDriverCommand,
// status, healthcheck, drain"). The distributor constructs one of these
// whenever it learns about a node it does not already hold a local
// handle for.
type Remote struct {
	id            grid.NodeID
	uri           string
	secret        string
	client        *http.Client
	retryInterval time.Duration
}

// NewRemote builds a Remote node handle. retryInterval seeds the
// exponential backoff HealthCheck applies to transient transport
// failures (spec.md §6's sessionqueue.retry-interval is reused here as
// the grid's one general-purpose retry cadence, rather than inventing
// a second tunable for the same idea).
func NewRemote(id grid.NodeID, uri, secret string, retryInterval time.Duration) *Remote {
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	return &Remote{
		id:            id,
		uri:           uri,
		secret:        secret,
		client:        &http.Client{Timeout: 30 * time.Second},
		retryInterval: retryInterval,
	}
}

// ID implements Node.
func (r *Remote) ID() grid.NodeID { return r.id }

// URI implements Node.
func (r *Remote) URI() string { return r.uri }

type newSessionRequest struct {
	SlotLocal grid.SlotLocalID          `json:"slotLocal"`
	Want      capabilities.Capabilities `json:"want"`
}

// NewSession implements Node over HTTP.
func (r *Remote) NewSession(ctx context.Context, slotID grid.SlotID, want capabilities.Capabilities) (grid.Session, error) {
	var session grid.Session
	err := r.do(ctx, http.MethodPost, "/session", newSessionRequest{SlotLocal: slotID.Local, Want: want}, &session)
	return session, err
}

// ExecuteWebDriverCommand implements Node over HTTP, forwarding to the
// node's /session/{sessionId}/... surface.
func (r *Remote) ExecuteWebDriverCommand(ctx context.Context, sessionID grid.SessionID, method, path string, body []byte) (int, []byte, error) {
	url := fmt.Sprintf("%s/session/%s%s", r.uri, sessionID, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.NewTransportError("building webdriver forward request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	secretauth.SetHeader(req, r.secret)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, errors.NewTransportError("forwarding webdriver command failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.NewTransportError("reading webdriver response failed", err)
	}
	return resp.StatusCode, respBody, nil
}

// Stop implements Node over HTTP.
func (r *Remote) Stop(ctx context.Context, sessionID grid.SessionID) error {
	return r.do(ctx, http.MethodDelete, "/session/"+string(sessionID), nil, nil)
}

// Status implements Node over HTTP.
func (r *Remote) Status(ctx context.Context) (grid.NodeStatus, error) {
	var status grid.NodeStatus
	err := r.do(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

// HealthCheck implements Node over HTTP. A single dropped connection
// doesn't immediately flap a node to Down: transport failures are
// retried a few times with exponential backoff before giving up.
func (r *Remote) HealthCheck(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.do(ctx, http.MethodGet, "/healthcheck", nil, nil)
		if err != nil && !errors.IsTransport(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(healthCheckRetries))
	return err
}

// Drain implements Node over HTTP.
func (r *Remote) Drain(ctx context.Context) error {
	return r.do(ctx, http.MethodPost, "/drain", nil, nil)
}

// IsDraining is not knowable without a round trip; callers should
// consult the distributor's Grid Model availability instead, which is
// kept current via status reports and heartbeats.
func (r *Remote) IsDraining() bool { return false }

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("encoding request body failed", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.uri+path, reader)
	if err != nil {
		return errors.NewTransportError("building node request failed", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	secretauth.SetHeader(req, r.secret)

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.NewTransportError("node request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransportError("reading node response failed", err)
	}

	if resp.StatusCode >= 300 {
		return errors.WithCode(errors.NewTransportError(string(respBody), nil), resp.StatusCode)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.NewInternalError("decoding node response failed", err)
		}
	}
	return nil
}
