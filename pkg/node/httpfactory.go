package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
)

// Upstream maps a stereotype to the WebDriver-wire-protocol endpoint a
// real driver process (chromedriver, geckodriver, ...) listens on. The
// session factory itself stays a black box from the distributor's point
// of view; this is one concrete implementation of it, not the only one.
type Upstream struct {
	Stereotype capabilities.Capabilities
	BaseURL    string
}

// HTTPFactory implements SessionFactory by forwarding to whichever
// Upstream's stereotype matches the requested capabilities, the same way
// Remote forwards node-to-node traffic (see remote.go's do helper).
type HTTPFactory struct {
	client    *http.Client
	upstreams []Upstream

	mu       sync.Mutex
	sessions map[grid.SessionID]string // session id -> upstream base URL
}

// NewHTTPFactory builds an HTTPFactory that dispatches across upstreams.
func NewHTTPFactory(upstreams []Upstream) *HTTPFactory {
	return &HTTPFactory{
		client:    &http.Client{Timeout: 60 * time.Second},
		upstreams: upstreams,
		sessions:  make(map[grid.SessionID]string),
	}
}

func (f *HTTPFactory) pick(stereotype capabilities.Capabilities) (Upstream, bool) {
	for _, u := range f.upstreams {
		if u.Stereotype.Satisfies(stereotype) {
			return u, true
		}
	}
	return Upstream{}, false
}

type webDriverNewSessionRequest struct {
	Capabilities struct {
		AlwaysMatch capabilities.Capabilities `json:"alwaysMatch"`
	} `json:"capabilities"`
}

type webDriverNewSessionResponse struct {
	Value struct {
		SessionID    string                    `json:"sessionId"`
		Capabilities capabilities.Capabilities `json:"capabilities"`
	} `json:"value"`
}

// NewSession implements SessionFactory by issuing a real WebDriver
// "New Session" call against the matching upstream.
func (f *HTTPFactory) NewSession(ctx context.Context, stereotype, want capabilities.Capabilities) (grid.Session, error) {
	upstream, ok := f.pick(stereotype)
	if !ok {
		return grid.Session{}, errors.NewSessionNotCreatedError(
			fmt.Sprintf("no upstream configured for stereotype %v", stereotype), nil)
	}

	var payload webDriverNewSessionRequest
	payload.Capabilities.AlwaysMatch = want

	body, err := json.Marshal(payload)
	if err != nil {
		return grid.Session{}, errors.NewInternalError("encoding new-session payload failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstream.BaseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return grid.Session{}, errors.NewTransportError("building driver new-session request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return grid.Session{}, errors.NewRetryableRequestError("driver new-session request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return grid.Session{}, errors.NewTransportError("reading driver new-session response failed", err)
	}
	if resp.StatusCode >= 300 {
		return grid.Session{}, errors.NewSessionNotCreatedError(string(respBody), nil)
	}

	var decoded webDriverNewSessionResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return grid.Session{}, errors.NewInternalError("decoding driver new-session response failed", err)
	}

	session := grid.Session{
		ID:         grid.SessionID(decoded.Value.SessionID),
		Stereotype: decoded.Value.Capabilities,
		StartedAt:  time.Now(),
	}

	f.mu.Lock()
	f.sessions[session.ID] = upstream.BaseURL
	f.mu.Unlock()

	return session, nil
}

// StopSession implements SessionFactory with a WebDriver "Delete Session" call.
func (f *HTTPFactory) StopSession(ctx context.Context, sessionID grid.SessionID) error {
	base, ok := f.upstreamFor(sessionID)
	if !ok {
		return errors.NewNoSuchSessionError(fmt.Sprintf("no upstream known for session %s", sessionID), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, base+"/session/"+string(sessionID), nil)
	if err != nil {
		return errors.NewTransportError("building driver stop-session request failed", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return errors.NewTransportError("driver stop-session request failed", err)
	}
	defer resp.Body.Close()

	f.mu.Lock()
	delete(f.sessions, sessionID)
	f.mu.Unlock()
	return nil
}

// ExecuteWebDriverCommand implements SessionFactory by forwarding the
// wire-protocol call straight through to the owning upstream.
func (f *HTTPFactory) ExecuteWebDriverCommand(ctx context.Context, sessionID grid.SessionID, method, path string, body []byte) (int, []byte, error) {
	base, ok := f.upstreamFor(sessionID)
	if !ok {
		return 0, nil, errors.NewNoSuchSessionError(fmt.Sprintf("no upstream known for session %s", sessionID), nil)
	}

	url := fmt.Sprintf("%s/session/%s%s", base, sessionID, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.NewTransportError("building driver forward request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, errors.NewTransportError("forwarding driver command failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.NewTransportError("reading driver response failed", err)
	}
	return resp.StatusCode, respBody, nil
}

func (f *HTTPFactory) upstreamFor(sessionID grid.SessionID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base, ok := f.sessions[sessionID]
	return base, ok
}
