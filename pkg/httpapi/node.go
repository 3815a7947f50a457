package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/gridcore/pkg/apierrors"
	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/node"
	"github.com/stacklok/gridcore/pkg/secretauth"
)

type nodeRoutes struct {
	n node.Node
}

// NewNodeRouter builds the HTTP surface for the Node service (spec.md
// §6: "exposes newSession, executeWebDriverCommand, status, healthcheck, drain").
func NewNodeRouter(n node.Node, secret string) http.Handler {
	routes := &nodeRoutes{n: n}

	r := chi.NewRouter()
	r.Get("/status", apierrors.ErrorHandler(routes.status))
	r.Get("/healthcheck", apierrors.ErrorHandler(routes.healthcheck))
	r.HandleFunc("/session/{sessionId}/*", routes.executeWebDriverCommand)
	r.Delete("/session/{sessionId}", apierrors.ErrorHandler(routes.stop))

	r.Group(func(locked chi.Router) {
		locked.Use(secretauth.Middleware(secret))
		locked.Post("/session", apierrors.ErrorHandler(routes.newSession))
		locked.Post("/drain", apierrors.ErrorHandler(routes.drain))
	})

	return r
}

type newSessionRequest struct {
	SlotLocal grid.SlotLocalID          `json:"slotLocal"`
	Want      capabilities.Capabilities `json:"want"`
}

// newSession
//
//	@Summary		Create a session on a specific slot
//	@Tags			node
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	grid.Session
//	@Failure		503	{string}	string	"RetryableRequest"
//	@Router			/session [post]
func (n *nodeRoutes) newSession(w http.ResponseWriter, r *http.Request) error {
	var req newSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.NewInvalidArgumentError("invalid new-session payload", err)
	}
	slotID := grid.SlotID{NodeID: n.n.ID(), Local: req.SlotLocal}

	session, err := n.n.NewSession(r.Context(), slotID, req.Want)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(session)
}

// executeWebDriverCommand forwards any WebDriver wire-protocol call
// under /session/{sessionId}/... to the session's SessionFactory,
// passing the upstream status code straight through rather than going
// through ErrorHandler's error-to-status mapping.
//
//	@Summary		Forward a WebDriver command to a session
//	@Tags			node
//	@Router			/session/{sessionId}/* [get]
func (n *nodeRoutes) executeWebDriverCommand(w http.ResponseWriter, r *http.Request) {
	sessionID := grid.SessionID(chi.URLParam(r, "sessionId"))
	path := "/" + chi.URLParam(r, "*")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	code, respBody, err := n.n.ExecuteWebDriverCommand(r.Context(), sessionID, r.Method, path, body)
	if err != nil {
		http.Error(w, err.Error(), errors.Code(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(respBody)
}

// stop
//
//	@Summary		End a session
//	@Tags			node
//	@Router			/session/{sessionId} [delete]
func (n *nodeRoutes) stop(w http.ResponseWriter, r *http.Request) error {
	sessionID := grid.SessionID(chi.URLParam(r, "sessionId"))
	if err := n.n.Stop(r.Context(), sessionID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// status
//
//	@Summary		Node status snapshot
//	@Tags			node
//	@Produce		json
//	@Success		200	{object}	grid.NodeStatus
//	@Router			/status [get]
func (n *nodeRoutes) status(w http.ResponseWriter, r *http.Request) error {
	status, err := n.n.Status(r.Context())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(status)
}

// healthcheck
//
//	@Summary		Node health check
//	@Tags			node
//	@Router			/healthcheck [get]
func (n *nodeRoutes) healthcheck(w http.ResponseWriter, r *http.Request) error {
	if err := n.n.HealthCheck(r.Context()); err != nil {
		return errors.WithCode(err, http.StatusServiceUnavailable)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// drain
//
//	@Summary		Drain a node
//	@Tags			node
//	@Router			/drain [post]
func (n *nodeRoutes) drain(w http.ResponseWriter, r *http.Request) error {
	if err := n.n.Drain(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}
