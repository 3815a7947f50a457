// Package httpapi implements the grid's intra-cluster HTTP surface
// (spec.md §6), one chi router per service, wired through the
// apierrors.ErrorHandler decorator the way the teacher wires its own
// API routers.
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
	"github.com/stacklok/gridcore/pkg/queue"
	"github.com/stacklok/gridcore/pkg/secretauth"
)

type queueRoutes struct {
	q      *queue.Queue
	secret string
	ready  func() error
}

// NewQueueRouter builds the HTTP surface for the Session Queue service
// (spec.md §6, "Queue service").
func NewQueueRouter(q *queue.Queue, secret string, ready func() error) http.Handler {
	routes := &queueRoutes{q: q, secret: secret, ready: ready}

	r := chi.NewRouter()
	r.Post("/session", apierrors.ErrorHandler(routes.createSessionRaw))
	r.Post("/se/grid/newsessionqueuer/session", apierrors.ErrorHandler(routes.createSession))

	locked := chi.NewRouter()
	locked.Use(secretauth.Middleware(secret))
	locked.Post("/session/retry/{requestId}", apierrors.ErrorHandler(routes.retryAdd))
	locked.Get("/session/{requestId}", apierrors.ErrorHandler(routes.removeByID))
	locked.Delete("/queue", apierrors.ErrorHandler(routes.clear))
	r.Mount("/se/grid/newsessionqueuer", locked)

	r.Get("/se/grid/newsessionqueuer/queue", apierrors.ErrorHandler(routes.contents))
	r.Get("/readyz", apierrors.ErrorHandler(routes.readyz))

	return r
}

type rawSessionPayload struct {
	Capabilities capabilities.Capabilities `json:"capabilities"`
}

type createSessionResponse struct {
	SessionID    grid.SessionID            `json:"sessionId"`
	Capabilities capabilities.Capabilities `json:"capabilities"`
	NodeURI      string                    `json:"nodeUri"`
}

// createSessionRaw
//
//	@Summary		Create a new browser session
//	@Description	Blocks until the request is matched to a node or its deadline elapses
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	createSessionResponse
//	@Failure		504	{string}	string	"request timed out"
//	@Router			/session [post]
func (q *queueRoutes) createSessionRaw(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.NewInvalidArgumentError("reading session creation payload", err)
	}
	if err := validateSessionPayload(body); err != nil {
		return err
	}

	var payload rawSessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.NewInvalidArgumentError("invalid session creation payload", err)
	}
	req := &grid.SessionRequest{
		Dialects:          []string{"W3C"},
		CapabilityChoices: []capabilities.Capabilities{payload.Capabilities},
	}
	return q.serve(w, r, req)
}

// createSession accepts an already-formed SessionRequest body.
//
//	@Summary		Create a new browser session from a pre-built request
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	createSessionResponse
//	@Router			/se/grid/newsessionqueuer/session [post]
func (q *queueRoutes) createSession(w http.ResponseWriter, r *http.Request) error {
	var req grid.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.NewInvalidArgumentError("invalid session request body", err)
	}
	return q.serve(w, r, &req)
}

func (q *queueRoutes) serve(w http.ResponseWriter, r *http.Request, req *grid.SessionRequest) error {
	res, err := q.q.Add(r.Context(), req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(createSessionResponse{
		SessionID:    res.Session.ID,
		Capabilities: res.Session.Stereotype,
		NodeURI:      res.NodeURI,
	})
}

// retryAdd
//
//	@Summary		Reinsert a request at the head of the queue
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Success		200	{boolean}	bool
//	@Router			/se/grid/newsessionqueuer/session/retry/{requestId} [post]
func (q *queueRoutes) retryAdd(w http.ResponseWriter, r *http.Request) error {
	var req grid.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.NewInvalidArgumentError("invalid request body", err)
	}
	req.RequestID = grid.RequestID(chi.URLParam(r, "requestId"))

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(q.q.RetryAdd(&req))
}

// removeByID
//
//	@Summary		Dequeue a request by id
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	grid.SessionRequest
//	@Router			/se/grid/newsessionqueuer/session/{requestId} [get]
func (q *queueRoutes) removeByID(w http.ResponseWriter, r *http.Request) error {
	requestID := grid.RequestID(chi.URLParam(r, "requestId"))
	req, ok := q.q.Remove(requestID)

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusOK)
		return json.NewEncoder(w).Encode(nil)
	}
	return json.NewEncoder(w).Encode(req)
}

// clear
//
//	@Summary		Clear the queue
//	@Tags			queue
//	@Produce		json
//	@Success		200	{integer}	int
//	@Router			/se/grid/newsessionqueuer/queue [delete]
func (q *queueRoutes) clear(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(q.q.Clear())
}

// contents
//
//	@Summary		List the capability sets of queued requests
//	@Tags			queue
//	@Produce		json
//	@Success		200	{array}	capabilities.Capabilities
//	@Router			/se/grid/newsessionqueuer/queue [get]
func (q *queueRoutes) contents(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(q.q.Contents())
}

func (q *queueRoutes) readyz(w http.ResponseWriter, _ *http.Request) error {
	if q.ready != nil {
		if err := q.ready(); err != nil {
			return errors.WithCode(err, http.StatusServiceUnavailable)
		}
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
