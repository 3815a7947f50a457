package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/gridcore/pkg/apierrors"
	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/distributor"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/queue"
	"github.com/stacklok/gridcore/pkg/secretauth"
)

type distributorRoutes struct {
	d      *distributor.Distributor
	q      *queue.Queue
	bus    eventbus.Bus
	secret string
}

// NewDistributorRouter builds the HTTP surface for the Distributor
// service (spec.md §6, "Distributor service"). q is the same Session
// Queue the queue service runs on top of — a synchronous session
// creation here still goes through the scheduler tick, it just waits
// for the matching promise itself rather than handing it back to a
// separate queue-service caller.
func NewDistributorRouter(d *distributor.Distributor, q *queue.Queue, bus eventbus.Bus, secret string) http.Handler {
	routes := &distributorRoutes{d: d, q: q, bus: bus, secret: secret}

	r := chi.NewRouter()
	r.Get("/se/grid/distributor/status", apierrors.ErrorHandler(routes.status))
	r.Post("/se/grid/distributor/session", apierrors.ErrorHandler(routes.createSessionSync))
	r.Get("/readyz", apierrors.ErrorHandler(routes.readyz))

	locked := chi.NewRouter()
	locked.Use(secretauth.Middleware(secret))
	locked.Post("/node", apierrors.ErrorHandler(routes.registerNode))
	locked.Post("/node/{nodeId}/drain", apierrors.ErrorHandler(routes.drainNode))
	r.Mount("/se/grid/distributor", locked)

	return r
}

// status
//
//	@Summary		Distributor status snapshot
//	@Tags			distributor
//	@Produce		json
//	@Success		200	{array}	grid.NodeStatus
//	@Router			/se/grid/distributor/status [get]
func (dr *distributorRoutes) status(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(dr.d.Status(r.Context()))
}

type registerNodeRequest struct {
	Status grid.NodeStatus `json:"status"`
	Secret string          `json:"secret"`
}

// registerNode
//
//	@Summary		Register a node with the distributor
//	@Tags			distributor
//	@Accept			json
//	@Router			/se/grid/distributor/node [post]
func (dr *distributorRoutes) registerNode(w http.ResponseWriter, r *http.Request) error {
	var req registerNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.NewInvalidArgumentError("invalid node registration payload", err)
	}
	// Registration over this locked route is trusted by the middleware;
	// publishing as a NodeStatusEvent lets indirect (event-derived)
	// and direct registration share one code path.
	dr.bus.Publish(eventbus.TopicNodeStatus, distributor.NodeStatusEvent{Status: req.Status, Secret: dr.secret})
	w.WriteHeader(http.StatusAccepted)
	return nil
}

// drainNode
//
//	@Summary		Drain a node
//	@Tags			distributor
//	@Router			/se/grid/distributor/node/{nodeId}/drain [post]
func (dr *distributorRoutes) drainNode(w http.ResponseWriter, r *http.Request) error {
	nodeID := grid.NodeID(chi.URLParam(r, "nodeId"))
	if err := dr.d.Drain(r.Context(), nodeID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

type syncSessionRequest struct {
	Dialects          []string                    `json:"dialects"`
	CapabilityChoices []capabilities.Capabilities `json:"capabilitiesChoices"`
}

// createSessionSync asks the distributor to create a session directly,
// used by tests and the router (spec.md §6) rather than by ordinary
// clients, who go through the queue service's /session instead.
//
//	@Summary		Create a session synchronously
//	@Tags			distributor
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	createSessionResponse
//	@Router			/se/grid/distributor/session [post]
func (dr *distributorRoutes) createSessionSync(w http.ResponseWriter, r *http.Request) error {
	var payload syncSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return errors.NewInvalidArgumentError("invalid session request body", err)
	}
	req := &grid.SessionRequest{Dialects: payload.Dialects, CapabilityChoices: payload.CapabilityChoices}

	res, err := dr.q.Add(r.Context(), req)
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

func (dr *distributorRoutes) readyz(w http.ResponseWriter, r *http.Request) error {
	if err := dr.d.Ready(r.Context()); err != nil {
		return errors.WithCode(err, http.StatusServiceUnavailable)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
