package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/gridcore/pkg/apierrors"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/secretauth"
	"github.com/stacklok/gridcore/pkg/sessionmap"
)

type sessionMapRoutes struct {
	m sessionmap.Map
}

// NewSessionMapRouter builds the HTTP surface for the Session Map
// service (spec.md §6: "exposes add/remove/get under /se/grid/sessions").
func NewSessionMapRouter(m sessionmap.Map, secret string) http.Handler {
	routes := &sessionMapRoutes{m: m}

	r := chi.NewRouter()
	r.Get("/se/grid/sessions/{sessionId}", apierrors.ErrorHandler(routes.get))

	locked := chi.NewRouter()
	locked.Use(secretauth.Middleware(secret))
	locked.Post("/{sessionId}", apierrors.ErrorHandler(routes.add))
	locked.Delete("/{sessionId}", apierrors.ErrorHandler(routes.remove))
	r.Mount("/se/grid/sessions", locked)

	r.Get("/readyz", apierrors.ErrorHandler(routes.readyz))

	return r
}

type addSessionRequest struct {
	URI string `json:"uri"`
}

// add
//
//	@Summary		Bind a session to a node URI
//	@Tags			sessionmap
//	@Accept			json
//	@Router			/se/grid/sessions/{sessionId} [post]
func (s *sessionMapRoutes) add(w http.ResponseWriter, r *http.Request) error {
	sessionID := grid.SessionID(chi.URLParam(r, "sessionId"))
	var req addSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.NewInvalidArgumentError("invalid session-map add payload", err)
	}
	if err := s.m.Add(r.Context(), sessionID, req.URI); err != nil {
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return nil
}

// get
//
//	@Summary		Look up the node URI hosting a session
//	@Tags			sessionmap
//	@Produce		json
//	@Success		200	{string}	string
//	@Failure		404	{string}	string	"no such session"
//	@Router			/se/grid/sessions/{sessionId} [get]
func (s *sessionMapRoutes) get(w http.ResponseWriter, r *http.Request) error {
	sessionID := grid.SessionID(chi.URLParam(r, "sessionId"))
	uri, err := s.m.GetURI(r.Context(), sessionID)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(addSessionRequest{URI: uri})
}

// remove
//
//	@Summary		Unbind a session
//	@Tags			sessionmap
//	@Router			/se/grid/sessions/{sessionId} [delete]
func (s *sessionMapRoutes) remove(w http.ResponseWriter, r *http.Request) error {
	sessionID := grid.SessionID(chi.URLParam(r, "sessionId"))
	if err := s.m.Remove(r.Context(), sessionID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *sessionMapRoutes) readyz(w http.ResponseWriter, r *http.Request) error {
	if err := s.m.Ready(r.Context()); err != nil {
		return errors.WithCode(err, http.StatusServiceUnavailable)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
