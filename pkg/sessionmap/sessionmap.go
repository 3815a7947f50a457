// Package sessionmap implements the authoritative mapping from session
// ID to the URI of the node currently hosting the session (spec.md
// §4.2). The backing store is replaceable: InMemory for a
// single-process distributor, Redis for a store shared across a
// cluster of distributors.
package sessionmap

import (
	"context"

	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/grid"
)

// Map is the contract every consumer (distributor, router) depends on.
type Map interface {
	// Add binds sessionID to uri. Fails with a SessionExists error if
	// the id is already bound.
	Add(ctx context.Context, sessionID grid.SessionID, uri string) error
	// GetURI returns the node URI hosting sessionID. Fails with a
	// NoSuchSession error if there is no binding.
	GetURI(ctx context.Context, sessionID grid.SessionID) (string, error)
	// Remove unbinds sessionID. Idempotent.
	Remove(ctx context.Context, sessionID grid.SessionID) error
	// Ready reports whether the backing store is reachable.
	Ready(ctx context.Context) error
}

// newSessionExistsError builds the SessionExists error every Map
// implementation in this package returns for an already-bound id.
func newSessionExistsError(sessionID grid.SessionID) error {
	return errors.NewSessionExistsError("session already bound: "+string(sessionID), nil)
}

func newNoSuchSessionError(sessionID grid.SessionID) error {
	return errors.NewNoSuchSessionError("no such session: "+string(sessionID), nil)
}
