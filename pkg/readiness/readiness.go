// Package readiness combines the Ready checks of a service's
// dependencies into the single AND a /readyz endpoint reports (spec.md
// §6: "GET /readyz — 204 when ready, otherwise 5xx").
package readiness

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Checker is anything with a Ready probe — the event bus, a session
// map, the distributor itself.
type Checker interface {
	Ready(ctx context.Context) error
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context) error

// Ready implements Checker.
func (f CheckerFunc) Ready(ctx context.Context) error { return f(ctx) }

// All runs every checker's Ready concurrently and returns the first
// error encountered, or nil if all succeeded.
func All(checkers ...Checker) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		for _, c := range checkers {
			c := c
			g.Go(func() error { return c.Ready(ctx) })
		}
		return g.Wait()
	}
}
