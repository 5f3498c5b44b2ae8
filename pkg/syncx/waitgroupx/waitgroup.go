// Package waitgroupx provides a sync.WaitGroup-alike with an associated,
// cancelable context.
package waitgroupx

import (
	"context"

	"github.com/pilotx/pilotx/pkg/syncx/errgroupx"
)

// Group is a thin wrapper around errgroupx.Group for goroutines that do not
// return errors.
type Group struct {
	inner *errgroupx.Group
}

// WithContext creates a Group as a child of the given context.
func WithContext(ctx context.Context) Group {
	return Group{inner: errgroupx.WithContext(ctx)}
}

// Go launches the given function in a goroutine as a member of the group.
func (g *Group) Go(f func(ctx context.Context)) {
	g.inner.Go(func(ctx context.Context) error {
		f(ctx)
		return nil
	})
}

// Wait for all members of the group to complete.
func (g *Group) Wait() { _ = g.inner.Wait() }

// Cancel the group, without waiting for it to exit.
func (g *Group) Cancel() { g.inner.Cancel() }

// Close the group by canceling it and waiting for it.
func (g *Group) Close() { _ = g.inner.Close() }
