// Package timeout provides a shared deadline helper for bounding an
// operation against a context that may already carry its own deadline.
package timeout

import (
	"context"
	"time"
)

// Do runs fn against ctx bounded by d: if ctx has no deadline, or its
// deadline is further out than d, a new deadline of d is applied. A
// non-positive d leaves ctx untouched. The derived context's cancel is
// always called before Do returns.
func Do(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	deadlined := time.Now().Add(d)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadlined) {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}
