// Package lease serializes surface access between agent loops. A loop
// acquires the lease for the span of one dispatched action, so concurrent
// loops sharing a device never interleave half-delivered input. The zero
// lease is for a surface that is exclusively ours; Local covers loops inside
// one process; Redis covers loops spread over several.
package lease

import "context"

// Nop grants immediately. Used when nothing else can touch the surface.
type Nop struct{}

// Acquire returns a release that does nothing.
func (Nop) Acquire(context.Context) (func(), error) {
	return func() {}, nil
}
