package config

import "sync/atomic"

// Ref is the single-writer/many-reader atomic snapshot pointer described
// in spec §5 and §9. Readers call Current() once at the start of an
// operation and use that snapshot for the operation's full duration,
// even if a newer snapshot is published mid-operation (P8).
type Ref struct {
	p atomic.Pointer[NormalizedConfig]
}

func NewRef(initial *NormalizedConfig) *Ref {
	r := &Ref{}
	r.p.Store(initial)
	return r
}

// Current returns the latest published snapshot.
func (r *Ref) Current() *NormalizedConfig {
	return r.p.Load()
}

// Publish swaps in a new snapshot. Only the reloader calls this.
func (r *Ref) Publish(nc *NormalizedConfig) {
	r.p.Store(nc)
}
