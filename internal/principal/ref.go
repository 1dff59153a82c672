package principal

import "sync/atomic"

// ResolverRef holds the current Resolver behind an atomic pointer so a
// config reload can swap in a freshly built Resolver (new tokens/
// projects) without disrupting in-flight AuthFromToken calls, mirroring
// config.Ref's single-writer/many-reader pattern.
type ResolverRef struct {
	p atomic.Pointer[Resolver]
}

func NewResolverRef(initial *Resolver) *ResolverRef {
	r := &ResolverRef{}
	r.p.Store(initial)
	return r
}

func (r *ResolverRef) Publish(resolver *Resolver) {
	r.p.Store(resolver)
}

// AuthFromToken delegates to the currently published Resolver, so
// ResolverRef itself satisfies the same interface frontend's auth
// middleware expects from a plain *Resolver.
func (r *ResolverRef) AuthFromToken(token string) (Principal, error) {
	return r.p.Load().AuthFromToken(token)
}
