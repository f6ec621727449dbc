package peer

import (
	"fmt"

	"github.com/Ning0612/filesync/internal/domain"
)

// Registry maps aliases to peer endpoints. It is immutable after construction.
type Registry struct {
	peers map[string]domain.Peer
	order []string
}

// NewRegistry builds a registry. Later duplicates replace earlier ones;
// config validation rejects duplicates before this point.
func NewRegistry(peers []domain.Peer) *Registry {
	r := &Registry{peers: make(map[string]domain.Peer, len(peers))}
	for _, p := range peers {
		if _, seen := r.peers[p.Name]; !seen {
			r.order = append(r.order, p.Name)
		}
		r.peers[p.Name] = p
	}
	return r
}

// Resolve returns the endpoint for alias, or domain.ErrUnknownAlias
func (r *Registry) Resolve(alias string) (domain.Peer, error) {
	p, ok := r.peers[alias]
	if !ok {
		return domain.Peer{}, fmt.Errorf("%w: %s", domain.ErrUnknownAlias, alias)
	}
	return p, nil
}

// Known reports whether alias is registered
func (r *Registry) Known(alias string) bool {
	_, ok := r.peers[alias]
	return ok
}

// Aliases returns the registered aliases in registration order
func (r *Registry) Aliases() []string {
	return append([]string(nil), r.order...)
}
