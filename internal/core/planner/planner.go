package planner

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ning0612/filesync/internal/core/conflict"
	"github.com/Ning0612/filesync/internal/core/diff"
	"github.com/Ning0612/filesync/internal/domain"
)

// Planner reconciles a local snapshot against peer snapshots
type Planner interface {
	Plan(remoteName string, local domain.Snapshot, peers []domain.PeerSnapshot) *domain.SyncPlan
}

// DefaultPlanner uses diff and conflict modules
type DefaultPlanner struct {
	Differ   diff.Comparer
	Resolver conflict.Resolver
}

// NewDefaultPlanner creates a new planner with default components
func NewDefaultPlanner() *DefaultPlanner {
	return &DefaultPlanner{
		Differ:   diff.NewDefaultComparer(),
		Resolver: conflict.NewLatestWins(),
	}
}

// Plan merges peers in the given order, compares the winners against local
// and returns the stale paths sorted by path. No peers yields NoPeers.
func (p *DefaultPlanner) Plan(remoteName string, local domain.Snapshot, peers []domain.PeerSnapshot) *domain.SyncPlan {
	plan := &domain.SyncPlan{
		RemoteName: remoteName,
		Changes:    map[string]domain.ChangeRecord{},
		Stale:      make([]domain.StalePath, 0),
	}
	plan.Stats.LocalFiles = len(local)
	plan.Stats.PeersResponded = len(peers)

	if len(peers) == 0 {
		plan.NoPeers = true
		plan.Stats.TotalPaths = len(local)
		return plan
	}

	plan.Changes = p.Resolver.Resolve(peers)
	plan.Stats.RemoteFiles = len(plan.Changes)

	localPaths := mapset.NewThreadUnsafeSetWithSize[string](len(local))
	for path := range local {
		localPaths.Add(path)
	}
	remotePaths := mapset.NewThreadUnsafeSetWithSize[string](len(plan.Changes))
	for path := range plan.Changes {
		remotePaths.Add(path)
	}
	plan.Stats.TotalPaths = localPaths.Union(remotePaths).Cardinality()

	// only paths some peer has can be stale
	candidates := remotePaths.ToSlice()
	sort.Strings(candidates)

	for _, path := range candidates {
		change := plan.Changes[path]

		var localMeta *domain.Metadata
		if m, ok := local[path]; ok {
			localMeta = &m
		}

		result := p.Differ.Compare(localMeta, change)
		if !result.Stale() {
			continue
		}
		if localMeta == nil {
			plan.Stats.MissingLocally++
		}
		plan.Stale = append(plan.Stale, domain.StalePath{
			Path:   path,
			Change: change,
			Local:  localMeta,
			Reason: result.String(),
		})
	}
	plan.Stats.FilesToFetch = len(plan.Stale)

	return plan
}

// Plan is a shorthand for NewDefaultPlanner().Plan
func Plan(remoteName string, local domain.Snapshot, peers []domain.PeerSnapshot) *domain.SyncPlan {
	return NewDefaultPlanner().Plan(remoteName, local, peers)
}
