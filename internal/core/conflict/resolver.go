package conflict

import "github.com/Ning0612/filesync/internal/domain"

// Resolver merges peer snapshots into one winning record per path
type Resolver interface {
	// Resolve walks snapshots in the given order. The order is the tie-break
	// key, so callers pass peers in configured order, not arrival order.
	Resolve(snapshots []domain.PeerSnapshot) map[string]domain.ChangeRecord
}

// LatestWins keeps, per path, the record with the strictly greatest
// LastModified. On equal timestamps the first-seen record stays.
type LatestWins struct{}

// NewLatestWins creates a LatestWins resolver
func NewLatestWins() *LatestWins {
	return &LatestWins{}
}

// Resolve implements the Resolver interface
func (r *LatestWins) Resolve(snapshots []domain.PeerSnapshot) map[string]domain.ChangeRecord {
	changes := make(map[string]domain.ChangeRecord)

	for _, snap := range snapshots {
		for path, meta := range snap.Files {
			if cur, ok := changes[path]; ok && meta.LastModified <= cur.LastModified {
				continue
			}
			changes[path] = domain.ChangeRecord{
				Path:         path,
				Hash:         meta.Hash,
				LastModified: meta.LastModified,
				PeerAlias:    snap.Alias,
			}
		}
	}

	return changes
}
