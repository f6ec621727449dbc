package domain

// ChangeRecord is the winning version of one path across responding peers.
// It only lives for the duration of one reconciliation pass.
type ChangeRecord struct {
	Path         string
	Hash         string
	LastModified float64

	// PeerAlias is the peer holding this version
	PeerAlias string
}

// PeerSnapshot is the index one peer reported for a remote
type PeerSnapshot struct {
	Alias string
	Files Snapshot
}

// StalePath is a path that must be downloaded, and from whom
type StalePath struct {
	Path string

	// Change is the winning record; the download comes from Change.PeerAlias
	Change ChangeRecord

	// Local is the current local metadata, nil when the path is absent locally
	Local *Metadata

	// Reason explains why the path was marked stale
	Reason string
}

// SyncPlan is the result of reconciling a local snapshot against peers
type SyncPlan struct {
	// RemoteName identifies which remote generated this plan
	RemoteName string

	// NoPeers is set when no peer responded; the cycle is idle, not failed
	NoPeers bool

	// Changes holds the winning record per path
	Changes map[string]ChangeRecord

	// Stale is sorted by path
	Stale []StalePath

	// Stats summary
	Stats SyncPlanStats
}

// SyncPlanStats provides summary statistics for a sync plan
type SyncPlanStats struct {
	PeersResponded int
	LocalFiles     int
	RemoteFiles    int
	TotalPaths     int
	FilesToFetch   int
	MissingLocally int
}
