package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/filesync/internal/core/planner"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/index"
	"github.com/Ning0612/filesync/internal/logger"
	"github.com/Ning0612/filesync/internal/notify"
	"github.com/Ning0612/filesync/internal/progress"
	"github.com/Ning0612/filesync/internal/state"
)

// PeerClient talks to one peer's request server
type PeerClient interface {
	FetchIndex(ctx context.Context, p domain.Peer, remote string) (domain.Snapshot, error)
	FetchFile(ctx context.Context, p domain.Peer, remote, path string, w io.Writer) (int64, error)
}

// PeerResolver maps an alias to a dialable peer
type PeerResolver interface {
	Resolve(alias string) (domain.Peer, error)
}

// RemoteOptions wires a Remote to its collaborators. Fs, Planner, Notifier
// and Clock have defaults; Client and Peers are required.
type RemoteOptions struct {
	Fs          afero.Fs
	Client      PeerClient
	Peers       PeerResolver
	Planner     planner.Planner
	Notifier    notify.Notifier
	Reporter    progress.Reporter
	Clock       clockwork.Clock
	StagingRoot string
}

// Remote drives update cycles for one synchronized directory
type Remote struct {
	config domain.RemoteConfig
	index  *index.DirectoryIndex

	fs          afero.Fs
	client      PeerClient
	peers       PeerResolver
	planner     planner.Planner
	notifier    notify.Notifier
	reporter    progress.Reporter
	clock       clockwork.Clock
	stagingRoot string

	// cycles never overlap
	mu sync.Mutex
}

// PeerFailure records why a peer was left out of a cycle
type PeerFailure struct {
	Alias   string
	Address string
	Err     error
}

// InstalledFile is one path replaced during a cycle
type InstalledFile struct {
	Path        string
	PeerAlias   string
	BackupPath  string
	Size        int64
	InstalledAt time.Time
}

// CycleReport describes one Update call. It is returned, partially filled,
// alongside any error.
type CycleReport struct {
	CycleID    string
	Remote     string
	StartTime  time.Time
	EndTime    time.Time
	Status     string
	Plan       *domain.SyncPlan
	Excluded   []PeerFailure
	StagingDir string
	Installed  []InstalledFile

	PeersQueried int
	BytesFetched int64
}

// Record converts the report into a history row
func (r *CycleReport) Record(cycleErr error) state.CycleRecord {
	rec := state.CycleRecord{
		CycleID:        r.CycleID,
		RemoteName:     r.Remote,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Status:         r.Status,
		PeersQueried:   r.PeersQueried,
		PeersResponded: r.PeersQueried - len(r.Excluded),
		FilesInstalled: len(r.Installed),
		BytesFetched:   r.BytesFetched,
		StagingDir:     r.StagingDir,
	}
	if cycleErr != nil {
		rec.Error = cycleErr.Error()
	}
	for _, f := range r.Installed {
		rec.Installs = append(rec.Installs, state.InstallRecord{
			Path:        f.Path,
			PeerAlias:   f.PeerAlias,
			BackupPath:  f.BackupPath,
			InstalledAt: f.InstalledAt,
		})
	}
	return rec
}

// NewRemote creates a Remote around an existing index of cfg.LocalPath
func NewRemote(cfg domain.RemoteConfig, idx *index.DirectoryIndex, opts RemoteOptions) (*Remote, error) {
	if idx == nil {
		return nil, fmt.Errorf("remote %s: index cannot be nil", cfg.Name)
	}
	if opts.Client == nil || opts.Peers == nil {
		return nil, fmt.Errorf("remote %s: peer client and resolver are required", cfg.Name)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Planner == nil {
		opts.Planner = planner.NewDefaultPlanner()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.StagingRoot == "" {
		opts.StagingRoot = DefaultStagingRoot()
	}

	return &Remote{
		config:      cfg,
		index:       idx,
		fs:          opts.Fs,
		client:      opts.Client,
		peers:       opts.Peers,
		planner:     opts.Planner,
		notifier:    opts.Notifier,
		reporter:    opts.Reporter,
		clock:       opts.Clock,
		stagingRoot: opts.StagingRoot,
	}, nil
}

// Name returns the remote name
func (r *Remote) Name() string { return r.config.Name }

// Index returns the local directory index
func (r *Remote) Index() *index.DirectoryIndex { return r.index }

// Update runs one cycle: query peers, reconcile, stage, install, reindex.
// Peers that are unreachable or misbehave are excluded; everything else
// aborts the cycle. A cycle where no peer answered reports StatusIdle.
func (r *Remote) Update(ctx context.Context) (*CycleReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &CycleReport{
		CycleID:   uuid.NewString(),
		Remote:    r.Name(),
		StartTime: r.clock.Now(),
		Status:    state.StatusFailed,
	}
	log := logger.Get().With("remote", r.Name(), "cycle", report.CycleID)

	err := r.update(ctx, log, report)
	report.EndTime = r.clock.Now()
	if err != nil {
		report.Status = state.StatusFailed
		log.Error("update cycle failed", "error", err, "installed", len(report.Installed))
		return report, err
	}

	log.Info("update cycle finished",
		"status", report.Status,
		"installed", len(report.Installed),
		"bytes", progress.FormatBytes(report.BytesFetched),
		"duration", report.EndTime.Sub(report.StartTime),
	)
	return report, nil
}

func (r *Remote) update(ctx context.Context, log logger.Logger, report *CycleReport) error {
	// full rebuild so deletions since the last cycle leave the index
	if err := r.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	snapshots, peers, err := r.queryPeers(ctx, log, report)
	if err != nil {
		return err
	}

	snapshots = r.dropIgnored(log, snapshots)

	local, err := r.index.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("local snapshot: %w", err)
	}

	plan := r.planner.Plan(r.Name(), local, snapshots)
	report.Plan = plan

	if plan.NoPeers {
		report.Status = state.StatusIdle
		log.Warn("no peers available", "peers", len(r.config.Peers))
		return nil
	}
	if len(plan.Stale) == 0 {
		report.Status = state.StatusSuccess
		log.Info("0 files to update", "peers_responded", plan.Stats.PeersResponded)
		return nil
	}

	log.Info("files to update",
		"count", len(plan.Stale),
		"missing_locally", plan.Stats.MissingLocally,
		"peers_responded", plan.Stats.PeersResponded,
	)

	stageDir, err := r.makeStagingDir()
	if err != nil {
		return err
	}
	report.StagingDir = stageDir
	log.Debug("staging directory created", "dir", stageDir)

	n, err := r.stageAll(ctx, log, stageDir, plan.Stale, peers)
	report.BytesFetched = n
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	installErr := r.installAll(log, stageDir, plan.Stale, report)

	// reindex after partial installs too
	if err := r.index.Rebuild(ctx); err != nil && installErr == nil {
		return fmt.Errorf("reindex: %w", err)
	}
	if installErr != nil {
		return fmt.Errorf("install: %w", installErr)
	}

	report.Status = state.StatusSuccess
	return nil
}

// queryPeers fetches every configured peer's snapshot concurrently.
// Results are kept in configured order; that order breaks timestamp ties.
func (r *Remote) queryPeers(ctx context.Context, log logger.Logger, report *CycleReport) ([]domain.PeerSnapshot, map[string]domain.Peer, error) {
	aliases := r.config.Peers
	report.PeersQueried = len(aliases)

	resolved := make([]domain.Peer, len(aliases))
	for i, alias := range aliases {
		p, err := r.peers.Resolve(alias)
		if err != nil {
			return nil, nil, err
		}
		resolved[i] = p
	}

	results := make([]domain.Snapshot, len(aliases))
	failures := make([]error, len(aliases))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range resolved {
		i, p := i, p
		g.Go(func() error {
			snap, err := r.client.FetchIndex(gctx, p, r.Name())
			if err == nil {
				results[i] = snap
				return nil
			}
			if domain.IsPeerLevel(err) && ctx.Err() == nil {
				failures[i] = err
				return nil
			}
			return fmt.Errorf("peer %s: %w", p.Name, err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	snapshots := make([]domain.PeerSnapshot, 0, len(aliases))
	peers := make(map[string]domain.Peer, len(aliases))
	for i, p := range resolved {
		if failures[i] != nil {
			log.Warn("excluding peer", "peer", p.Name, "address", p.Address(), "error", failures[i])
			report.Excluded = append(report.Excluded, PeerFailure{Alias: p.Name, Address: p.Address(), Err: failures[i]})
			continue
		}
		log.Debug("peer responded", "peer", p.Name, "files", len(results[i]))
		snapshots = append(snapshots, domain.PeerSnapshot{Alias: p.Name, Files: results[i]})
		peers[p.Name] = p
	}
	return snapshots, peers, nil
}

// dropIgnored removes paths the local index would never hold; they would
// otherwise look missing on every cycle
func (r *Remote) dropIgnored(log logger.Logger, snapshots []domain.PeerSnapshot) []domain.PeerSnapshot {
	out := make([]domain.PeerSnapshot, 0, len(snapshots))
	for _, ps := range snapshots {
		kept := make(domain.Snapshot, len(ps.Files))
		for rel, meta := range ps.Files {
			if r.index.Ignored(rel) {
				continue
			}
			kept[rel] = meta
		}
		if dropped := len(ps.Files) - len(kept); dropped > 0 {
			log.Debug("skipping ignored peer paths", "peer", ps.Alias, "count", dropped)
		}
		out = append(out, domain.PeerSnapshot{Alias: ps.Alias, Files: kept})
	}
	return out
}

func (r *Remote) cycleReporter(log logger.Logger) progress.Reporter {
	if r.reporter != nil {
		return r.reporter
	}
	return progress.NewLogReporter(log)
}

// DefaultStagingRoot is <TempDir>/filesync
func DefaultStagingRoot() string {
	return filepath.Join(os.TempDir(), "filesync")
}
