package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/config"
	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/index"
	"github.com/Ning0612/filesync/internal/logger"
	"github.com/Ning0612/filesync/internal/notify"
	"github.com/Ning0612/filesync/internal/peer"
	"github.com/Ning0612/filesync/internal/progress"
	"github.com/Ning0612/filesync/internal/scheduler"
	"github.com/Ning0612/filesync/internal/server"
	"github.com/Ning0612/filesync/internal/state"
)

// Options overrides collaborators of a DaemonService, mostly for tests
type Options struct {
	Fs       afero.Fs
	Client   PeerClient
	Notifier notify.Notifier
	Reporter progress.Reporter
	Clock    clockwork.Clock

	// State records cycle history; nil disables recording
	State *state.Manager
}

// DaemonService runs all remotes, the request server and the scheduler
type DaemonService struct {
	mu        sync.RWMutex
	config    *config.Config
	remotes   []*Remote
	byName    map[string]*Remote
	peers     *peer.Registry
	server    *server.Server
	scheduler *scheduler.IntervalScheduler
	stateMgr  *state.Manager
	clock     clockwork.Clock

	cancel    context.CancelFunc
	serveDone chan error
	last      map[string]*CycleReport
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	ServerAddr     string
	SchedulerStats *scheduler.Status
	LastCycles     map[string]*CycleReport
}

// NewDaemonService builds one Remote per configured remote. Nothing is
// scanned or started until Start or RunCycle.
func NewDaemonService(cfg *config.Config, opts Options) (*DaemonService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Client == nil {
		opts.Client = peer.NewClient(peer.ClientOptions{
			Timeout:      cfg.PeerTimeout,
			MaxIndexSize: cfg.MaxIndexSize,
		})
	}
	if opts.Notifier == nil {
		opts.Notifier = DefaultNotifier(cfg)
	}

	hasher, err := checksum.New(cfg.Algorithm(), 0)
	if err != nil {
		return nil, err
	}
	registry := peer.NewRegistry(cfg.Aliases)
	for _, rc := range cfg.Remotes {
		for _, alias := range rc.Peers {
			if !registry.Known(alias) {
				return nil, fmt.Errorf("remote %s: %w: %s", rc.Name, domain.ErrUnknownAlias, alias)
			}
		}
	}

	d := &DaemonService{
		config:   cfg,
		byName:   make(map[string]*Remote, len(cfg.Remotes)),
		peers:    registry,
		stateMgr: opts.State,
		clock:    opts.Clock,
		last:     make(map[string]*CycleReport),
	}

	indexes := make(server.Indexes, len(cfg.Remotes))
	for _, rc := range cfg.Remotes {
		idx := index.New(rc.LocalPath, index.Options{
			Fs:     opts.Fs,
			Hasher: hasher,
			Ignore: index.LoadIgnoreList(opts.Fs, rc.LocalPath, rc.Ignore),
		})
		remote, err := NewRemote(rc, idx, RemoteOptions{
			Fs:          opts.Fs,
			Client:      opts.Client,
			Peers:       registry,
			Notifier:    opts.Notifier,
			Reporter:    opts.Reporter,
			Clock:       opts.Clock,
			StagingRoot: cfg.StagingRoot,
		})
		if err != nil {
			return nil, err
		}
		d.remotes = append(d.remotes, remote)
		d.byName[rc.Name] = remote
		indexes[rc.Name] = idx
	}

	d.server = server.New(indexes, server.Options{
		Bind:    cfg.Bind,
		Port:    cfg.Port,
		Timeout: cfg.PeerTimeout,
	})
	return d, nil
}

// DefaultNotifier picks desktop notifications with a log fallback, or plain
// log lines when notifications are disabled
func DefaultNotifier(cfg *config.Config) notify.Notifier {
	log := notify.NewLog(logger.Get().With("component", "notify"))
	if !cfg.Notifications {
		return log
	}
	return &notify.Fallback{Primary: notify.NewDesktop(), Secondary: log}
}

// Remote returns a configured remote by name
func (d *DaemonService) Remote(name string) (*Remote, bool) {
	r, ok := d.byName[name]
	return r, ok
}

// BuildIndexes fully scans every remote
func (d *DaemonService) BuildIndexes(ctx context.Context) error {
	var errs []error
	for _, r := range d.remotes {
		start := time.Now()
		if err := r.Index().Rebuild(ctx); err != nil {
			errs = append(errs, fmt.Errorf("remote %s: %w", r.Name(), err))
			continue
		}
		logger.Get().Info("index built", "remote", r.Name(), "files", r.Index().Len(), logger.Elapsed(start))
	}
	return errors.Join(errs...)
}

// RunCycle implements scheduler.CycleRunner. An empty name updates every
// remote in configuration order; one failing remote does not stop the rest.
func (d *DaemonService) RunCycle(ctx context.Context, name string) error {
	if name != "" {
		r, ok := d.byName[name]
		if !ok {
			return fmt.Errorf("unknown remote: %s", name)
		}
		_, err := d.runRemote(ctx, r)
		return err
	}

	var errs []error
	for _, r := range d.remotes {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := d.runRemote(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("remote %s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SyncOnce updates the named remotes (all when empty) and returns reports
func (d *DaemonService) SyncOnce(ctx context.Context, names []string) ([]*CycleReport, error) {
	targets := d.remotes
	if len(names) > 0 {
		targets = nil
		for _, n := range names {
			r, ok := d.byName[n]
			if !ok {
				return nil, fmt.Errorf("unknown remote: %s", n)
			}
			targets = append(targets, r)
		}
	}

	var reports []*CycleReport
	var errs []error
	for _, r := range targets {
		report, err := d.runRemote(ctx, r)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("remote %s: %w", r.Name(), err))
		}
	}
	return reports, errors.Join(errs...)
}

func (d *DaemonService) runRemote(ctx context.Context, r *Remote) (*CycleReport, error) {
	report, err := r.Update(ctx)

	d.mu.Lock()
	d.last[r.Name()] = report
	d.mu.Unlock()

	// a cancelled cycle is not history
	if d.stateMgr != nil && ctx.Err() == nil {
		if saveErr := d.stateMgr.SaveCycle(report.Record(err)); saveErr != nil {
			logger.Get().Error("failed to record cycle", "remote", r.Name(), "error", saveErr)
		}
	}
	return report, err
}

// Start builds every index, opens the request server, runs one cycle and
// then schedules a cycle every update_interval
func (d *DaemonService) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return fmt.Errorf("daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := d.BuildIndexes(ctx); err != nil {
		logger.Get().Warn("initial index build incomplete", "error", err)
	}

	ln, err := d.server.Listen(ctx)
	if err != nil {
		cancel()
		return err
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:   d.config.Interval(),
		RunOnStart: true,
		Clock:      d.clock,
	}, d)
	if err != nil {
		ln.Close()
		cancel()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- d.server.Serve(ctx, ln)
	}()

	if err := sched.Start(ctx); err != nil {
		cancel()
		<-serveDone
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.cancel = cancel
	d.scheduler = sched
	d.serveDone = serveDone

	logger.Get().Info("daemon started",
		"remotes", len(d.remotes),
		"peers", d.peers.Aliases(),
		"addr", ln.Addr().String(),
		"interval", d.config.Interval(),
	)
	return nil
}

// Wait blocks until the request server exits and returns its error
func (d *DaemonService) Wait() error {
	d.mu.RLock()
	done := d.serveDone
	d.mu.RUnlock()
	if done == nil {
		return fmt.Errorf("daemon is not running")
	}
	err := <-done
	done <- err
	return err
}

// Stop cancels the scheduler and the server and waits for both
func (d *DaemonService) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	sched := d.scheduler
	done := d.serveDone
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("daemon is not running")
	}

	cancel()
	<-sched.Done()
	err := <-done
	done <- err

	logger.Get().Info("daemon stopped")
	return err
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{
		Running:    d.cancel != nil,
		LastCycles: make(map[string]*CycleReport, len(d.last)),
	}
	if d.scheduler != nil {
		status.SchedulerStats = d.scheduler.Status()
	}
	if addr := d.server.Addr(); addr != nil {
		status.ServerAddr = addr.String()
	}
	for name, r := range d.last {
		status.LastCycles[name] = r
	}
	return status
}

// ServerAddr returns the listening address once started
func (d *DaemonService) ServerAddr() net.Addr {
	return d.server.Addr()
}

// Close releases the state database
func (d *DaemonService) Close() error {
	if d.stateMgr != nil {
		return d.stateMgr.Close()
	}
	return nil
}
