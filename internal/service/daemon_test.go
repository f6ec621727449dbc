package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/filesync/internal/config"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/state"
	"github.com/Ning0612/filesync/internal/testutil"
)

func mockDaemonConfig() *config.Config {
	return &config.Config{
		Aliases: []domain.Peer{
			{Name: "alpha", Host: "10.0.0.1", Port: 6688},
		},
		Remotes: []domain.RemoteConfig{
			{Name: "docs", LocalPath: "/home/b/docs", Peers: []string{"alpha"}},
			{Name: "photos", LocalPath: "/home/b/photos", Peers: []string{"alpha"}},
		},
		UpdateInterval: 15,
		Bind:           "127.0.0.1",
		Port:           0,
		PeerTimeout:    time.Second,
		Checksum:       "sha256",
		StagingRoot:    stagingRoot,
	}
}

func newTestDaemon(t *testing.T, client *fakeClient) (*DaemonService, afero.Fs, *state.Manager) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/home/b/docs", 0o755))
	require.NoError(t, fs.MkdirAll("/home/b/photos", 0o755))

	mgr, err := state.NewManager(t.TempDir())
	require.NoError(t, err)

	d, err := NewDaemonService(mockDaemonConfig(), Options{
		Fs:     fs,
		Client: client,
		Clock:  clockwork.NewFakeClock(),
		State:  mgr,
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, fs, mgr
}

func TestNewDaemonService_NilConfig(t *testing.T) {
	_, err := NewDaemonService(nil, Options{})
	assert.Error(t, err)
}

func TestNewDaemonService_UnknownAlias(t *testing.T) {
	cfg := mockDaemonConfig()
	cfg.Remotes[1].Peers = []string{"alpha", "gamma"}

	_, err := NewDaemonService(cfg, Options{Fs: afero.NewMemMapFs(), Client: newFakeClient(t)})
	assert.ErrorIs(t, err, domain.ErrUnknownAlias)
	assert.ErrorContains(t, err, "photos")
}

func TestDaemonService_RunCycleRecordsHistory(t *testing.T) {
	client := newFakeClient(t)
	client.add("alpha", &fakePeer{files: map[string]string{"a.txt": "hello"}, mtime: newTime})
	d, fs, mgr := newTestDaemon(t, client)

	require.NoError(t, d.RunCycle(context.Background(), ""))

	// both remotes pulled a.txt from the same peer
	assert.Equal(t, "hello", testutil.ReadFile(t, fs, "/home/b/docs", "a.txt"))
	assert.Equal(t, "hello", testutil.ReadFile(t, fs, "/home/b/photos", "a.txt"))

	history, err := mgr.GetHistory("docs", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, state.StatusSuccess, history[0].Status)
	assert.Equal(t, 1, history[0].FilesInstalled)
	assert.Equal(t, 1, history[0].PeersResponded)

	installs, err := mgr.GetInstalls(history[0].CycleID)
	require.NoError(t, err)
	require.Len(t, installs, 1)
	assert.Equal(t, "a.txt", installs[0].Path)
	assert.Equal(t, "alpha", installs[0].PeerAlias)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Contains(t, status.LastCycles, "photos")
}

func TestDaemonService_RunCycleIdle(t *testing.T) {
	d, _, mgr := newTestDaemon(t, newFakeClient(t))

	require.NoError(t, d.RunCycle(context.Background(), "docs"))

	history, err := mgr.GetAllHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "docs", history[0].RemoteName)
	assert.Equal(t, state.StatusIdle, history[0].Status)
	assert.Equal(t, 0, history[0].PeersResponded)
}

func TestDaemonService_RunCycleFailureRecorded(t *testing.T) {
	client := newFakeClient(t)
	client.add("alpha", &fakePeer{
		files:  map[string]string{"a.txt": "hello"},
		mtime:  newTime,
		served: map[string]string{"a.txt": "corrupt"},
	})
	d, _, mgr := newTestDaemon(t, client)

	err := d.RunCycle(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHashMismatch)

	history, err := mgr.GetAllHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 2, "a failing remote does not stop the next")
	for _, h := range history {
		assert.Equal(t, state.StatusFailed, h.Status)
		assert.Contains(t, h.Error, "hash mismatch")
		assert.NotEmpty(t, h.StagingDir)
	}
}

func TestDaemonService_SyncOnceUnknownRemote(t *testing.T) {
	d, _, _ := newTestDaemon(t, newFakeClient(t))

	_, err := d.SyncOnce(context.Background(), []string{"music"})
	assert.Error(t, err)

	reports, err := d.SyncOnce(context.Background(), []string{"photos"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "photos", reports[0].Remote)
}

func TestDaemonService_StartStop(t *testing.T) {
	client := newFakeClient(t)
	client.add("alpha", &fakePeer{files: map[string]string{"a.txt": "hello"}, mtime: newTime})
	d, fs, _ := newTestDaemon(t, client)

	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Start(context.Background()), "double start")

	status := d.Status()
	assert.True(t, status.Running)
	assert.NotEmpty(t, status.ServerAddr)

	// the initial cycle runs without waiting for the interval
	testutil.AssertEventually(t, 2*time.Second, func() bool {
		ok, _ := afero.Exists(fs, "/home/b/photos/a.txt")
		return ok
	})

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.Error(t, d.Stop(), "stop when not running")
}
