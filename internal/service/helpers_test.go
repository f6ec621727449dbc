package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/index"
	"github.com/Ning0612/filesync/internal/notify"
	"github.com/Ning0612/filesync/internal/peer"
	"github.com/Ning0612/filesync/internal/testutil"
)

const (
	localRoot   = "/home/b/docs"
	stagingRoot = "/tmp/filesync"
)

var (
	oldTime = time.Unix(1000, 0)
	newTime = 2000.0
)

func sum(t *testing.T, content string) string {
	t.Helper()
	digest, err := checksum.NewDefault().Sum(context.Background(), strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	return digest
}

// fakePeer is one peer served by fakeClient
type fakePeer struct {
	files    map[string]string
	mtime    float64
	indexErr error
	// served replaces file content on the wire, keyed by path
	served map[string]string
}

// fakeClient answers from memory instead of the network
type fakeClient struct {
	t     *testing.T
	mu    sync.Mutex
	peers map[string]*fakePeer
	calls []string
}

func newFakeClient(t *testing.T) *fakeClient {
	return &fakeClient{t: t, peers: make(map[string]*fakePeer)}
}

func (c *fakeClient) add(alias string, p *fakePeer) {
	c.peers[alias] = p
}

func (c *fakeClient) FetchIndex(ctx context.Context, p domain.Peer, remote string) (domain.Snapshot, error) {
	c.mu.Lock()
	c.calls = append(c.calls, "index:"+p.Name)
	c.mu.Unlock()

	fp, ok := c.peers[p.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPeerUnreachable, p.Name)
	}
	if fp.indexErr != nil {
		return nil, fp.indexErr
	}
	snap := make(domain.Snapshot, len(fp.files))
	for path, content := range fp.files {
		snap[path] = domain.Metadata{Hash: sum(c.t, content), LastModified: fp.mtime}
	}
	return snap, nil
}

func (c *fakeClient) FetchFile(ctx context.Context, p domain.Peer, remote, path string, w io.Writer) (int64, error) {
	c.mu.Lock()
	c.calls = append(c.calls, "file:"+p.Name+":"+path)
	c.mu.Unlock()

	fp := c.peers[p.Name]
	content, ok := fp.files[path]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if override, ok := fp.served[path]; ok {
		content = override
	}
	n, err := io.WriteString(w, content)
	if err != nil {
		return int64(n), fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return int64(n), nil
}

// faultFs lets a test veto or rewrite renames
type faultFs struct {
	afero.Fs
	rename func(oldname, newname string) error
}

func (f *faultFs) Rename(oldname, newname string) error {
	if f.rename != nil {
		if err := f.rename(oldname, newname); err != nil {
			return err
		}
	}
	return f.Fs.Rename(oldname, newname)
}

type fixture struct {
	fs       afero.Fs
	client   *fakeClient
	notifier *notify.Recorder
	remote   *Remote
}

// newFixture creates a remote "docs" at localRoot seeded with local files
// (mtime oldTime) that pulls from aliases in order
func newFixture(t *testing.T, fs afero.Fs, local map[string]string, aliases ...string) *fixture {
	t.Helper()
	if err := fs.MkdirAll(localRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	for rel, content := range local {
		testutil.WriteFileAt(t, fs, localRoot, rel, content, oldTime)
	}

	var peers []domain.Peer
	for i, a := range aliases {
		peers = append(peers, domain.Peer{Name: a, Host: "10.0.0." + fmt.Sprint(i+1), Port: 6688})
	}

	f := &fixture{
		fs:       fs,
		client:   newFakeClient(t),
		notifier: &notify.Recorder{},
	}
	cfg := domain.RemoteConfig{Name: "docs", LocalPath: localRoot, Peers: aliases}
	idx := index.New(localRoot, index.Options{Fs: fs})

	remote, err := NewRemote(cfg, idx, RemoteOptions{
		Fs:          fs,
		Client:      f.client,
		Peers:       peer.NewRegistry(peers),
		Notifier:    f.notifier,
		StagingRoot: stagingRoot,
	})
	if err != nil {
		t.Fatalf("NewRemote failed: %v", err)
	}
	f.remote = remote
	return f
}
