package conflict

import (
	"testing"

	"github.com/Ning0612/filesync/internal/domain"
)

func TestLatestWins_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		snapshots []domain.PeerSnapshot
		want      map[string]domain.ChangeRecord
	}{
		{
			name:      "no peers",
			snapshots: nil,
			want:      map[string]domain.ChangeRecord{},
		},
		{
			name: "newest peer wins",
			snapshots: []domain.PeerSnapshot{
				{Alias: "p1", Files: domain.Snapshot{"x": {Hash: "h1", LastModified: 100}}},
				{Alias: "p2", Files: domain.Snapshot{"x": {Hash: "h2", LastModified: 200}}},
			},
			want: map[string]domain.ChangeRecord{
				"x": {Path: "x", Hash: "h2", LastModified: 200, PeerAlias: "p2"},
			},
		},
		{
			name: "tie keeps first peer",
			snapshots: []domain.PeerSnapshot{
				{Alias: "p1", Files: domain.Snapshot{"x": {Hash: "h1", LastModified: 100}}},
				{Alias: "p2", Files: domain.Snapshot{"x": {Hash: "h2", LastModified: 100}}},
			},
			want: map[string]domain.ChangeRecord{
				"x": {Path: "x", Hash: "h1", LastModified: 100, PeerAlias: "p1"},
			},
		},
		{
			name: "older later peer does not override",
			snapshots: []domain.PeerSnapshot{
				{Alias: "p1", Files: domain.Snapshot{"x": {Hash: "h1", LastModified: 300}}},
				{Alias: "p2", Files: domain.Snapshot{"x": {Hash: "h2", LastModified: 200}, "y": {Hash: "hy", LastModified: 50}}},
			},
			want: map[string]domain.ChangeRecord{
				"x": {Path: "x", Hash: "h1", LastModified: 300, PeerAlias: "p1"},
				"y": {Path: "y", Hash: "hy", LastModified: 50, PeerAlias: "p2"},
			},
		},
		{
			name: "sub-second precision",
			snapshots: []domain.PeerSnapshot{
				{Alias: "p1", Files: domain.Snapshot{"x": {Hash: "h1", LastModified: 1700000000.125}}},
				{Alias: "p2", Files: domain.Snapshot{"x": {Hash: "h2", LastModified: 1700000000.126}}},
			},
			want: map[string]domain.ChangeRecord{
				"x": {Path: "x", Hash: "h2", LastModified: 1700000000.126, PeerAlias: "p2"},
			},
		},
	}

	r := NewLatestWins()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.snapshots)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d: %v", len(got), len(tt.want), got)
			}
			for path, want := range tt.want {
				if got[path] != want {
					t.Errorf("path %s: got %+v, want %+v", path, got[path], want)
				}
			}
		})
	}
}
