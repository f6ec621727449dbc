package diff

import (
	"testing"

	"github.com/Ning0612/filesync/internal/domain"
)

func TestDefaultComparer_Compare(t *testing.T) {
	tests := []struct {
		name   string
		local  *domain.Metadata
		remote domain.ChangeRecord
		want   DiffResult
		stale  bool
	}{
		{
			name:   "absent locally",
			local:  nil,
			remote: domain.ChangeRecord{Hash: "h", LastModified: 1},
			want:   FileMissing,
			stale:  true,
		},
		{
			name:   "newer and different",
			local:  &domain.Metadata{Hash: "a", LastModified: 100},
			remote: domain.ChangeRecord{Hash: "b", LastModified: 200},
			want:   FileOutdated,
			stale:  true,
		},
		{
			name:   "newer timestamp only",
			local:  &domain.Metadata{Hash: "a", LastModified: 100},
			remote: domain.ChangeRecord{Hash: "a", LastModified: 200},
			want:   FilesIdentical,
			stale:  false,
		},
		{
			name:   "digest case differs",
			local:  &domain.Metadata{Hash: "ABCD", LastModified: 100},
			remote: domain.ChangeRecord{Hash: "abcd", LastModified: 200},
			want:   FilesIdentical,
			stale:  false,
		},
		{
			name:   "equal timestamp different content",
			local:  &domain.Metadata{Hash: "a", LastModified: 100},
			remote: domain.ChangeRecord{Hash: "b", LastModified: 100},
			want:   LocalNewer,
			stale:  false,
		},
		{
			name:   "local newer",
			local:  &domain.Metadata{Hash: "a", LastModified: 300},
			remote: domain.ChangeRecord{Hash: "b", LastModified: 200},
			want:   LocalNewer,
			stale:  false,
		},
	}

	c := NewDefaultComparer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compare(tt.local, tt.remote)
			if got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
			if got.Stale() != tt.stale {
				t.Errorf("Stale() = %v, want %v", got.Stale(), tt.stale)
			}
			if IsStale(tt.local, tt.remote) != tt.stale {
				t.Errorf("IsStale() disagrees with Compare()")
			}
		})
	}
}
