package matcher

import (
	"context"
	"errors"
	"fmt"

	"cloudsub/internal/drive"
	"cloudsub/internal/medianame"
)

// DirectoryLister is the slice of the drive client the existing-episode
// scan needs.
type DirectoryLister interface {
	ListDirectory(ctx context.Context, path string) ([]drive.Entry, error)
}

// ExistingEpisodes lists the destination directory and returns the episode
// numbers already present for the given season. A destination that does not
// exist yet is an empty set, not an error. Files with no season token are
// assumed to belong to the season the directory itself represents.
func ExistingEpisodes(ctx context.Context, lister DirectoryLister, destPath string, season int) (map[int]struct{}, error) {
	entries, err := lister.ListDirectory(ctx, destPath)
	if err != nil {
		if errors.Is(err, drive.ErrNotFound) {
			return map[int]struct{}{}, nil
		}
		return nil, fmt.Errorf("matcher: scan destination %s: %w", destPath, err)
	}

	existing := make(map[int]struct{})
	for _, entry := range entries {
		if entry.IsDir() || !medianame.IsVideoFile(entry.Name) {
			continue
		}
		if fileSeason, ok := medianame.Season(entry.Name); ok && fileSeason != season {
			continue
		}
		for _, episode := range medianame.Episodes(entry.Name) {
			existing[episode] = struct{}{}
		}
	}
	return existing, nil
}
