package matcher

import (
	"cloudsub/internal/drive"
	"cloudsub/internal/medianame"
)

// MatchMovieFile picks the best movie file from a share forest: every video
// file at or above minSizeBytes that passes the filter is a candidate, and
// the highest (filter score, size) pair wins.
func MatchMovieFile(nodes []*drive.ShareNode, filter *Filter, minSizeBytes int64) *Candidate {
	var best *Candidate
	walkMovieFiles(nodes, filter, minSizeBytes, &best)
	return best
}

func walkMovieFiles(nodes []*drive.ShareNode, filter *Filter, minSizeBytes int64, best **Candidate) {
	for _, node := range nodes {
		if node.IsDir {
			walkMovieFiles(node.Children, filter, minSizeBytes, best)
			continue
		}
		if !medianame.IsVideoFile(node.Name) || node.Size < minSizeBytes {
			continue
		}
		matched, score := filter.Match(node.Name)
		if !matched {
			continue
		}
		candidate := &Candidate{
			File:         node,
			UnitKey:      MovieUnitKey,
			FilterScore:  score,
			PerfectMatch: filter.IsPerfect(node.Name),
		}
		if *best == nil ||
			candidate.FilterScore > (*best).FilterScore ||
			(candidate.FilterScore == (*best).FilterScore && candidate.File.Size > (*best).File.Size) {
			*best = candidate
		}
	}
}
