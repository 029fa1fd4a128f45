package subscription

import "time"

// Type identifies what kind of media a subscription tracks.
type Type string

const (
	TypeMovie  Type = "movie"
	TypeSeries Type = "series"
)

// Subscription is one tracked gap in the media library. The sync
// orchestrator is its only writer; missing counts and the downloaded set
// are written back after each run.
type Subscription struct {
	ID              int64
	Title           string
	Year            int
	Season          int
	TMDBID          int64
	Type            Type
	TotalEpisodes   int
	StartEpisode    int
	MissingEpisodes int
	BestVersion     bool
	Excluded        bool
	Completed       bool
	Quality         string
	Resolution      string
	Effect          string
	Downloaded      []int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsMovie reports whether the subscription tracks a single-unit movie.
func (s *Subscription) IsMovie() bool { return s.Type == TypeMovie }
