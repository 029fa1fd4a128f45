package matcher_test

import (
	"testing"

	"cloudsub/internal/drive"
	"cloudsub/internal/matcher"
)

const mb = int64(1024 * 1024)

func TestMatchMovieFilePicksScoreThenSize(t *testing.T) {
	filter, err := matcher.NewFilter("", "2160p", "", false)
	if err != nil {
		t.Fatal(err)
	}
	nodes := []*drive.ShareNode{
		dir("Movie (2024)",
			file("Movie.2024.2160p.mkv", 4000*mb),
			file("Movie.2024.1080p.mkv", 9000*mb),
		),
		file("sample.mkv", 50*mb),
	}
	got := matcher.MatchMovieFile(nodes, filter, 500*mb)
	if got == nil || got.File.Name != "Movie.2024.2160p.mkv" {
		t.Fatalf("expected score to beat size, got %+v", got)
	}
	if got.UnitKey != matcher.MovieUnitKey {
		t.Fatalf("unit key = %q", got.UnitKey)
	}
}

func TestMatchMovieFileSizeBreaksTies(t *testing.T) {
	nodes := []*drive.ShareNode{
		file("Movie.A.mkv", 2000*mb),
		file("Movie.B.mkv", 6000*mb),
	}
	got := matcher.MatchMovieFile(nodes, nil, 500*mb)
	if got == nil || got.File.Name != "Movie.B.mkv" {
		t.Fatalf("expected larger file, got %+v", got)
	}
}

func TestMatchMovieFileEnforcesMinSize(t *testing.T) {
	nodes := []*drive.ShareNode{file("Movie.mkv", 100*mb)}
	if got := matcher.MatchMovieFile(nodes, nil, 500*mb); got != nil {
		t.Fatalf("expected undersized file to be skipped, got %+v", got)
	}
}
