package matcher_test

import (
	"testing"

	"cloudsub/internal/drive"
	"cloudsub/internal/matcher"
)

func file(name string, size int64) *drive.ShareNode {
	return &drive.ShareNode{ID: name, Name: name, Size: size}
}

func dir(name string, children ...*drive.ShareNode) *drive.ShareNode {
	return &drive.ShareNode{ID: name, Name: name, IsDir: true, Children: children}
}

func TestMatchEpisodeAuthoritativeToken(t *testing.T) {
	nodes := []*drive.ShareNode{file("Show.S02E05.1080p.mkv", 1000)}

	if got := matcher.MatchEpisodeFile(nodes, 2, 5, nil); got == nil {
		t.Fatal("expected S02E05 to match (2,5)")
	}
	// The explicit token is authoritative: no fallback to looser tiers.
	if got := matcher.MatchEpisodeFile(nodes, 2, 6, nil); got != nil {
		t.Fatalf("expected S02E05 to reject (2,6), got %q", got.File.Name)
	}
}

func TestMatchEpisodeSkipsOtherSeason(t *testing.T) {
	nodes := []*drive.ShareNode{file("Show.S03E05.mkv", 1000)}
	if got := matcher.MatchEpisodeFile(nodes, 2, 5, nil); got != nil {
		t.Fatalf("expected season 3 file to be skipped, got %q", got.File.Name)
	}
}

func TestMatchEpisodeLooseTier(t *testing.T) {
	tests := []struct {
		name  string
		match bool
	}{
		{"Show 第5集.mkv", true},
		{"Show.EP05.mkv", true},
		{"[E05] Show.mkv", true},
		{"Show 第2季 第5集.mkv", false}, // season context disagrees with target season 1
		{"Show.EP06.mkv", false},
	}
	for _, tc := range tests {
		nodes := []*drive.ShareNode{file(tc.name, 1000)}
		got := matcher.MatchEpisodeFile(nodes, 1, 5, nil)
		if (got != nil) != tc.match {
			t.Errorf("MatchEpisodeFile(%q, s1e5) matched=%v, want %v", tc.name, got != nil, tc.match)
		}
	}
}

func TestMatchEpisodeBareNumberNeedsExplicitSeason(t *testing.T) {
	// Bare numeric token with no season context is never trusted.
	ambiguous := []*drive.ShareNode{file("Show.05.mkv", 1000)}
	if got := matcher.MatchEpisodeFile(ambiguous, 2, 5, nil); got != nil {
		t.Fatalf("expected season-ambiguous bare number to be rejected, got %q", got.File.Name)
	}

	// With the target season declared, the bare number is accepted.
	declared := []*drive.ShareNode{file("Show.S02.05.mkv", 1000)}
	if got := matcher.MatchEpisodeFile(declared, 2, 5, nil); got == nil {
		t.Fatal("expected bare number with explicit target season to match")
	}
}

func TestMatchEpisodeRecursesDirectoriesFirst(t *testing.T) {
	nodes := []*drive.ShareNode{
		dir("Season 1",
			file("Show.S01E03.2160p.mkv", 1000),
		),
		file("Show.S01E03.720p.mkv", 1000),
	}
	got := matcher.MatchEpisodeFile(nodes, 1, 3, nil)
	if got == nil || got.File.Name != "Show.S01E03.2160p.mkv" {
		t.Fatalf("expected subtree hit to win, got %+v", got)
	}
}

func TestMatchEpisodePrefersHigherFilterScore(t *testing.T) {
	filter, err := matcher.NewFilter("", "2160p", "HDR", false)
	if err != nil {
		t.Fatal(err)
	}
	nodes := []*drive.ShareNode{
		file("Show.S01E01.1080p.mkv", 1000),
		file("Show.S01E01.2160p.HDR.mkv", 1000),
	}
	got := matcher.MatchEpisodeFile(nodes, 1, 1, filter)
	if got == nil || got.File.Name != "Show.S01E01.2160p.HDR.mkv" {
		t.Fatalf("expected 2160p HDR file, got %+v", got)
	}
	if got.FilterScore != 200 {
		t.Fatalf("score = %d, want 200", got.FilterScore)
	}
	if !got.PerfectMatch {
		t.Fatal("expected perfect match")
	}
}

func TestMatchEpisodeStrictFilterRejects(t *testing.T) {
	filter, err := matcher.NewFilter("", "2160p", "", true)
	if err != nil {
		t.Fatal(err)
	}
	nodes := []*drive.ShareNode{file("Show.S01E01.1080p.mkv", 1000)}
	if got := matcher.MatchEpisodeFile(nodes, 1, 1, filter); got != nil {
		t.Fatalf("expected strict 2160p filter to reject 1080p file, got %q", got.File.Name)
	}
}
