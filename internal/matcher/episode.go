package matcher

import (
	"fmt"
	"regexp"

	"cloudsub/internal/drive"
	"cloudsub/internal/medianame"
)

// Candidate is a file selected for a specific subscription unit.
type Candidate struct {
	File         *drive.ShareNode
	UnitKey      string
	FilterScore  int
	PerfectMatch bool
	Upgrade      bool
}

// MovieUnitKey is the unit key used for single-unit (movie) subscriptions.
const MovieUnitKey = "movie"

// MatchEpisodeFile finds the share file best matching one episode of one
// season. Directories are searched depth first and the first subtree with a
// hit wins; within a directory the highest matching tier wins, with ties
// broken by filter score and then first-seen order.
func MatchEpisodeFile(nodes []*drive.ShareNode, season, episode int, filter *Filter) *Candidate {
	for _, node := range nodes {
		if !node.IsDir {
			continue
		}
		if hit := MatchEpisodeFile(node.Children, season, episode, filter); hit != nil {
			return hit
		}
	}

	// Tier 1: authoritative SxxEyy. Tier 2: 第N集 / EPnn / delimited Enn
	// with agreeing or absent season context. Tier 3: bare delimited
	// number, only trusted when the name explicitly declares the target
	// season.
	var tiers [3][]*Candidate

	for _, node := range nodes {
		if node.IsDir || !medianame.IsVideoFile(node.Name) {
			continue
		}
		if fileSeason, ok := medianame.Season(node.Name); ok && fileSeason != season {
			continue
		}
		matched, score := filter.Match(node.Name)
		if !matched {
			continue
		}
		candidate := &Candidate{
			File:         node,
			UnitKey:      fmt.Sprintf("%d", episode),
			FilterScore:  score,
			PerfectMatch: filter.IsPerfect(node.Name),
		}

		if s, e, ok := medianame.SeasonEpisode(node.Name); ok {
			// Authoritative token: exact match or outright rejection,
			// never a fallback to looser heuristics.
			if s == season && e == episode {
				tiers[0] = append(tiers[0], candidate)
			}
			continue
		}
		if looseEpisodeMatch(node.Name, episode) {
			tiers[1] = append(tiers[1], candidate)
			continue
		}
		if _, declared := medianame.Season(node.Name); declared && bareNumberMatch(node.Name, episode) {
			tiers[2] = append(tiers[2], candidate)
		}
	}

	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		best := tier[0]
		for _, candidate := range tier[1:] {
			if candidate.FilterScore > best.FilterScore {
				best = candidate
			}
		}
		return best
	}
	return nil
}

func looseEpisodeMatch(name string, episode int) bool {
	if regexp.MustCompile(fmt.Sprintf(`第\s*0?%d\s*集`, episode)).MatchString(name) {
		return true
	}
	normalized := medianame.Normalize(name)
	if regexp.MustCompile(fmt.Sprintf(`ep0?%d(\D|$)`, episode)).MatchString(normalized) {
		return true
	}
	padded := " " + normalized + " "
	return regexp.MustCompile(fmt.Sprintf(`[\[\(\s._-]e0?%d[\]\)\s._-]`, episode)).MatchString(padded)
}

func bareNumberMatch(name string, episode int) bool {
	padded := " " + medianame.Normalize(name) + " "
	return regexp.MustCompile(fmt.Sprintf(`[\s._-]0?%d[\s._-]`, episode)).MatchString(padded)
}
