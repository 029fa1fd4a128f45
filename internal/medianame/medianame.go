// Package medianame extracts season and episode metadata from release file
// names. Release names are inconsistent across uploaders, so parsing is
// tiered: explicit SxxEyy tokens are authoritative, Chinese and delimited
// episode tokens are looser, and bare numbers are only trusted with outside
// context.
package medianame

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".rmvb": {},
	".wmv":  {},
	".flv":  {},
	".ts":   {},
	".m2ts": {},
}

// IsVideoFile reports whether name carries a recognized video extension.
func IsVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := videoExtensions[ext]
	return ok
}

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)s(\d{1,2})e(\d{1,3})`)
	seasonWordRe    = regexp.MustCompile(`(?i)season\s*(\d{1,2})`)
	seasonCJKRe     = regexp.MustCompile(`第\s*(\d{1,2})\s*季`)
	seasonTokenRe   = regexp.MustCompile(`(?i)[\[\(\s._-]s(\d{1,2})[\]\)\s._-]`)

	episodePrefixRe = regexp.MustCompile(`(?i)ep(\d{1,3})(\D|$)`)
	episodeTokenRe  = regexp.MustCompile(`(?i)[\[\(\s._-]e(\d{1,3})[\]\)\s._-]`)
	episodeCJKRe    = regexp.MustCompile(`第\s*(\d{1,3})\s*集`)
	episodeRangeRe  = regexp.MustCompile(`(?i)e(\d{1,3})\s*-\s*e?(\d{1,3})`)
	rangeCJKRe      = regexp.MustCompile(`第\s*(\d{1,3})\s*-\s*(\d{1,3})\s*集`)
)

// Normalize folds full-width characters to their ASCII equivalents and
// lowercases, so the token patterns see one canonical form.
func Normalize(name string) string {
	return strings.ToLower(width.Fold.String(name))
}

// SeasonEpisode returns the season and episode from an explicit SxxEyy token.
func SeasonEpisode(name string) (season, episode int, ok bool) {
	m := seasonEpisodeRe.FindStringSubmatch(Normalize(name))
	if m == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return season, episode, true
}

// Season returns the season a name explicitly declares, via any recognized
// season token. Returns ok=false when the name carries no season context.
func Season(name string) (int, bool) {
	normalized := Normalize(name)
	if m := seasonEpisodeRe.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	if m := seasonCJKRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	if m := seasonWordRe.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	// Pad so a leading or trailing token still matches the delimited pattern.
	if m := seasonTokenRe.FindStringSubmatch(" " + normalized + " "); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	return 0, false
}

// Episodes returns every episode number a name declares, with ranges such as
// E01-E03 expanded. Used when scanning an existing library directory.
func Episodes(name string) []int {
	normalized := Normalize(name)
	seen := map[int]struct{}{}
	var out []int
	add := func(n int) {
		if n <= 0 {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	for _, m := range episodeRangeRe.FindAllStringSubmatch(normalized, -1) {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		for n := lo; n <= hi && n-lo < 200; n++ {
			add(n)
		}
	}
	for _, m := range rangeCJKRe.FindAllStringSubmatch(name, -1) {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		for n := lo; n <= hi && n-lo < 200; n++ {
			add(n)
		}
	}
	if len(out) > 0 {
		return out
	}

	if m := seasonEpisodeRe.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[2])
		add(n)
		return out
	}
	for _, m := range episodeCJKRe.FindAllStringSubmatch(name, -1) {
		n, _ := strconv.Atoi(m[1])
		add(n)
	}
	for _, m := range episodePrefixRe.FindAllStringSubmatch(normalized, -1) {
		n, _ := strconv.Atoi(m[1])
		add(n)
	}
	for _, m := range episodeTokenRe.FindAllStringSubmatch(" "+normalized+" ", -1) {
		n, _ := strconv.Atoi(m[1])
		add(n)
	}
	return out
}
