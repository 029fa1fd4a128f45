// Package matcher maps loosely named shared files to specific episodes or
// movies. Episode identification is tiered: explicit SxxEyy tokens are
// authoritative, looser token forms are only trusted when the filename's
// season context agrees with the target, and bare numbers are only trusted
// when the filename explicitly names the target season.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// constraintBonus is added to a candidate's score for every satisfied
// filter constraint.
const constraintBonus = 100

// Filter scores filenames against optional quality, resolution, and effect
// constraints. In strict mode an unsatisfied constraint rejects the file;
// otherwise every file passes and satisfied constraints raise its score so
// better versions rank first.
type Filter struct {
	strict      bool
	constraints []*regexp.Regexp
}

// NewFilter compiles the configured constraint patterns. Empty patterns are
// ignored; a nil Filter accepts everything.
func NewFilter(quality, resolution, effect string, strict bool) (*Filter, error) {
	f := &Filter{strict: strict}
	for _, pattern := range []string{quality, resolution, effect} {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("matcher: compile filter pattern %q: %w", pattern, err)
		}
		f.constraints = append(f.constraints, re)
	}
	return f, nil
}

// Match reports whether the filename passes the filter and its score.
func (f *Filter) Match(name string) (bool, int) {
	if f == nil || len(f.constraints) == 0 {
		return true, 0
	}
	score := 0
	satisfied := 0
	for _, re := range f.constraints {
		if re.MatchString(name) {
			satisfied++
			score += constraintBonus
		}
	}
	if f.strict && satisfied < len(f.constraints) {
		return false, 0
	}
	return true, score
}

// IsPerfect reports whether the filename satisfies every configured
// constraint. A filter with no constraints considers every file perfect.
func (f *Filter) IsPerfect(name string) bool {
	if f == nil || len(f.constraints) == 0 {
		return true
	}
	for _, re := range f.constraints {
		if !re.MatchString(name) {
			return false
		}
	}
	return true
}

// MaxScore returns the score a perfect match earns.
func (f *Filter) MaxScore() int {
	if f == nil {
		return 0
	}
	return len(f.constraints) * constraintBonus
}
