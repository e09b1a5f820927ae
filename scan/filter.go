package scan

import (
	"fmt"
	"regexp"
)

// DefaultInclude matches every folder name
const DefaultInclude = "^.*$"

// Filter decides which folders are enumerated
type Filter struct {
	Include *regexp.Regexp // nil includes everything
	Exclude *regexp.Regexp // nil excludes nothing
	Only    string         // if set, only this exact folder is enumerated
}

// NewFilter compiles the include and exclude patterns. Empty patterns are ignored.
func NewFilter(include, exclude, only string) (Filter, error) {
	f := Filter{Only: only}
	var err error
	if include != "" {
		f.Include, err = regexp.Compile(include)
		if err != nil {
			return f, fmt.Errorf("invalid include pattern %q: %w", include, err)
		}
	}
	if exclude != "" {
		f.Exclude, err = regexp.Compile(exclude)
		if err != nil {
			return f, fmt.Errorf("invalid exclude pattern %q: %w", exclude, err)
		}
	}
	return f, nil
}

// Match reports whether folder should be enumerated
func (f Filter) Match(folder string) bool {
	if f.Only != "" && folder != f.Only {
		return false
	}
	if f.Include != nil && !f.Include.MatchString(folder) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(folder) {
		return false
	}
	return true
}
