package discogs

import "strings"

// ReleaseFilter reports whether a release should be dropped from a
// discography. Filters are plain predicates so the title heuristics can be
// swapped without touching pagination.
type ReleaseFilter func(Release) bool

// Any drops a release if any of filters drops it.
func Any(filters ...ReleaseFilter) ReleaseFilter {
	return func(r Release) bool {
		for _, f := range filters {
			if f != nil && f(r) {
				return true
			}
		}
		return false
	}
}

// Heuristic marker lists used by DefaultReleaseFilter. Matching is a
// case-insensitive substring test, so a studio album literally titled
// "Compilation Vol. 1" is dropped too.
var (
	AllowedFormats = []string{"album", "lp", "vinyl", "cd", `12"`, `7"`, "single", "ep", "maxi-single"}

	CompilationMarkers = []string{"compilation", "best of", "greatest hits"}

	BootlegMarkers = []string{"bootleg", "unofficial"}
)

// RequireFormats drops releases whose non-empty format list contains none
// of allowed.
func RequireFormats(allowed ...string) ReleaseFilter {
	return func(r Release) bool {
		if len(r.Formats) == 0 {
			return false
		}
		for _, f := range r.Formats {
			if containsAny(strings.ToLower(f), allowed) {
				return false
			}
		}
		return true
	}
}

// ExcludeTitles drops releases whose title contains any marker.
func ExcludeTitles(markers ...string) ReleaseFilter {
	return func(r Release) bool {
		return containsAny(strings.ToLower(r.Title), markers)
	}
}

// ExcludeRemixSingles drops single remix tracks but keeps remix albums.
func ExcludeRemixSingles() ReleaseFilter {
	return func(r Release) bool {
		t := strings.ToLower(r.Title)
		return strings.Contains(t, "remix") && !strings.Contains(t, "remixes")
	}
}

// ExcludeSplitSingles drops two-sided singles ("A / B", "A b/w B").
func ExcludeSplitSingles() ReleaseFilter {
	return func(r Release) bool {
		t := strings.ToLower(r.Title)
		return strings.Contains(t, " / ") || strings.Contains(t, " b/w ")
	}
}

// ExcludeGuestRoles drops entries where the artist is credited in a role
// other than Main, such as appearances on other artists' records.
func ExcludeGuestRoles() ReleaseFilter {
	return func(r Release) bool {
		return r.Role != "" && !strings.EqualFold(r.Role, "main")
	}
}

// DefaultReleaseFilter keeps studio albums, singles and EPs.
func DefaultReleaseFilter() ReleaseFilter {
	return Any(
		RequireFormats(AllowedFormats...),
		ExcludeTitles(CompilationMarkers...),
		ExcludeTitles(BootlegMarkers...),
		ExcludeRemixSingles(),
		ExcludeSplitSingles(),
		ExcludeGuestRoles(),
	)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
