package discogs

import "testing"

func TestDefaultReleaseFilter(t *testing.T) {
	tests := []struct {
		name    string
		release Release
		dropped bool
	}{
		{name: "lp album", release: Release{Title: "Album One", Formats: []string{"LP"}}, dropped: false},
		{name: "no formats", release: Release{Title: "Black Sands"}, dropped: false},
		{name: "vinyl single", release: Release{Title: "Kerala", Formats: []string{"Vinyl", `12"`, "Single"}}, dropped: false},
		{name: "digital only", release: Release{Title: "Kong", Formats: []string{"File", "MP3"}}, dropped: true},
		{name: "greatest hits", release: Release{Title: "Greatest Hits", Formats: []string{"CD"}}, dropped: true},
		{name: "best of", release: Release{Title: "The Best Of Bonobo", Formats: []string{"CD"}}, dropped: true},
		{name: "compilation", release: Release{Title: "Compilation Vol. 1", Formats: []string{"LP"}}, dropped: true},
		{name: "bootleg", release: Release{Title: "Live Bootleg 1999", Formats: []string{"CD"}}, dropped: true},
		{name: "unofficial", release: Release{Title: "Unofficial Mixes", Formats: []string{"CD"}}, dropped: true},
		{name: "remix single", release: Release{Title: "Club Track (Remix)", Formats: []string{`12"`}}, dropped: true},
		{name: "remix album", release: Release{Title: "Black Sands Remixed Remixes", Formats: []string{"LP"}}, dropped: false},
		{name: "split single slash", release: Release{Title: "Side A / Side B", Formats: []string{`7"`}}, dropped: true},
		{name: "split single b/w", release: Release{Title: "Song b/w Other Song", Formats: []string{`7"`}}, dropped: true},
		{name: "appearance role", release: Release{Title: "Late Night Tales", Role: "Appearance"}, dropped: true},
		{name: "main role", release: Release{Title: "Migration", Role: "Main"}, dropped: false},
	}

	filter := DefaultReleaseFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter(tt.release); got != tt.dropped {
				t.Errorf("filter(%q) = %v, want %v", tt.release.Title, got, tt.dropped)
			}
		})
	}
}

func TestAny_IgnoresNil(t *testing.T) {
	f := Any(nil, ExcludeTitles("x"))
	if f(Release{Title: "abc"}) {
		t.Error("Any() dropped a release no filter matched")
	}
	if !f(Release{Title: "xyz"}) {
		t.Error("Any() kept a release a filter matched")
	}
}
