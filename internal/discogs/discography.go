package discogs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// overFetch is how many raw entries are requested per wanted result,
	// since the filter discards many.
	overFetch = 3

	maxPerPage = 100

	DefaultMaxResults = 20
	DefaultMaxPages   = 5
)

// DiscographyOptions control GetDiscography.
type DiscographyOptions struct {
	MaxResults int
	// Sort is one of year, title, format. Default year.
	Sort string
	// SortOrder is asc or desc. Default desc.
	SortOrder string
	// IncludeDetails fetches /releases/{id} or /masters/{id} for every
	// entry, one extra request each.
	IncludeDetails bool
	// MaxPages bounds pagination of the raw listing.
	MaxPages int
	// Filter drops unwanted releases. Nil means DefaultReleaseFilter.
	Filter ReleaseFilter
}

func (o DiscographyOptions) withDefaults() DiscographyOptions {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Sort == "" {
		o.Sort = "year"
	}
	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Filter == nil {
		o.Filter = DefaultReleaseFilter()
	}
	return o
}

// GetDiscography lists an artist's releases, keeping at most MaxResults
// entries that pass the filter, in provider order.
func (c *Client) GetDiscography(ctx context.Context, artistID int, opts DiscographyOptions) ([]Release, error) {
	if !c.Configured() {
		c.logger.Debug("discogs discography skipped, client not configured", "artist_id", artistID)
		return []Release{}, nil
	}
	opts = opts.withDefaults()

	perPage := min(opts.MaxResults*overFetch, maxPerPage)
	releases := make([]Release, 0, opts.MaxResults)
	dropped := 0

	for page := 1; page <= opts.MaxPages; page++ {
		params := url.Values{
			"sort":       {opts.Sort},
			"sort_order": {opts.SortOrder},
			"page":       {strconv.Itoa(page)},
			"per_page":   {strconv.Itoa(perPage)},
		}

		var resp artistReleasesResponse
		if err := c.get(ctx, "/artists/"+strconv.Itoa(artistID)+"/releases", params, &resp); err != nil {
			return nil, fmt.Errorf("listing releases for discogs artist %d: %w", artistID, err)
		}

		for _, raw := range resp.Releases {
			rel := fromListing(raw)
			if opts.IncludeDetails {
				if err := c.addDetails(ctx, &rel); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					c.logger.Warn("fetching discogs release detail",
						"release_id", rel.SourceReleaseID,
						"kind", rel.Kind,
						"error", err)
				}
			}

			if opts.Filter(rel) {
				dropped++
				continue
			}
			releases = append(releases, rel)
			if len(releases) >= opts.MaxResults {
				return releases, nil
			}
		}

		if page >= resp.Pagination.Pages || len(resp.Releases) == 0 {
			break
		}
	}

	c.logger.Debug("discogs discography fetched",
		"artist_id", artistID,
		"kept", len(releases),
		"dropped", dropped)
	return releases, nil
}

// addDetails overlays the release or master detail onto rel.
func (c *Client) addDetails(ctx context.Context, rel *Release) error {
	path := "/releases/"
	if rel.Kind == KindMaster {
		path = "/masters/"
	}

	var d releaseDetail
	if err := c.get(ctx, path+strconv.Itoa(rel.SourceReleaseID), nil, &d); err != nil {
		return fmt.Errorf("fetching %s %d: %w", rel.Kind, rel.SourceReleaseID, err)
	}

	if d.Title != "" {
		rel.Title = d.Title
	}
	if d.Year != 0 {
		rel.Year = d.Year
	}
	if img := primaryImage(d.Images); img != "" {
		rel.CoverImageURL = img
	}
	if label, catno, ok := firstLabel(d.Labels); ok {
		rel.Label = label
		rel.CatalogNumber = catno
	}

	var formats []string
	for _, f := range d.Formats {
		if f.Name != "" {
			formats = append(formats, f.Name)
		}
		formats = append(formats, f.Descriptions...)
	}
	if len(formats) > 0 {
		rel.Formats = formats
	}
	return nil
}

// fromListing converts an /artists/{id}/releases entry.
func fromListing(raw artistRelease) Release {
	kind := KindRelease
	if raw.MainRelease != 0 || raw.Type == "master" || strings.Contains(raw.ResourceURL, "/masters/") {
		kind = KindMaster
	}

	return Release{
		SourceReleaseID: raw.ID,
		Title:           strings.TrimSpace(raw.Title),
		Year:            raw.Year,
		Kind:            kind,
		Label:           firstListedLabel(raw.Label),
		CatalogNumber:   raw.CatNo,
		CoverImageURL:   raw.Thumb,
		SourceURL:       fmt.Sprintf("%s/%s/%d", siteURL, kind, raw.ID),
		Formats:         splitFormats(raw.Format),
		Role:            raw.Role,
	}
}

// firstLabel returns the first label with a non-empty name.
func firstLabel(labels []label) (string, string, bool) {
	for _, l := range labels {
		if name := strings.TrimSpace(l.Name); name != "" {
			return name, l.CatNo, true
		}
	}
	return "", "", false
}

// firstListedLabel picks the first non-blank entry of a comma-separated
// label list as returned by the releases listing.
func firstListedLabel(s string) string {
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			return part
		}
	}
	return ""
}

func splitFormats(s string) []string {
	formats := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			formats = append(formats, part)
		}
	}
	return formats
}
