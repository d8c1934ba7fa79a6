package discogs

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/justestif/radio-track-enhancer/internal/normalize"
)

// Artist scoring bonuses. Only their relative order matters:
// exact > contains > length proxy > has image.
const (
	scoreExact            = 100
	scoreContainsQuery    = 50
	scoreContainedByQuery = 30
	scoreSimilarLength    = 10
	scoreHasImage         = 5

	// lengthTolerance is how many characters a candidate name may differ
	// from the query and still look like the same artist rather than a
	// compilation or "feat." credit.
	lengthTolerance = 3

	// DefaultCandidates is how many search results are scored.
	DefaultCandidates = 5
)

// disambiguation matches the numeric suffix Discogs appends to artists
// sharing a name, as in "Nirvana (2)".
var disambiguation = regexp.MustCompile(`\s*\(\d+\)$`)

// ArtistCandidate is one artist-typed search hit.
type ArtistCandidate struct {
	ID    int
	Name  string
	Thumb string
}

// CleanArtistName strips the Discogs disambiguation suffix.
func CleanArtistName(name string) string {
	return strings.TrimSpace(disambiguation.ReplaceAllString(name, ""))
}

// ScoreArtist rates how well a candidate matches the query.
func ScoreArtist(query string, c ArtistCandidate) int {
	q := strings.ToLower(normalize.Query(query))
	name := strings.ToLower(normalize.Query(CleanArtistName(c.Name)))
	if q == "" || name == "" {
		return 0
	}

	score := 0
	if name == q {
		score += scoreExact
	}
	if strings.Contains(name, q) {
		score += scoreContainsQuery
	}
	if strings.Contains(q, name) {
		score += scoreContainedByQuery
	}
	if diff := len([]rune(name)) - len([]rune(q)); diff >= -lengthTolerance && diff <= lengthTolerance {
		score += scoreSimilarLength
	}
	if hasImage(c.Thumb) {
		score += scoreHasImage
	}
	return score
}

// PickBestArtist returns the highest-scoring candidate. Ties go to the
// earlier candidate, preserving the provider's relevance order.
func PickBestArtist(query string, candidates []ArtistCandidate) (ArtistCandidate, bool) {
	best, bestScore := -1, -1
	for i, c := range candidates {
		if s := ScoreArtist(query, c); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return ArtistCandidate{}, false
	}
	return candidates[best], true
}

// Discogs returns a spacer image for entries without artwork.
func hasImage(thumb string) bool {
	return thumb != "" && !strings.Contains(thumb, "spacer.gif")
}

// SearchArtist resolves name to a single artist with full profile detail.
// It returns nil when the client is unconfigured or no artist matches.
func (c *Client) SearchArtist(ctx context.Context, name string) (*ArtistMatch, error) {
	if !c.Configured() {
		c.logger.Debug("discogs artist search skipped, client not configured", "artist", name)
		return nil, nil
	}

	query := normalize.Query(name)
	if query == "" {
		return nil, nil
	}

	candidates, err := c.searchArtists(ctx, query, DefaultCandidates)
	if err != nil {
		return nil, err
	}

	best, ok := PickBestArtist(query, candidates)
	if !ok {
		return nil, nil
	}
	c.logger.Debug("discogs artist selected",
		"query", query,
		"artist_id", best.ID,
		"name", best.Name,
		"score", ScoreArtist(query, best))

	detail, err := c.getArtist(ctx, best.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching discogs artist %d: %w", best.ID, err)
	}

	match := &ArtistMatch{
		ArtistID:   detail.ID,
		Name:       CleanArtistName(detail.Name),
		RealName:   detail.RealName,
		Profile:    detail.Profile,
		ImageURL:   primaryImage(detail.Images),
		DiscogsURL: detail.URI,
		Aliases:    make([]string, 0, len(detail.Aliases)),
	}
	if match.ArtistID == 0 {
		match.ArtistID = best.ID
	}
	if match.Name == "" {
		match.Name = CleanArtistName(best.Name)
	}
	if match.ImageURL == "" && hasImage(best.Thumb) {
		match.ImageURL = best.Thumb
	}
	if match.DiscogsURL == "" {
		match.DiscogsURL = siteURL + "/artist/" + strconv.Itoa(match.ArtistID)
	}
	for _, a := range detail.Aliases {
		if a.Name != "" {
			match.Aliases = append(match.Aliases, a.Name)
		}
	}
	match.Confidence = strutil.Similarity(
		strings.ToLower(query),
		strings.ToLower(match.Name),
		metrics.NewJaroWinkler(),
	)

	return match, nil
}

// searchArtists returns up to limit artist-typed search results in
// provider order.
func (c *Client) searchArtists(ctx context.Context, query string, limit int) ([]ArtistCandidate, error) {
	params := url.Values{
		"q":        {query},
		"type":     {"artist"},
		"per_page": {strconv.Itoa(limit)},
		"page":     {"1"},
	}

	var resp searchResponse
	if err := c.get(ctx, "/database/search", params, &resp); err != nil {
		return nil, fmt.Errorf("searching discogs artists for %q: %w", query, err)
	}

	candidates := make([]ArtistCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Type != "artist" {
			continue
		}
		candidates = append(candidates, ArtistCandidate{ID: r.ID, Name: r.Title, Thumb: r.Thumb})
	}
	return candidates, nil
}

func (c *Client) getArtist(ctx context.Context, id int) (*artistResponse, error) {
	var resp artistResponse
	if err := c.get(ctx, "/artists/"+strconv.Itoa(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// primaryImage prefers the image tagged primary, then the first one.
func primaryImage(images []image) string {
	for _, img := range images {
		if img.Type == "primary" && img.URI != "" {
			return img.URI
		}
	}
	for _, img := range images {
		if img.URI != "" {
			return img.URI
		}
	}
	return ""
}
