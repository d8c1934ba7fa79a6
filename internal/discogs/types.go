package discogs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches any APIError with status 404.
var ErrNotFound = errors.New("discogs resource not found")

// ArtistMatch is a resolved Discogs artist with profile detail.
type ArtistMatch struct {
	ArtistID   int      `json:"artist_id"`
	Name       string   `json:"name"`
	RealName   string   `json:"real_name,omitempty"`
	Profile    string   `json:"profile,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	DiscogsURL string   `json:"discogs_url"`
	Aliases    []string `json:"aliases"`

	// Confidence is the Jaro-Winkler similarity between the query and the
	// chosen name. Informational only; selection uses ScoreArtist.
	Confidence float64 `json:"confidence"`
}

// ReleaseKind distinguishes a master grouping from a concrete pressing.
type ReleaseKind string

const (
	KindMaster  ReleaseKind = "master"
	KindRelease ReleaseKind = "release"
)

// Release is a normalized discography entry.
type Release struct {
	SourceReleaseID int         `json:"source_release_id"`
	Title           string      `json:"title"`
	Year            int         `json:"year"`
	Kind            ReleaseKind `json:"release_kind"`
	Label           string      `json:"label"`
	CatalogNumber   string      `json:"catalog_number"`
	CoverImageURL   string      `json:"cover_image_url"`
	SourceURL       string      `json:"source_url"`
	Formats         []string    `json:"formats"`

	// Role is the artist's credit on the release ("Main", "Appearance", ...).
	Role string `json:"role,omitempty"`
}

// APIError is a non-2xx response decoded from the Discogs error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discogs API error %d: %s", e.StatusCode, e.Message)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// errorResponse is the Discogs error envelope.
type errorResponse struct {
	Message string `json:"message"`
}

type pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

type image struct {
	Type   string `json:"type"`
	URI    string `json:"uri"`
	URI150 string `json:"uri150"`
}

type label struct {
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

// searchResponse is the JSON response for /database/search.
type searchResponse struct {
	Pagination pagination     `json:"pagination"`
	Results    []searchResult `json:"results"`
}

type searchResult struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Thumb       string `json:"thumb"`
	CoverImage  string `json:"cover_image"`
	ResourceURL string `json:"resource_url"`
	URI         string `json:"uri"`
}

// artistResponse is the JSON response for /artists/{id}.
type artistResponse struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	RealName string  `json:"realname"`
	Profile  string  `json:"profile"`
	URI      string  `json:"uri"`
	Images   []image `json:"images"`
	Aliases  []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"aliases"`
	NameVariations []string `json:"namevariations"`
}

// artistReleasesResponse is the JSON response for /artists/{id}/releases.
type artistReleasesResponse struct {
	Pagination pagination      `json:"pagination"`
	Releases   []artistRelease `json:"releases"`
}

type artistRelease struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	MainRelease int    `json:"main_release"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Year        int    `json:"year"`
	Role        string `json:"role"`
	Format      string `json:"format"`
	Label       string `json:"label"`
	CatNo       string `json:"catno"`
	Thumb       string `json:"thumb"`
	ResourceURL string `json:"resource_url"`
}

// releaseDetail covers both /releases/{id} and /masters/{id}.
type releaseDetail struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	MainRelease int     `json:"main_release"`
	URI         string  `json:"uri"`
	Images      []image `json:"images"`
	Labels      []label `json:"labels"`
	Formats     []struct {
		Name         string   `json:"name"`
		Qty          string   `json:"qty"`
		Descriptions []string `json:"descriptions"`
	} `json:"formats"`
}
