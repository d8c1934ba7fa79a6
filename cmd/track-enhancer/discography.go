package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justestif/radio-track-enhancer/internal/discogs"
)

func newDiscographyCommand(g *globals) *cobra.Command {
	var (
		opts   discogs.DiscographyOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "discography <artist-id | artist name>",
		Short: "List an artist's main releases from Discogs.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.discogs.Configured() {
				return discogs.ErrMissingToken
			}

			query := strings.Join(args, " ")
			id, err := strconv.Atoi(query)
			if err != nil {
				artist, err := a.discogs.SearchArtist(ctx, query)
				if err != nil {
					return fmt.Errorf("resolving artist: %w", err)
				}
				if artist == nil {
					return fmt.Errorf("no Discogs artist found for %q", query)
				}
				colorInfo.Fprintf(os.Stderr, "%s (%d, confidence %.2f)\n", artist.Name, artist.ArtistID, artist.Confidence)
				id = artist.ArtistID
			}

			releases, err := a.discogs.GetDiscography(ctx, id, opts)
			if errors.Is(err, discogs.ErrNotFound) {
				return fmt.Errorf("artist %d not found on Discogs", id)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(releases)
			}
			for _, r := range releases {
				year := "----"
				if r.Year > 0 {
					year = strconv.Itoa(r.Year)
				}
				fmt.Printf("%s  %-7s %s", year, r.Kind, r.Title)
				if r.Label != "" {
					colorInfo.Printf("  [%s]", r.Label)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.MaxResults, "max", discogs.DefaultMaxResults, "Maximum number of releases")
	cmd.Flags().StringVar(&opts.Sort, "sort", "year", "Sort by year, title or format")
	cmd.Flags().StringVar(&opts.SortOrder, "order", "desc", "Sort order, asc or desc")
	cmd.Flags().BoolVar(&opts.IncludeDetails, "details", false, "Fetch label, catalog number and cover for every release")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
