package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/justestif/radio-track-enhancer/internal/enhance"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
	"github.com/justestif/radio-track-enhancer/internal/spotify"
)

type enhanceFlags struct {
	spotifyRef   string
	output       string
	noYouTube    bool
	noDiscogs    bool
	skipExisting bool
	concurrent   bool
	quiet        bool
}

func newEnhanceCommand(g *globals) *cobra.Command {
	f := &enhanceFlags{}

	cmd := &cobra.Command{
		Use:   "enhance [tracks.json]",
		Short: "Enhance a batch of tracks read from a JSON file or a Spotify playlist.",
		Long: `Enhance looks up every track on YouTube and its artist on Discogs.

Tracks come from a JSON array of {"artist", "track_name"} objects, from
stdin when the file is "-", or from a Spotify playlist or album with
--spotify. The result is written as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(cmd, g, f, args)
		},
	}

	cmd.Flags().StringVar(&f.spotifyRef, "spotify", "", "Spotify playlist or album URL, URI or ID")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the result to this file instead of stdout")
	cmd.Flags().BoolVar(&f.noYouTube, "no-youtube", false, "Skip YouTube lookups")
	cmd.Flags().BoolVar(&f.noDiscogs, "no-discogs", false, "Skip Discogs lookups")
	cmd.Flags().BoolVar(&f.skipExisting, "skip-existing", true, "Leave tracks that already have a provider URL alone")
	cmd.Flags().BoolVar(&f.concurrent, "concurrent", false, "Run the YouTube and Discogs passes at the same time")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "No progress bar or summary")
	return cmd
}

func runEnhance(cmd *cobra.Command, g *globals, f *enhanceFlags, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracks, err := loadTracks(ctx, g, f, args)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return errors.New("no tracks to enhance")
	}

	a, err := newApp(ctx, g.cfg, g.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := a.batchOptions()
	opts.EnableYouTube = !f.noYouTube
	opts.EnableDiscogs = !f.noDiscogs
	if cmd.Flags().Changed("skip-existing") {
		opts.SkipExisting = f.skipExisting
	}
	if cmd.Flags().Changed("concurrent") {
		opts.ConcurrentPhases = f.concurrent
	}

	var bar *pb.ProgressBar
	if !f.quiet {
		bar = pb.New(0)
		bar.SetWriter(os.Stderr)
		bar.Start()
		opts.OnProgress = func(completed, total int, current string, phase enhance.Phase) {
			bar.SetTotal(int64(total))
			bar.SetCurrent(int64(completed))
			bar.Set("prefix", string(phase)+" ")
		}
		opts.OnQuotaWarning = func(provider string, st ratelimit.Status) {
			colorWarning.Fprintf(os.Stderr, "\n%s quota at %.1f%% (%d/%d)\n", provider, st.PercentUsed, st.Used, st.Max)
		}
	}

	res, runErr := a.service.EnhanceBatch(ctx, tracks, opts)
	if bar != nil {
		bar.Finish()
	}

	if err := writeResult(res, f.output); err != nil {
		return err
	}
	if !f.quiet {
		printSummary(os.Stderr, res)
	}
	if runErr != nil {
		return fmt.Errorf("batch interrupted: %w", runErr)
	}
	return nil
}

// loadTracks reads tracks from Spotify, a file, or stdin.
func loadTracks(ctx context.Context, g *globals, f *enhanceFlags, args []string) ([]enhance.TrackQuery, error) {
	if f.spotifyRef != "" {
		if len(args) > 0 {
			return nil, errors.New("give either a tracks file or --spotify, not both")
		}
		creds := &spotify.Credentials{
			ClientID:     g.cfg.Spotify.ClientID,
			ClientSecret: g.cfg.Spotify.ClientSecret,
		}
		client, err := spotify.NewWithCredentials(ctx, creds, g.logger.Named("spotify"))
		if err != nil {
			return nil, err
		}
		tracks, name, err := client.Tracks(ctx, f.spotifyRef)
		if err != nil {
			return nil, err
		}
		g.logger.Info("loaded tracks from spotify", "name", name, "tracks", len(tracks))
		return tracks, nil
	}

	if len(args) == 0 {
		return nil, errors.New("a tracks file or --spotify is required")
	}

	var r io.Reader = os.Stdin
	if args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("opening tracks file: %w", err)
		}
		defer file.Close()
		r = file
	}
	return decodeTracks(r)
}

// decodeTracks accepts either a bare array or an object with a tracks field.
func decodeTracks(r io.Reader) ([]enhance.TrackQuery, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading tracks: %w", err)
	}

	var tracks []enhance.TrackQuery
	if err := json.Unmarshal(data, &tracks); err == nil {
		return tracks, nil
	}

	var wrapped struct {
		Tracks []enhance.TrackQuery `json:"tracks"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding tracks: %w", err)
	}
	return wrapped.Tracks, nil
}

func writeResult(res *enhance.Result, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}
