package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/justestif/radio-track-enhancer/internal/config"
)

// globals are set by the root command's persistent flags.
type globals struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger hclog.Logger
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "track-enhancer",
		Short:         "Find YouTube videos and Discogs artists for playlist tracks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a TOML config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before the config")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(g),
		newEnhanceCommand(g),
		newQuotaCommand(g),
		newDiscographyCommand(g),
	)
	return root
}

// load reads the env file, the config and sets up logging.
func (g *globals) load() error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", g.envFile, err)
		}
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	g.cfg = cfg

	g.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "track-enhancer",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: os.Stderr,
	})
	return nil
}
