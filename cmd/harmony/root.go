package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/harmony/common/id"
	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/core/config"
)

// cli carries what PersistentPreRunE loads for the subcommands.
type cli struct {
	cfgFile   string
	verbose   bool
	cfg       config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "harmony",
		Short: "Plan and build artifact graphs with harmonic planning",
		Long: `harmony turns a goal into a dependency graph of artifacts, picks the best
of several candidate graphs, and materializes the winner wave by wave.

Examples:
  harmony resolve specs.yaml            # waves, roots and orphans of a spec file
  harmony score specs.yaml --json       # structural metrics
  harmony plan "a tokenizer and parser for TOML"
  harmony run "a tokenizer and parser for TOML" --output ./out`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logCloser != nil {
				_ = c.logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "TOML file with planner, limit and execution settings")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newResolveCmd(c),
		newScoreCmd(c),
		newPlanCmd(c),
		newRunCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	if c.cfgFile != "" {
		if err := os.Setenv("HARMONY_CONFIG", c.cfgFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return err
	}
	c.cfg = cfg

	// Stdout is for results, so logs go to LOG_FILE or stderr.
	if cfg.LogFile != "" {
		c.logCloser = logger.Setup(cfg)
	} else {
		level := slog.LevelWarn
		if c.verbose {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(logger.NewTraceHandler(handler)))
	}

	return id.Init(3)
}
