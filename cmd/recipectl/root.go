package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chdsbd/recipeyak/internal/client"
)

type cli struct {
	server  string
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "recipectl",
		Short:         "Inspect and reorder recipes on a recipe API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if c.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	defaultServer := os.Getenv("RECIPEYAK_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	root.PersistentFlags().StringVar(&c.server, "server", defaultServer, "recipe API base URL (RECIPEYAK_SERVER)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log API requests")

	root.AddCommand(newKeyCmd(), newShowCmd(c), newMoveCmd(c), newRebalanceCmd(c), newCalendarCmd(c), newShoppingCmd(c))
	return root
}

func (c *cli) client() *client.Client {
	return client.New(c.server, client.WithLogger(c.logger))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
