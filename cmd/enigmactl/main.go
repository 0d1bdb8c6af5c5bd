// Command enigmactl administers and exercises an enigma server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bpbrianpark/enigma-game/internal/playtest"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// Default flag values.
const (
	defaultBaseURL = "http://localhost:9080"
	defaultTimeout = 30 * time.Second
)

type rootOptions struct {
	baseURL   string
	timeout   time.Duration
	debug     bool
	logFormat string
}

func (o *rootOptions) client() *playtest.Client {
	return playtest.NewClient(o.baseURL, o.timeout)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "failed to execute a command: %+v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "enigmactl",
		Short:         "Administer and exercise an enigma server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithOptions(logger.WithFormat(opts.logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if opts.debug {
				return logger.SetLevelString("debug")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("ENIGMA_URL", defaultBaseURL), "base URL of the server")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "per-request timeout")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text or json)")

	root.AddCommand(
		newCategoriesCommand(opts),
		newEntriesCommand(opts),
		newRefreshCommand(opts),
		newQueryCommand(opts),
		newDailyCommand(opts),
		newSelectDailyCommand(opts),
		newPlayCommand(opts),
		newPlaytestCommand(opts),
		newSeedCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
