package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bpbrianpark/enigma-game/internal/adapters/repository"
	"github.com/bpbrianpark/enigma-game/internal/config"
	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	"github.com/bpbrianpark/enigma-game/internal/playtest"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCategoriesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := opts.client().Categories(cmd.Context())
			if err != nil {
				return fmt.Errorf("list categories: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), cats)
		},
	}
}

func newEntriesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entries <slug>",
		Short: "List a category's entries and aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := opts.client().Entries(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list entries: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
}

func newRefreshCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <slug>...",
		Short: "Re-run category listing queries on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			for _, slug := range args {
				res, err := c.Refresh(cmd.Context(), slug)
				if err != nil {
					return fmt.Errorf("refresh %s: %w", slug, err)
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "query [sparql]",
		Short: "Run a raw query through the server's gateway",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q string
			switch {
			case file != "":
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read query file: %w", err)
				}
				q = string(raw)
			case len(args) == 1:
				q = args[0]
			default:
				return fmt.Errorf("a query argument or --file is required")
			}
			rows, err := opts.client().Query(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the query from a file")
	return cmd
}

func newDailyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Show today's daily category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slug, err := opts.client().Daily(cmd.Context())
			if err != nil {
				return fmt.Errorf("daily: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), slug)
			return err
		},
	}
}

func newSelectDailyCommand(opts *rootOptions) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "select-daily",
		Short: "Trigger the scheduled daily category selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or ENIGMA_CRON_SECRET is required")
			}
			slug, err := opts.client().SelectDaily(cmd.Context(), secret)
			if err != nil {
				return fmt.Errorf("select daily: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), slug)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv(config.EnvPrefix+"CRON_SECRET"), "cron bearer secret")
	return cmd
}

func newPlayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play <slug> <guess>...",
		Short: "Start a session and submit guesses",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := opts.client()
			start, err := c.StartSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("start session: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, guess := range args[1:] {
				res, err := c.Guess(ctx, start.SessionID, guess)
				if err != nil {
					return fmt.Errorf("guess %q: %w", guess, err)
				}
				if _, err := fmt.Fprintln(out, describeGuess(guess, res)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func describeGuess(guess string, res types.GuessResult) string {
	var verdict string
	switch {
	case res.RateLimited:
		verdict = fmt.Sprintf("rate limited, retry in %ds", res.RetryAfterS)
	case res.Duplicate:
		verdict = "already found"
	case res.Correct:
		verdict = "correct (" + res.Stage + ")"
	default:
		verdict = "miss"
	}
	return fmt.Sprintf("%-24s %s  [%d/%d]", strings.TrimSpace(guess), verdict, res.Found, res.Total)
}

func newPlaytestCommand(opts *rootOptions) *cobra.Command {
	cfg := &playtest.Config{}
	cmd := &cobra.Command{
		Use:   "playtest <slug>",
		Short: "Play many concurrent sessions and verify the server's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Slug = args[0]
			cfg.Timeout = opts.timeout
			stats, err := playtest.Run(cmd.Context(), opts.client(), cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.Players, "players", playtest.DefaultPlayers, "concurrent sessions")
	f.IntVar(&cfg.Guesses, "guesses", playtest.DefaultGuesses, "guesses per player")
	f.IntVar(&cfg.Workers, "workers", playtest.DefaultWorkers, "concurrent guess submitters")
	f.Float64Var(&cfg.MissRatio, "miss-ratio", playtest.DefaultMissRatio, "share of guesses that match nothing")
	f.Uint64Var(&cfg.Seed, "seed", 0, "guess generator seed (0 picks one)")
	f.BoolVar(&cfg.Tally, "tally", false, "tally each player's found entries at the end")
	f.BoolVar(&cfg.Verbose, "verbose", false, "log every guess")
	return cmd
}

// newSeedCommand seeds the configured store directly, without a server.
func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load categories, entries and aliases from a YAML file into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = store.Close() }()

			stats, err := repository.LoadSeedFile(ctx, store, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories, %d entries, %d aliases into %s\n",
				stats.Categories, stats.Entries, stats.Aliases, cfg.StoreDriver)
			return err
		},
	}
}
