// Package main is the tokgovctl operator CLI.
// It opens the configured state store in-process and inspects or adjusts the governor.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/tokgov/internal/config"
	tokgov "github.com/kailas-cloud/tokgov/pkg/sdk"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	env     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "tokgovctl",
		Short: "Inspect and adjust the tokgov daily token governor",
		Long: `tokgovctl opens the state store described by config/<env>.yaml and
talks to the governor directly, without the HTTP server.

With the redis or valkey driver it is safe to run next to a live server.
The badger driver locks its directory, so stop the server first.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&f.env, "env", "e", config.GetEnv(), "Config environment (config/<env>.yaml)")
	rootCmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Timeout for store operations")

	rootCmd.AddCommand(
		newStatusCmd(f),
		newUsageCmd(f),
		newCheckCmd(f),
		newRecordCmd(f),
		newRolloverCmd(f),
	)
	return rootCmd
}

func newStatusCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the governor status snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), f, func(ctx context.Context, c *tokgov.Client) error {
				return printJSON(cmd.OutOrStdout(), c.Status(ctx))
			})
		},
	}
}

func newUsageCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print the usage report for the current day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), f, func(ctx context.Context, c *tokgov.Client) error {
				return printJSON(cmd.OutOrStdout(), c.Usage(ctx))
			})
		},
	}
}

func newCheckCmd(f *rootFlags) *cobra.Command {
	var prio string

	cmd := &cobra.Command{
		Use:   "check <estimate>",
		Short: "Ask whether an estimate would be admitted (records nothing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			estimate, err := parseTokens(args[0])
			if err != nil {
				return err
			}
			p, err := tokgov.ParsePriority(prio)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), f, func(ctx context.Context, c *tokgov.Client) error {
				ok, err := c.CanConsume(ctx, estimate, p)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"admitted": ok,
					"mode":     c.Mode(ctx),
				})
			})
		},
	}
	cmd.Flags().StringVarP(&prio, "priority", "p", string(tokgov.PriorityNormal), "Priority tier (NORMAL or LOW)")
	return cmd
}

func newRecordCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "record <tokens>",
		Short: "Durably add consumed tokens to today's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := parseTokens(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), f, func(ctx context.Context, c *tokgov.Client) error {
				if err := c.RecordConsumption(ctx, tokens); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c.Status(ctx))
			})
		},
	}
}

func newRolloverCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Persist a pending day rollover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), f, func(ctx context.Context, c *tokgov.Client) error {
				if err := c.EnsureCurrentPeriod(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c.Status(ctx))
			})
		},
	}
}

// withClient loads the config, opens a client and closes it after fn.
func withClient(ctx context.Context, f *rootFlags, fn func(context.Context, *tokgov.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cfg, err := config.Load(f.env)
	if err != nil {
		return err
	}

	c, err := tokgov.New(ctx, clientOptions(cfg)...)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	return fn(ctx, c)
}

// clientOptions maps the server config onto SDK options.
func clientOptions(cfg config.Config) []tokgov.Option {
	opts := []tokgov.Option{
		tokgov.WithBudget(cfg.Governor.DailyBudget),
		tokgov.WithLowPriorityFraction(cfg.Governor.LowPriorityFraction),
		tokgov.WithSaverThreshold(cfg.Governor.SaverModeThreshold),
		tokgov.WithCostPerThousand(cfg.Governor.CostPerThousandTokens),
		tokgov.WithTimezone(cfg.Governor.Timezone),
		tokgov.WithKeyPrefix(cfg.Storage.KeyPrefix),
	}

	switch cfg.Storage.Driver {
	case config.DriverBadger:
		opts = append(opts, tokgov.WithBadger(cfg.Storage.Path))
	case config.DriverRedis, config.DriverValkey:
		addr := ""
		if len(cfg.Storage.Addrs) > 0 {
			addr = cfg.Storage.Addrs[0]
		}
		if cfg.Storage.Driver == config.DriverValkey {
			opts = append(opts, tokgov.WithValkey(addr, cfg.Storage.Password))
		} else {
			opts = append(opts, tokgov.WithRedis(addr, cfg.Storage.Password))
		}
	default:
		opts = append(opts, tokgov.WithFile(cfg.Storage.Path))
	}
	return opts
}

func parseTokens(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token count %q: %w", s, err)
	}
	return n, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
