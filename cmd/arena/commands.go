package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradingarena/internal/config"
)

type rootOptions struct {
	configPath string
	envOnly    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "arena",
		Short:         "Trading arena - agents debate, vote and place demo trades",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	defPath := os.Getenv("AR_CONFIG")
	if defPath == "" {
		defPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("AR_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defPath, "configuration file path")
	root.PersistentFlags().BoolVar(&opts.envOnly, "env-only", envOnly, "skip the config file and read only defaults and AR_* variables")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCycleCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket stream and live price ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newCycleCmd(opts *rootOptions) *cobra.Command {
	var (
		ticker string
		delay  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one trading cycle without the HTTP server and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycleOnce(cmd.Context(), opts, ticker, delay, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "ticker to focus the price stream on")
	cmd.Flags().DurationVar(&delay, "delay", -1, "pause between agents (defaults to cycle.agent_delay)")
	return cmd
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	return config.Load(opts.configPath, opts.envOnly)
}
