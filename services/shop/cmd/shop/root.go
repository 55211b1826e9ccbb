package main

import (
	"context"
	"errors"
	"fmt"

	"ecomarket/internal/util"
	"ecomarket/services/shop/internal/apiclient"
	"ecomarket/services/shop/internal/app"
	"ecomarket/services/shop/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	offline    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "shop",
		Short:         "Sustainable marketplace client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "work offline without probing the API")

	cmd.AddCommand(
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newRouteCmd(opts),
		newCartCmd(opts),
		newProductsCmd(opts),
		newCommentsCmd(opts),
		newUsersCmd(opts),
		newStatsCmd(opts),
		newRecommendationsCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// withApp builds the client at start, samples connectivity and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, start string, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := util.InitLogger(cfg.LogLevel, cmd.ErrOrStderr())
	ctx := cmd.Context()
	a, err := app.New(ctx, app.Config{
		File:      cfg,
		StartPath: start,
		Offline:   opts.offline,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	a.Probe(ctx)

	err = fn(ctx, a)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		fmt.Fprintf(cmd.ErrOrStderr(), "session expired, log in again (now at %s)\n", a.Nav.Path())
		return err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	}
	return err
}

func exitOnInterrupt(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
