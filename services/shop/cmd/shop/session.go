package main

import (
	"context"
	"errors"
	"fmt"

	"ecomarket/services/shop/internal/app"
	"ecomarket/services/shop/internal/authgate"
	"ecomarket/services/shop/internal/nav"
	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nav.LoginPath, func(ctx context.Context, a *app.App) error {
				auth, err := a.Gate.Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s), home %s\n", args[0], auth.Role, a.Nav.Path())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, "/", func(ctx context.Context, a *app.App) error {
				if err := a.Gate.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, "/", func(ctx context.Context, a *app.App) error {
				sess, err := a.Sessions.Load(ctx)
				if err != nil {
					return err
				}
				auth := authgate.Authorize(sess)
				out := cmd.OutOrStdout()
				if auth.Anonymous() {
					fmt.Fprintln(out, "anonymous")
					return nil
				}
				fmt.Fprintf(out, "%s (id %s) role %s home %s online=%t\n",
					sess.Username, sess.UserID, auth.Role, auth.Routes.Home, a.Conn.Online())
				return nil
			})
		},
	}
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "route <path>",
		Short: "Show which page a path opens for the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, args[0], func(ctx context.Context, a *app.App) error {
				page, err := a.Require(ctx, args[0])
				if err != nil && !errors.Is(err, app.ErrRouteDenied) {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", args[0], page.Path, page.Name)
				return nil
			})
		},
	}
}
