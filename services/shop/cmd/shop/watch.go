package main

import (
	"context"
	"fmt"

	"ecomarket/services/shop/internal/app"
	"ecomarket/services/shop/internal/authgate"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay open like a browser tab, following session and connectivity changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, path, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				page := a.Gate.Resolve(ctx, path)
				a.Nav.Navigate(page.Path)
				fmt.Fprintf(out, "open %s (%s) online=%t\n", page.Path, page.Name, a.Conn.Online())

				a.Gate.OnChange(func(auth authgate.Authorization) {
					role := string(auth.Role)
					if auth.Anonymous() {
						role = "anonymous"
					}
					fmt.Fprintf(out, "session changed: %s, now at %s\n", role, a.Nav.Path())
				})
				states, cancel := a.Conn.Subscribe()
				defer cancel()
				go func() {
					for s := range states {
						fmt.Fprintf(out, "connectivity: %s\n", s)
					}
				}()
				return exitOnInterrupt(a.Run(ctx))
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "/", "route to open")
	return cmd
}
