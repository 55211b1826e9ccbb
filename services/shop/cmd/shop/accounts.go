package main

import (
	"context"
	"fmt"
	"strings"

	"ecomarket/pkg/domain"
	"ecomarket/services/shop/internal/apiclient"
	"ecomarket/services/shop/internal/app"
	"github.com/spf13/cobra"
)

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var password, email string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a shopper account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "/register", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/register"); err != nil {
					return err
				}
				u, err := a.API.Register(ctx, apiclient.RegisterRequest{
					Username: args[0],
					Email:    email,
					Password: password,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s created (id %s), log in to start shopping\n", u.Username, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	return cmd
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var (
		password, email, role string
		inactive              bool
	)
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.UserRole(strings.ToLower(role))
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			return withApp(cmd, opts, "/users/new", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/users/new"); err != nil {
					return err
				}
				active := !inactive
				u, err := a.API.Register(ctx, apiclient.RegisterRequest{
					Username: args[0],
					Email:    email,
					Password: password,
					Role:     r,
					Status:   &active,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s created (id %s, role %s)\n", u.Username, u.ID, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "user or admin")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the account disabled")
	return cmd
}

func newUserEditCmd(opts *rootOptions) *cobra.Command {
	var (
		username, email, image string
		active                 bool
	)
	cmd := &cobra.Command{
		Use:   "edit <user_id>",
		Short: "Change an account (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd apiclient.UserUpdate
			fl := cmd.Flags()
			if fl.Changed("username") {
				upd.Username = &username
			}
			if fl.Changed("email") {
				upd.Email = &email
			}
			if fl.Changed("image-url") {
				upd.ProfileImage = &image
			}
			if fl.Changed("active") {
				upd.Status = &active
			}
			if upd == (apiclient.UserUpdate{}) {
				return fmt.Errorf("nothing to change")
			}
			return withApp(cmd, opts, "/users", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/users"); err != nil {
					return err
				}
				u, err := a.API.UpdateUser(ctx, args[0], upd)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s updated: %s <%s> active=%t\n", u.ID, u.Username, u.Email, u.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "new username")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&image, "image-url", "", "profile image URL")
	cmd.Flags().BoolVar(&active, "active", true, "enable or disable the account")
	return cmd
}

func newUserDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user_id>",
		Short: "Delete an account (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "/users", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/users"); err != nil {
					return err
				}
				if err := a.API.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newRecommendationsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recommendations [user_id]",
		Short: "Suggest products for an account (defaults to your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "/recommendations", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/recommendations"); err != nil {
					return err
				}
				var userID string
				if len(args) == 1 {
					userID = args[0]
				} else {
					sess, err := a.Sessions.Load(ctx)
					if err != nil {
						return err
					}
					userID = sess.UserID
				}
				if userID == "" {
					return fmt.Errorf("no user id in session, pass one explicitly")
				}
				ids, err := a.API.Recommendations(ctx, userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "no recommendations yet")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintf(out, "recommended product %d\n", id)
				}
				return nil
			})
		},
	}
}
