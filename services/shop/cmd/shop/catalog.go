package main

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"ecomarket/pkg/domain"
	"ecomarket/services/shop/internal/app"
	"ecomarket/services/shop/internal/authgate"
	"github.com/spf13/cobra"
)

// requireAny opens the first of paths the session can reach.
func requireAny(ctx context.Context, a *app.App, paths ...string) (authgate.Page, error) {
	var (
		page authgate.Page
		err  error
	)
	for _, p := range paths {
		if page, err = a.Require(ctx, p); err == nil {
			return page, nil
		}
	}
	return page, err
}

func newProductsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products [product_id]",
		Short: "List products or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "/", func(ctx context.Context, a *app.App) error {
				if _, err := requireAny(ctx, a, "/products", "/home"); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					id, err := parseID(args[0])
					if err != nil {
						return err
					}
					p, err := a.API.GetProduct(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d %s\n  %s\n  category %s, price %.2f, stock %d\n", p.ID, p.Name, p.Description, p.Category, p.Price, p.Stock)
					fmt.Fprintf(out, "  footprint %.2f kg CO2e, recyclable packaging %t, local %t\n", p.CarbonFootprint, p.RecyclablePackaging, p.LocalOrigin)
					return nil
				}
				products, err := a.API.ListProducts(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
				for _, p := range products {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d\n", p.ID, p.Name, p.Category, p.Price, p.Stock)
				}
				return tw.Flush()
			})
		},
	}
	cmd.AddCommand(newProductAddCmd(opts), newProductEditCmd(opts), &cobra.Command{
		Use:   "delete <product_id>",
		Short: "Delete a product (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, "/products", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/products"); err != nil {
					return err
				}
				if err := a.API.DeleteProduct(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "product %d deleted\n", id)
				return nil
			})
		},
	})
	return cmd
}

// productFlags are the editable product fields. Only flags given on the
// command line are applied.
type productFlags struct {
	name, description, category, image string
	price, carbon                      float64
	stock                              int
	recyclable, local                  bool
}

func (f *productFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "product name")
	fl.StringVar(&f.description, "description", "", "description")
	fl.StringVar(&f.category, "category", "", "category")
	fl.StringVar(&f.image, "image-url", "", "image URL")
	fl.Float64Var(&f.price, "price", 0, "unit price")
	fl.Float64Var(&f.carbon, "carbon", 0, "carbon footprint in kg CO2e per unit")
	fl.IntVar(&f.stock, "stock", 0, "units in stock")
	fl.BoolVar(&f.recyclable, "recyclable", false, "packaging is recyclable")
	fl.BoolVar(&f.local, "local", false, "locally produced")
}

func (f *productFlags) apply(cmd *cobra.Command, p *domain.Product) {
	fl := cmd.Flags()
	if fl.Changed("name") {
		p.Name = f.name
	}
	if fl.Changed("description") {
		p.Description = f.description
	}
	if fl.Changed("category") {
		p.Category = f.category
	}
	if fl.Changed("image-url") {
		p.ImageURL = f.image
	}
	if fl.Changed("price") {
		p.Price = f.price
	}
	if fl.Changed("carbon") {
		p.CarbonFootprint = f.carbon
	}
	if fl.Changed("stock") {
		p.Stock = f.stock
	}
	if fl.Changed("recyclable") {
		p.RecyclablePackaging = f.recyclable
	}
	if fl.Changed("local") {
		p.LocalOrigin = f.local
	}
}

func newProductAddCmd(opts *rootOptions) *cobra.Command {
	var flags productFlags
	cmd := &cobra.Command{
		Use:   "add --name <name> [flags]",
		Short: "Add a product to the catalog (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, "/products/new", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/products/new"); err != nil {
					return err
				}
				var p domain.Product
				flags.apply(cmd, &p)
				created, err := a.API.CreateProduct(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "product %d created: %s\n", created.ID, created.Name)
				return nil
			})
		},
	}
	flags.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProductEditCmd(opts *rootOptions) *cobra.Command {
	var flags productFlags
	cmd := &cobra.Command{
		Use:   "edit <product_id> [flags]",
		Short: "Change fields of a product (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, "/products", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/products"); err != nil {
					return err
				}
				// Read from the listing so the edit does not count as a view.
				products, err := a.API.ListProducts(ctx)
				if err != nil {
					return err
				}
				idx := slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == id })
				if idx < 0 {
					return fmt.Errorf("product %d not found", id)
				}
				p := products[idx]
				flags.apply(cmd, &p)
				updated, err := a.API.UpdateProduct(ctx, id, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "product %d updated: %s, price %.2f, stock %d\n", updated.ID, updated.Name, updated.Price, updated.Stock)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newCommentsCmd(opts *rootOptions) *cobra.Command {
	var (
		add    string
		rating int
	)
	cmd := &cobra.Command{
		Use:   "comments <product_id>",
		Short: "List or add product comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, "/comments", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/comments"); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if add != "" {
					c, err := a.API.AddComment(ctx, id, add, rating)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "comment %d added\n", c.ID)
					return nil
				}
				comments, err := a.API.ListComments(ctx, id)
				if err != nil {
					return err
				}
				if len(comments) == 0 {
					fmt.Fprintln(out, "no comments yet")
				}
				for _, c := range comments {
					fmt.Fprintf(out, "[%s] %s (%d/5): %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.Username, c.Rating, c.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&add, "add", "", "comment text to post")
	cmd.Flags().IntVar(&rating, "rating", 5, "rating from 1 to 5")
	return cmd
}

func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, "/users", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/users"); err != nil {
					return err
				}
				users, err := a.API.ListUsers(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Email, u.Role, u.Status)
				}
				return tw.Flush()
			})
		},
	}
	cmd.AddCommand(newUserAddCmd(opts), newUserEditCmd(opts), newUserDeleteCmd(opts))
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the most viewed products (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, "/dashboard", func(ctx context.Context, a *app.App) error {
				if _, err := a.Require(ctx, "/dashboard"); err != nil {
					return err
				}
				views, err := a.API.MostViewed(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "no views recorded")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PRODUCT\tNAME\tVIEWS")
				for _, v := range views {
					fmt.Fprintf(tw, "%d\t%s\t%d\n", v.ProductID, v.Name, v.Views)
				}
				return tw.Flush()
			})
		},
	}
}
