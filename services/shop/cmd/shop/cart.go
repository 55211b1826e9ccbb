package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"ecomarket/pkg/domain"
	"ecomarket/services/shop/internal/app"
	"github.com/spf13/cobra"
)

const cartPath = "/cart"

func newCartCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and edit the shopping cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
				lines, err := a.Cart.Mount(ctx)
				if err != nil {
					return err
				}
				printCart(cmd.OutOrStdout(), lines, a.Conn.Online())
				return nil
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <product_id> [quantity]",
			Short: "Add a product",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				qty := 1
				if len(args) == 2 {
					if qty, err = strconv.Atoi(args[1]); err != nil {
						return fmt.Errorf("invalid quantity %q", args[1])
					}
				}
				return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
					if err := a.Cart.Add(ctx, id, qty); err != nil {
						return err
					}
					printCart(cmd.OutOrStdout(), a.Cart.Displayed(), a.Conn.Online())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <product_id>",
			Short: "Remove a product",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
					if _, err := a.Cart.View(ctx); err != nil {
						return err
					}
					if err := a.Cart.Remove(ctx, id); err != nil {
						return err
					}
					printCart(cmd.OutOrStdout(), a.Cart.Displayed(), a.Conn.Online())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "qty <product_id> <quantity>",
			Short: "Set the quantity of a product in the cart",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				qty, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
					if _, err := a.Cart.View(ctx); err != nil {
						return err
					}
					if err := a.Cart.UpdateQuantity(ctx, id, qty); err != nil {
						return err
					}
					printCart(cmd.OutOrStdout(), a.Cart.Displayed(), a.Conn.Online())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
					if err := a.Cart.Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "cart emptied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "purchase",
			Short: "Buy the cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
					res, err := a.Cart.Purchase(ctx)
					if err != nil {
						return err
					}
					printPurchase(cmd.OutOrStdout(), res)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Merge offline edits into the server cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCart(cmd, opts, func(ctx context.Context, a *app.App) error {
					if a.Cart.Sync(ctx) {
						fmt.Fprintln(cmd.OutOrStdout(), "offline changes merged")
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "nothing merged")
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withCart(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	return withApp(cmd, opts, cartPath, func(ctx context.Context, a *app.App) error {
		if _, err := a.Require(ctx, cartPath); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", v)
	}
	return id, nil
}

func printCart(w io.Writer, lines []domain.CartLine, online bool) {
	source := "server"
	if !online {
		source = "saved offline"
	}
	if len(lines) == 0 {
		fmt.Fprintf(w, "cart is empty (%s)\n", source)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%.2f\n", l.ProductID, l.Name, l.Quantity, l.Price, l.Subtotal())
	}
	fmt.Fprintf(tw, "\t\t\tTOTAL\t%.2f\n", domain.CartTotal(lines))
	_ = tw.Flush()
	fmt.Fprintf(w, "(%s)\n", source)
}

func printPurchase(w io.Writer, res domain.PurchaseResult) {
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	fmt.Fprintln(w, "purchased:")
	if len(res.Products.Purchased) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, p := range res.Products.Purchased {
		fmt.Fprintf(w, "  product %d x%d\n", p.ProductID, p.Quantity)
	}
	fmt.Fprintln(w, "skipped:")
	if len(res.Products.Skipped) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, s := range res.Products.Skipped {
		fmt.Fprintf(w, "  product %d: %s\n", s.ProductID, s.Reason)
	}
}
