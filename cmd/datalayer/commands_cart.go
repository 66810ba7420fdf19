package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	datalayer "github.com/goliatone/go-datalayer"
)

func buildCartCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and edit the cart",
	}
	cmd.AddCommand(
		buildCartShowCmd(opts),
		buildCartAddCmd(opts),
		buildCartRemoveCmd(opts),
		buildCartQtyCmd(opts),
		buildCartResetCmd(opts),
	)
	return cmd
}

func printCart(cmd *cobra.Command, a *app) error {
	cart, ok := a.store.Cart()
	if !ok {
		return fmt.Errorf("cart is unavailable")
	}
	return printJSON(cmd, cart)
}

func buildCartShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			return printCart(cmd, a)
		}),
	}
}

func buildCartAddCmd(opts *rootOptions) *cobra.Command {
	var item datalayer.CartItem
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			item.ID = args[0]
			if err := a.store.AddToCart(cmd.Context(), item); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
	cmd.Flags().Float64Var(&item.Price, "price", 0, "Unit price")
	cmd.Flags().IntVar(&item.Quantity, "qty", 1, "Quantity to add")
	cmd.Flags().StringVar(&item.Name, "name", "", "Product name")
	cmd.Flags().StringVar(&item.SKU, "sku", "", "Product SKU")
	cmd.Flags().StringVar(&item.Category, "category", "", "Product category")
	cmd.Flags().StringVar(&item.Images, "image", "", "Product image URL")
	return cmd
}

func buildCartRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a product line",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.store.RemoveFromCart(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
}

func buildCartQtyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "qty <id> <quantity>",
		Short: "Set the quantity of a product line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be an integer: %w", err)
			}
			if err := a.store.SetQuantity(cmd.Context(), args[0], quantity); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
}

func buildCartResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			if err := a.store.ResetCart(cmd.Context()); err != nil {
				return err
			}
			return printCart(cmd, a)
		}),
	}
}
