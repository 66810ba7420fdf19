package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	datalayer "github.com/goliatone/go-datalayer"
)

func buildCheckoutCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Manage saved checkout data",
	}
	cmd.AddCommand(
		buildCheckoutSaveCmd(opts),
		buildCheckoutShowCmd(opts),
		buildCheckoutClearCmd(opts),
	)
	return cmd
}

func buildCheckoutSaveCmd(opts *rootOptions) *cobra.Command {
	var data datalayer.CheckoutData
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Validate and save checkout data",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			err := a.checkout.Save(cmd.Context(), data)
			var verr *datalayer.ValidationError
			if errors.As(err, &verr) {
				fields := make([]string, 0, len(verr.Fields))
				for field := range verr.Fields {
					fields = append(fields, field)
				}
				sort.Strings(fields)
				for _, field := range fields {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, verr.Fields[field])
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "checkout data saved")
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&data.FirstName, "first-name", "", "First name")
	flags.StringVar(&data.LastName, "last-name", "", "Last name")
	flags.StringVar(&data.Email, "email", "", "Email address")
	flags.StringVar(&data.Phone, "phone", "", "Phone number")
	flags.StringVar(&data.StreetAddress, "street", "", "Street address")
	flags.StringVar(&data.City, "city", "", "City")
	flags.StringVar(&data.PostalCode, "postal-code", "", "Postal code")
	flags.StringVar(&data.Country, "country", "", "Country")
	return cmd
}

func buildCheckoutShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print saved checkout data",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			data, ok := a.checkout.Load(cmd.Context())
			if !ok {
				return datalayer.ErrMissingCheckout
			}
			return printJSON(cmd, data)
		}),
	}
}

func buildCheckoutClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove saved checkout data",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			a.checkout.Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "checkout data cleared")
			return nil
		}),
	}
}

func buildOrderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place orders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "place",
		Short: "Check out the cart with the saved checkout data",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			confirmation, err := datalayer.PlaceOrder(cmd.Context(), a.store, a.checkout)
			if err != nil {
				return err
			}
			return printJSON(cmd, confirmation)
		}),
	})
	return cmd
}
