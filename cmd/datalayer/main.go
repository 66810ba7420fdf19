// Command datalayer drives a storefront data layer from the shell: read and
// update the state document, edit the cart, save checkout data, place
// orders and fire configured custom events for a page.
//
// # Usage
//
//	datalayer status
//	datalayer cart add sku1 --price 50 --qty 2
//	datalayer read cart
//	datalayer triggers fire --path /products/shoes
//	datalayer serve --addr :9100
//
// Configuration comes from datalayer.yaml in the working directory (or
// --config) and DATALAYER_* environment variables, e.g.
// DATALAYER_STORAGE_DRIVER=redis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	audit      bool
	actorID    string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "datalayer",
		Short:        "Inspect and drive a storefront data layer",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file (default ./datalayer.yaml)")
	root.PersistentFlags().BoolVar(&opts.audit, "audit", false, "Log every store notification as an activity record")
	root.PersistentFlags().StringVar(&opts.actorID, "actor", "", "Actor UUID recorded on activity records")

	root.AddCommand(
		buildStatusCmd(opts),
		buildReadCmd(opts),
		buildUpdateCmd(opts),
		buildClearCmd(opts),
		buildCartCmd(opts),
		buildCheckoutCmd(opts),
		buildOrderCmd(opts),
		buildTriggersCmd(opts),
		buildServeCmd(opts),
	)
	return root
}
