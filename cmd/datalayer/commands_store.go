package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	datalayer "github.com/goliatone/go-datalayer"
)

type statusView struct {
	datalayer.QueueStatus
	Restored bool   `json:"restored"`
	Driver   string `json:"driver"`
}

func buildStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show readiness and queue lengths",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			return printJSON(cmd, statusView{
				QueueStatus: a.store.Status(),
				Restored:    a.store.Restored(),
				Driver:      a.cfg.Storage.Driver,
			})
		}),
	}
}

func buildReadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read [path]",
		Short: "Print the document or the value at a dotted path",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			value, ok := a.store.Read(path)
			if !ok {
				return fmt.Errorf("no value at %q", path)
			}
			return printJSON(cmd, value)
		}),
	}
}

func buildUpdateCmd(opts *rootOptions) *cobra.Command {
	var shallow bool
	cmd := &cobra.Command{
		Use:   "update <json>",
		Short: "Merge a JSON object into the document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			var payload any
			if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
				return fmt.Errorf("payload is not valid JSON: %w", err)
			}
			mode := datalayer.ModeDeepMerge
			if shallow {
				mode = datalayer.ModeShallowReplace
			}
			if err := a.store.UpdateWith(cmd.Context(), payload, mode); err != nil {
				return err
			}
			return printJSON(cmd, a.store.Snapshot())
		}),
	}
	cmd.Flags().BoolVar(&shallow, "shallow", false, "Replace top-level keys instead of deep merging")
	return cmd
}

func buildClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Reset the document and remove its persisted copy",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			a.store.Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "data layer cleared")
			return nil
		}),
	}
}
