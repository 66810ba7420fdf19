package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/pkg/rules"
	"github.com/goliatone/go-datalayer/pkg/triggers"
)

type firedView struct {
	Event   string    `json:"event"`
	Trigger string    `json:"trigger"`
	Index   int       `json:"index"`
	Path    string    `json:"path"`
	FiredAt time.Time `json:"firedAt"`
}

func buildTriggersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Load and fire custom event configuration",
	}
	cmd.AddCommand(buildTriggersFireCmd(opts), buildTriggersShowCmd(opts))
	return cmd
}

func buildTriggersFireCmd(opts *rootOptions) *cobra.Command {
	var (
		pageURL   string
		configURL string
		loaded    bool
	)
	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Dispatch the configured events matching a page",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			loc, err := parseLocation(pageURL, a.cfg.Page.Path)
			if err != nil {
				return err
			}
			page := triggers.NewDocument(loc)
			loader := triggers.NewLoader(firstNonEmpty(configURL, a.cfg.Triggers.URL), a.triggers,
				triggers.WithCacheTTL(a.cfg.TTL.Triggers),
				triggers.WithLoaderLogger(a.logger),
			)

			out := cmd.OutOrStdout()
			engine := triggers.NewEngine(a.store, page,
				triggers.WithRules(rules.NewEngines(rules.WithLogger(a.logger))),
				triggers.WithReadyTimeout(a.cfg.Triggers.ReadyTimeout),
				triggers.WithLogger(a.logger),
				triggers.WithSinks(triggers.SinkFunc(func(_ context.Context, f triggers.Firing) {
					a.metrics.ObserveTrigger(f.Event, string(f.Trigger))
					if err := printJSON(cmd, firedView{
						Event:   f.Event,
						Trigger: string(f.Trigger),
						Index:   f.Index,
						Path:    f.Path,
						FiredAt: f.FiredAt,
					}); err != nil {
						a.logger.Warn("write fired event", zap.Error(err))
					}
				})),
			)
			defer engine.Cleanup()

			if err := engine.Start(cmd.Context(), loader); err != nil {
				return err
			}
			if loaded {
				page.FinishLoading()
			}
			fmt.Fprintf(out, "click listeners: %d\n", engine.Listeners())
			return nil
		}),
	}
	cmd.Flags().StringVar(&pageURL, "path", "", "Page path with optional query, e.g. /products?id=1 (default page.path)")
	cmd.Flags().StringVar(&configURL, "url", "", "Configuration URL (default triggers.url)")
	cmd.Flags().BoolVar(&loaded, "loaded", false, "Finish loading the page so load triggers fire")
	return cmd
}

func buildTriggersShowCmd(opts *rootOptions) *cobra.Command {
	var configURL string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			loader := triggers.NewLoader(firstNonEmpty(configURL, a.cfg.Triggers.URL), a.triggers,
				triggers.WithCacheTTL(a.cfg.TTL.Triggers),
				triggers.WithLoaderLogger(a.logger),
			)
			cfg, ok := loader.Load(cmd.Context())
			if !ok {
				return triggers.ErrNoConfig
			}
			return printJSON(cmd, cfg)
		}),
	}
	cmd.Flags().StringVar(&configURL, "url", "", "Configuration URL (default triggers.url)")
	return cmd
}

func parseLocation(raw, fallback string) (triggers.Location, error) {
	if raw == "" {
		raw = fallback
	}
	u, err := url.Parse(raw)
	if err != nil {
		return triggers.Location{}, fmt.Errorf("invalid page path %q: %w", raw, err)
	}
	loc := triggers.Location{Path: u.Path, Query: u.RawQuery}
	if loc.Path == "" {
		loc.Path = "/"
	}
	return loc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func buildServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the state document and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				path := r.URL.Query().Get("path")
				value, ok := a.store.Read(path)
				if !ok {
					http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
					return
				}
				if err := writeJSON(w, value); err != nil {
					a.logger.Warn("write state", zap.Error(err))
				}
			})

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("serving data layer", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", ":9100", "Listen address")
	return cmd
}
