// Package cli wires configuration, storage and the content client into the
// spacetraveling commands.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/cms"
	"github.com/bryan-buckman/spacetraveling/internal/config"
	"github.com/bryan-buckman/spacetraveling/internal/content"
	"github.com/bryan-buckman/spacetraveling/internal/database"
	"github.com/bryan-buckman/spacetraveling/internal/listing"
	"github.com/bryan-buckman/spacetraveling/internal/logger"
	"github.com/bryan-buckman/spacetraveling/internal/revalidate"
	"github.com/bryan-buckman/spacetraveling/internal/server"
	"github.com/bryan-buckman/spacetraveling/internal/site"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	debug      bool

	cfg    config.Config
	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "spacetraveling",
		Short:         "Blog front end over a headless content backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Run in debug mode")

	root.AddCommand(a.serveCmd(), a.buildCmd(), a.cacheCmd())
	return root
}

// Execute runs the root command.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = a.debug
	}
	a.cfg = cfg

	l, err := logger.New(cfg.Debug)
	if err != nil {
		return err
	}
	a.logger = l
	return nil
}

func (a *app) openStore() (database.Store, error) {
	store, err := database.Open(a.cfg.Cache.Driver, a.cfg.Cache.DSN)
	if err != nil {
		return nil, err
	}
	a.logger.Info("cache opened", zap.String("database", store.DatabaseType()))
	return store, nil
}

func (a *app) contentClient() (*cms.Client, error) {
	if a.cfg.CMS.Endpoint == "" {
		return nil, fmt.Errorf("cms.endpoint is not configured")
	}
	return cms.NewClient(a.cfg.CMS.Endpoint, a.cfg.CMS.AccessToken, &http.Client{Timeout: a.cfg.CMS.Timeout}), nil
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the blog, revalidating cached posts in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
			}
			client, err := a.contentClient()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			repo := content.NewRepository(client, store, a.cfg.CMS.PageSize, a.cfg.Cache.Revalidate, a.logger)
			loader := listing.NewLoader(listing.HTTPFetcher{Client: client.HTTPClient()})
			rv := revalidate.New(repo, store, a.cfg.Cache.Revalidate, a.cfg.Cache.RetainFor, a.logger)

			endpoint, err := url.Parse(a.cfg.CMS.Endpoint)
			if err != nil {
				return fmt.Errorf("parse cms.endpoint: %w", err)
			}
			srv, err := server.New(repo, loader, store, rv, server.Options{
				SiteTitle:  a.cfg.SiteTitle,
				BaseURL:    a.cfg.BaseURL,
				CursorHost: endpoint.Host,
			}, a.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() { errc <- srv.Start(a.cfg.Addr) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides config)")
	return cmd
}

func (a *app) buildCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Write the blog as static files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("out") {
				a.cfg.Build.OutDir = outDir
			}
			client, err := a.contentClient()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			repo := content.NewRepository(client, store, a.cfg.CMS.PageSize, a.cfg.Cache.Revalidate, a.logger)
			builder, err := site.NewBuilder(repo, listing.NewLoader(listing.HTTPFetcher{Client: client.HTTPClient()}), site.Options{
				SiteTitle:   a.cfg.SiteTitle,
				BaseURL:     a.cfg.BaseURL,
				Concurrency: a.cfg.Build.Concurrency,
			}, a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			report, err := builder.Build(cmd.Context(), a.cfg.Build.OutDir)
			if err != nil {
				return err
			}
			a.logger.Info("site built",
				zap.String("out", a.cfg.Build.OutDir),
				zap.Stringer("report", report),
				zap.Duration("took", time.Since(start)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (overrides config)")
	return cmd
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the document cache",
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached documents older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("older-than") {
				olderThan = a.cfg.Cache.RetainFor
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			purged, err := store.PurgeEntries(time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s documents\n", humanize.Comma(purged))
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "Age after which documents are purged (default cache.retainFor)")
	cmd.AddCommand(purge)
	return cmd
}
