package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/cache"
	"github.com/microsoft/evallabel/internal/session"
	"github.com/microsoft/evallabel/internal/webapi"
	"github.com/microsoft/evallabel/internal/webserver"
)

type serveOptions struct {
	host        string
	port        int
	open        bool
	journalDir  string
	idleTimeout time.Duration
	origins     []string
}

func newServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the labelling web app",
		Long: `Start the labelling web app.

The labelling page is served at / and the analytics page, for users with
the data scientist role, at /analytics. Login is available when the users
config named by storage.users_config exists in storage; without it the app
runs anonymously and results are not saved automatically.

Use --journal to record an NDJSON activity journal that "evallabel journal"
can display.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv, shutdown, err := newServer(ctx, p, opts)
			if err != nil {
				return err
			}
			defer shutdown()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "127.0.0.1", "Address to bind to")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (default from server.port)")
	cmd.Flags().BoolVar(&opts.open, "open", false, "Open the labelling page in a browser")
	cmd.Flags().StringVar(&opts.journalDir, "journal", "", "Directory for the activity journal (disabled when empty)")
	cmd.Flags().DurationVar(&opts.idleTimeout, "idle-timeout", session.DefaultIdleTimeout, "Drop browser sessions idle for this long")
	cmd.Flags().StringSliceVar(&opts.origins, "allow-origin", nil, "Allow cross-origin API calls from these origins")

	return cmd
}

// newServer wires every service behind the web app. The returned shutdown
// func drains pending background saves and closes the journal.
func newServer(ctx context.Context, p *project, opts serveOptions) (*webserver.Server, func(), error) {
	journal := session.Discard
	if opts.journalDir != "" {
		jl, err := session.OpenJournal(session.DefaultJournalPath(opts.journalDir))
		if err != nil {
			return nil, nil, err
		}
		p.logger.Info("activity journal enabled", "path", jl.Path())
		journal = jl
	}

	users, err := p.loginService(ctx)
	if err != nil {
		journal.Close() //nolint:errcheck
		return nil, nil, err
	}
	if users == nil {
		p.logger.Warn("users config not found, login disabled", "path", p.cfg.Storage.UsersConfig)
	}

	dispatcher := blobstore.NewDispatcher(p.cfg.Labelling.DispatchQueue, p.logger)

	port := opts.port
	if port == 0 {
		port = p.cfg.Server.Port
	}

	api := webapi.Config{
		Sessions: session.NewManager(session.ManagerConfig{
			IdleTimeout: opts.idleTimeout,
			Logger:      p.logger,
			Journal:     journal,
		}),
		Results: p.results(dispatcher),
		Users:   users,
		Loader:  p.loader(),
		Cache:   cache.New(p.cfg.Analysis.CacheTTL),
		Project: p.cfg,
		Logger:  p.logger,
	}

	srv, err := webserver.New(webserver.Config{
		Host:           opts.host,
		Port:           port,
		OpenBrowser:    opts.open,
		AllowedOrigins: opts.origins,
		API:            api,
		Logger:         p.logger,
	})
	shutdown := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			p.logger.Error("pending saves were not written", "error", err)
		}
		journal.Close() //nolint:errcheck
	}
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return srv, shutdown, nil
}
