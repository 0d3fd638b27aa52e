package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/projectconfig"
	"github.com/microsoft/evallabel/internal/results"
	"github.com/microsoft/evallabel/internal/secrets"
)

// project bundles the resolved configuration and the opened storage backend
// shared by every command.
type project struct {
	cfg     *projectconfig.ProjectConfig
	backend blobstore.Backend
	store   blobstore.Store
	logger  *slog.Logger
}

// openProject loads .evallabel.yaml from the --dir flag, overlays the
// environment (secrets come from Key Vault when AZURE_KEY_VAULT_ENDPOINT is
// set) and opens the configured storage backend.
func openProject(cmd *cobra.Command) (*project, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	return loadProject(cmd.Context(), dir)
}

func loadProject(ctx context.Context, dir string) (*project, error) {
	logger := slog.Default()

	cfg, err := projectconfig.Load(dir)
	if err != nil {
		return nil, err
	}

	resolver := secrets.New(os.Getenv(secrets.EnvVaultEndpoint), secrets.WithLogger(logger))
	env, err := projectconfig.LoadEnv(ctx, resolver)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(env)

	backend, err := blobstore.Open(ctx, cfg.Storage.Backend, blobstore.AzureConfig{
		ContainerName:    env.ContainerName,
		ConnectionString: env.ConnectionString,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage %q: %w", cfg.Storage.Backend, err)
	}
	logger.Debug("storage opened", "backend", cfg.Storage.Backend, "vault", resolver.VaultEnabled())

	return &project{
		cfg:     cfg,
		backend: backend,
		store:   blobstore.Instrument(backend, logger),
		logger:  logger,
	}, nil
}

func (p *project) Close() error {
	return p.backend.Close()
}

func (p *project) results(d *blobstore.Dispatcher) *results.Service {
	return results.New(results.Config{
		Store:         p.store,
		Dispatcher:    d,
		ResultsFolder: p.cfg.Storage.ResultsFolder,
		Logger:        p.logger,
	})
}

func (p *project) loader() *analysis.Loader {
	return analysis.NewLoader(analysis.LoaderConfig{
		Store:         p.store,
		Folder:        p.cfg.Storage.ResultsFolder,
		VarianceCheck: p.cfg.VarianceCheckEnabled(),
		Threshold:     p.cfg.Analysis.LowVarianceThreshold,
		Logger:        p.logger,
	})
}

func (p *project) users() *auth.Service {
	return auth.NewService(p.store, p.cfg.Storage.UsersConfig, p.logger)
}

// loginService returns the users service, or nil when the users config does
// not exist yet.
func (p *project) loginService(ctx context.Context) (*auth.Service, error) {
	users := p.users()
	if _, err := users.Config(ctx); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading users config: %w", err)
	}
	return users, nil
}
