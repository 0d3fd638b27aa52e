// Package secrets resolves configuration secrets from Azure Key Vault with a
// fallback to process environment variables.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// EnvVaultEndpoint names the variable holding the Key Vault URL.
const EnvVaultEndpoint = "AZURE_KEY_VAULT_ENDPOINT"

// vaultClient is the subset of *azsecrets.Client used here.
type vaultClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Resolver looks secrets up in a vault first and in the environment second.
// After the first vault error other than "not found" the vault is skipped
// for the rest of the process lifetime.
type Resolver struct {
	vault    vaultClient
	disabled atomic.Bool
	getenv   func(string) (string, bool)
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithEnv replaces the environment lookup, mainly for tests.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) { r.getenv = lookup }
}

func withVault(v vaultClient) Option {
	return func(r *Resolver) { r.vault = v }
}

// New builds a resolver. When vaultURL is empty, or the client cannot be
// built, only the environment is consulted.
func New(vaultURL string, opts ...Option) *Resolver {
	r := &Resolver{
		getenv:  os.LookupEnv,
		logger:  slog.Default(),
		timeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	if r.vault != nil || vaultURL == "" {
		return r
	}

	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{})
	if err != nil {
		r.logger.Error("key vault credential unavailable", "error", err)
		return r
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		r.logger.Error("key vault client unavailable", "endpoint", vaultURL, "error", err)
		return r
	}
	r.vault = client
	return r
}

// VaultName maps a variable-style key to a Key Vault secret name, which may
// not contain underscores.
func VaultName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Get returns the value for key, or def when neither source has it.
func (r *Resolver) Get(ctx context.Context, key, def string) string {
	if v, ok := r.lookup(ctx, key); ok {
		return v
	}
	return def
}

// Lookup implements envconfig.Lookuper so the resolver can back struct
// based configuration.
func (r *Resolver) Lookup(key string) (string, bool) {
	return r.lookup(context.Background(), key)
}

// VaultEnabled reports whether the vault is still consulted.
func (r *Resolver) VaultEnabled() bool {
	return r.vault != nil && !r.disabled.Load()
}

func (r *Resolver) lookup(ctx context.Context, key string) (string, bool) {
	r.logger.Debug("resolving secret", "key", key)
	if r.VaultEnabled() {
		v, err := r.fromVault(ctx, key)
		switch {
		case err == nil:
			r.logger.Info("secret resolved from key vault", "key", key)
			return v, true
		case isNotFound(err):
			r.logger.Warn("secret not found in key vault", "key", key)
		default:
			r.logger.Error("key vault lookup failed, disabling vault", "key", key, "error", err)
			r.disabled.Store(true)
		}
	}
	return r.getenv(key)
}

func (r *Resolver) fromVault(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.vault.GetSecret(ctx, VaultName(key), "", nil)
	if err != nil {
		return "", err
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %s has no value", key)
	}
	return *resp.Value, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
