package projectconfig

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Env holds the settings that come from the process environment (or a
// secret store standing in for it).
type Env struct {
	ContainerName    string `env:"AZURE_STORAGE_CONTAINER_NAME"`
	ConnectionString string `env:"AZURE_STORAGE_CONNECTION_STRING"`
	VaultEndpoint    string `env:"AZURE_KEY_VAULT_ENDPOINT"`

	Storage string `env:"EVALLABEL_STORAGE"`
	Port    int    `env:"EVALLABEL_PORT"`
}

// LoadEnv resolves Env through lookuper. A nil lookuper reads the OS
// environment.
func LoadEnv(ctx context.Context, lookuper envconfig.Lookuper) (*Env, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	return &env, nil
}

// ApplyEnv overlays the environment onto c. Environment values win over the
// file.
func (c *ProjectConfig) ApplyEnv(env *Env) {
	if env == nil {
		return
	}
	if env.Storage != "" {
		c.Storage.Backend = env.Storage
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
}
