package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/microsoft/evallabel/internal/blobstore"
)

// Defaults of a freshly created users config.
const (
	DefaultCookieName = "evallabel_auth"
	DefaultExpiryDays = 30
)

// NewConfig returns an empty users config with a random cookie key.
func NewConfig() *Config {
	return &Config{
		Credentials: Credentials{Usernames: map[string]*User{}},
		Cookie: Cookie{
			Name:       DefaultCookieName,
			Key:        rand.Text(),
			ExpiryDays: DefaultExpiryDays,
		},
	}
}

// Service keeps the users config in blob storage.
type Service struct {
	store  blobstore.Store
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	cached *Config
}

// NewService builds a Service for the config blob at path.
func NewService(store blobstore.Store, path string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, path: path, logger: logger}
}

// Path returns the blob the config lives in.
func (s *Service) Path() string { return s.path }

// Config returns the users config, downloading it on first use. A missing
// blob yields an error wrapping blobstore.ErrNotFound; the caller then runs
// without login.
func (s *Service) Config(ctx context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}
	cfg, err := s.download(ctx)
	if err != nil {
		return nil, err
	}
	s.cached = cfg
	return cfg, nil
}

// Reload drops the cached config.
func (s *Service) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

func (s *Service) download(ctx context.Context) (*Config, error) {
	data, err := s.store.Get(ctx, s.path)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Error("could not download users config", "path", s.path, "error", err)
		}
		return nil, fmt.Errorf("downloading users config %s: %w", s.path, err)
	}
	return ParseConfig(data)
}

// Login authenticates username against the current config.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Authenticate(username, password)
}

// Register adds a user and writes the config back to storage. The config is
// downloaded afresh so that concurrent registrations from other processes
// are not overwritten. When create is set and no config exists yet, a new
// one is started.
func (s *Service) Register(ctx context.Context, r Registration, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.download(ctx)
	if err != nil {
		if !create || !errors.Is(err, blobstore.ErrNotFound) {
			return err
		}
		cfg = NewConfig()
	}
	if err := cfg.Register(r); err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.path, data, true); err != nil {
		return fmt.Errorf("uploading users config %s: %w", s.path, err)
	}
	s.cached = cfg
	s.logger.Info("user registered", "user", r.Username, "data_scientist", r.DataScientist)
	return nil
}
