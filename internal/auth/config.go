// Package auth manages the users config document: login, registration,
// roles and the signed login cookie.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/microsoft/evallabel/internal/validation"
)

var (
	ErrInvalidConfig      = errors.New("invalid users config")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password does not meet criteria")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidUser        = errors.New("invalid registration")
)

// Messages shown on the login form.
const (
	MsgLoginFailed = "Username/password is incorrect"
	MsgLoginPrompt = "Please enter your username and password"
	MsgRegistered  = "User registered successfully"
	MsgLoginToSave = "Please login to enable automatic saving of the results in progress"
	MsgWelcomeFmt  = "Welcome *%s*"
)

// User is one entry under credentials.usernames. Keys this package does not
// know about survive a load/save round trip.
type User struct {
	Email         string         `yaml:"email,omitempty"`
	Name          string         `yaml:"name,omitempty"`
	Password      string         `yaml:"password"`
	DataScientist bool           `yaml:"data_scientist,omitempty"`
	Extra         map[string]any `yaml:",inline"`
}

// Credentials holds the registered users.
type Credentials struct {
	Usernames map[string]*User `yaml:"usernames"`
}

// Cookie configures the login cookie.
type Cookie struct {
	Name       string  `yaml:"name"`
	Key        string  `yaml:"key"`
	ExpiryDays float64 `yaml:"expiry_days"`
}

// Config is the users config document.
type Config struct {
	Credentials Credentials    `yaml:"credentials"`
	Cookie      Cookie         `yaml:"cookie"`
	Extra       map[string]any `yaml:",inline"`
}

// ParseConfig validates and decodes a users config document.
func ParseConfig(data []byte) (*Config, error) {
	if errs := validation.ValidateUsersBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Credentials.Usernames == nil {
		cfg.Credentials.Usernames = map[string]*User{}
	}
	return &cfg, nil
}

// Marshal encodes c back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding users config: %w", err)
	}
	return data, nil
}

// User returns the named user.
func (c *Config) User(username string) (*User, bool) {
	u, ok := c.Credentials.Usernames[username]
	return u, ok && u != nil
}

// Usernames returns the registered user names, sorted.
func (c *Config) Usernames() []string {
	out := make([]string, 0, len(c.Credentials.Usernames))
	for name := range c.Credentials.Usernames {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsDataScientist reports whether username may open the analytics page.
func (c *Config) IsDataScientist(username string) bool {
	u, ok := c.User(username)
	return ok && u.DataScientist
}

// Authenticate checks a password against the stored hash.
func (c *Config) Authenticate(username, password string) (*User, error) {
	u, ok := c.User(username)
	if !ok || !CheckPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
