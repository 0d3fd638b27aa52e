package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/microsoft/evallabel/internal/blobstore"
)

func TestMain(m *testing.M) {
	HashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func hash(t *testing.T, p string) string {
	t.Helper()
	h, err := HashPassword(p)
	require.NoError(t, err)
	return h
}

func usersYAML(t *testing.T) string {
	return `credentials:
  usernames:
    alice:
      email: alice@example.com
      name: Alice
      password: ` + hash(t, "Secret1!") + `
      data_scientist: true
      failed_login_attempts: 0
    bob:
      email: bob@example.com
      name: Bob
      password: ` + hash(t, "Hunter2$x") + `
cookie:
  expiry_days: 30
  key: signature
  name: evallabel_auth
preauthorized:
  emails: []
`
}

func TestParseConfigAndRoles(t *testing.T) {
	cfg, err := ParseConfig([]byte(usersYAML(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, cfg.Usernames())
	assert.True(t, cfg.IsDataScientist("alice"))
	assert.False(t, cfg.IsDataScientist("bob"))
	assert.False(t, cfg.IsDataScientist("nobody"))
	assert.Equal(t, "evallabel_auth", cfg.Cookie.Name)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("cookie: {}\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRoundTripKeepsUnknownKeys(t *testing.T) {
	cfg, err := ParseConfig([]byte(usersYAML(t)))
	require.NoError(t, err)
	data, err := cfg.Marshal()
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "failed_login_attempts: 0")
	assert.Contains(t, out, "preauthorized:")
	assert.Contains(t, out, "data_scientist: true")

	again, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Usernames(), again.Usernames())
}

func TestAuthenticate(t *testing.T) {
	cfg, err := ParseConfig([]byte(usersYAML(t)))
	require.NoError(t, err)

	u, err := cfg.Authenticate("alice", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = cfg.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = cfg.Authenticate("carol", "Secret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"Secret1!", true},
		{"Abcdefg1@", true},
		{"Sh0rt!", false},
		{"alllower1!", false},
		{"ALLUPPER1!", false},
		{"NoDigits!!", false},
		{"NoSpecial11", false},
		{"Bad#Special1", false},
		{"Waytoolongpassword1!!", false},
		{"Twentycharslong1234!", true},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrWeakPassword)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	cfg := NewConfig()
	reg := Registration{Username: "carol", Name: "Carol", Email: "carol@example.com", Password: "Secret1!", RepeatPassword: "Secret1!"}
	require.NoError(t, cfg.Register(reg))

	_, err := cfg.Authenticate("carol", "Secret1!")
	assert.NoError(t, err)
	assert.ErrorIs(t, cfg.Register(reg), ErrUserExists)

	bad := reg
	bad.Username = "dave"
	bad.RepeatPassword = "Other1!x"
	assert.ErrorIs(t, cfg.Register(bad), ErrPasswordMismatch)

	bad = reg
	bad.Username = "dave"
	bad.Email = "not-an-email"
	assert.ErrorIs(t, cfg.Register(bad), ErrInvalidUser)

	bad = reg
	bad.Username = "dave"
	bad.Password, bad.RepeatPassword = "weak", "weak"
	assert.ErrorIs(t, cfg.Register(bad), ErrWeakPassword)
}

func TestServiceRegisterWritesBack(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	svc := NewService(store, "config.yaml", nil)

	_, err := svc.Config(ctx)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	reg := Registration{Username: "carol", Name: "Carol", Email: "carol@example.com", Password: "Secret1!", RepeatPassword: "Secret1!", DataScientist: true}
	assert.ErrorIs(t, svc.Register(ctx, reg, false), blobstore.ErrNotFound)
	require.NoError(t, svc.Register(ctx, reg, true))

	data, err := store.Get(ctx, "config.yaml")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "carol:"))

	svc.Reload()
	u, err := svc.Login(ctx, "carol", "Secret1!")
	require.NoError(t, err)
	assert.True(t, u.DataScientist)
}

func TestSignerIssueAndVerify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSigner(Cookie{Name: "evallabel_auth", Key: "signature", ExpiryDays: 1})
	s.now = func() time.Time { return now }

	c, err := s.Issue("alice")
	require.NoError(t, err)
	assert.True(t, c.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	user, err := s.Verify(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	// Expired.
	now = now.Add(25 * time.Hour)
	_, err = s.Verify(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSignerRejectsForeignKey(t *testing.T) {
	a := NewSigner(Cookie{Name: "n", Key: "one", ExpiryDays: 1})
	b := NewSigner(Cookie{Name: "n", Key: "two", ExpiryDays: 1})

	c, err := a.Issue("alice")
	require.NoError(t, err)
	_, err = b.Parse(c.Value)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = b.Verify(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)
}
