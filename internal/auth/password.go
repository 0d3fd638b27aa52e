package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"
)

// PasswordSpecials are the special characters a password must draw from.
const PasswordSpecials = "@$!%*?&"

// Length bounds of a password.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 20
)

// PasswordCriteria is shown after a rejected registration.
const PasswordCriteria = `Password needs to meet the following criteria:

- It contains at least one lowercase letter.
- It contains at least one uppercase letter.
- It contains at least one digit.
- It contains at least one special character from the set @$!%*?&.
- It has a length between 8 and 20 characters.`

// HashCost is the bcrypt cost of new password hashes.
var HashCost = bcrypt.DefaultCost

// ValidatePassword enforces PasswordCriteria. Characters outside letters,
// digits and PasswordSpecials are rejected.
func ValidatePassword(p string) error {
	var lower, upper, digit, special bool
	n := 0
	for _, r := range p {
		n++
		switch {
		case unicode.IsLower(r) && r < unicode.MaxASCII:
			lower = true
		case unicode.IsUpper(r) && r < unicode.MaxASCII:
			upper = true
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digit = true
		case strings.ContainsRune(PasswordSpecials, r):
			special = true
		default:
			return ErrWeakPassword
		}
	}
	if !lower || !upper || !digit || !special || n < MinPasswordLength || n > MaxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword returns the bcrypt hash of p.
func HashPassword(p string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(p), HashCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether p matches hash.
func CheckPassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// Registration is the register form.
type Registration struct {
	Username       string
	Name           string
	Email          string
	Password       string
	RepeatPassword string
	DataScientist  bool
}

// Validate checks the fields that do not depend on the existing users.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.ContainsAny(r.Username, " \t\n/") {
		return fmt.Errorf("%w: username", ErrInvalidUser)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name", ErrInvalidUser)
	}
	if !govalidator.IsEmail(r.Email) {
		return fmt.Errorf("%w: email", ErrInvalidUser)
	}
	if r.Password != r.RepeatPassword {
		return ErrPasswordMismatch
	}
	return ValidatePassword(r.Password)
}

// Register adds the user described by r to c.
func (c *Config) Register(r Registration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := c.User(r.Username); ok {
		return fmt.Errorf("%w: %s", ErrUserExists, r.Username)
	}
	hash, err := HashPassword(r.Password)
	if err != nil {
		return err
	}
	if c.Credentials.Usernames == nil {
		c.Credentials.Usernames = map[string]*User{}
	}
	c.Credentials.Usernames[r.Username] = &User{
		Email:         r.Email,
		Name:          r.Name,
		Password:      hash,
		DataScientist: r.DataScientist,
	}
	return nil
}
