// Package wizard collects a new user's registration interactively.
package wizard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/microsoft/evallabel/internal/auth"
)

// RunUserWizard runs an interactive huh form to collect a registration.
// If initialName is non-empty, it pre-populates the username field.
func RunUserWizard(in io.Reader, out io.Writer, initialName string) (*auth.Registration, error) {
	var (
		username      = initialName
		name          string
		email         string
		password      string
		repeat        string
		dataScientist bool
	)

	// Piped input has no terminal to hide the password on, and huh scans
	// every accessible field with its own buffer.
	echo := huh.EchoModePassword
	f, ok := in.(*os.File)
	tty := ok && term.IsTerminal(int(f.Fd()))
	if !tty {
		echo = huh.EchoModeNormal
		in = &lineReader{r: bufio.NewReader(in)}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Used to log in and to name saved results").
				Placeholder("jdoe").
				Value(&username).
				Validate(required("username")),
			huh.NewInput().
				Title("Name").
				Value(&name).
				Validate(required("name")),
			huh.NewInput().
				Title("Email").
				Placeholder("jdoe@example.com").
				Value(&email).
				Validate(required("email")),
			huh.NewInput().
				Title("Password").
				Description("8-20 characters with lower and upper case letters, a digit and one of "+auth.PasswordSpecials).
				EchoMode(echo).
				Value(&password).
				Validate(auth.ValidatePassword),
			huh.NewInput().
				Title("Repeat password").
				EchoMode(echo).
				Value(&repeat),
			huh.NewConfirm().
				Title("Grant access to the analytics page?").
				Value(&dataScientist),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if !tty {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	reg := &auth.Registration{
		Username:       strings.TrimSpace(username),
		Name:           strings.TrimSpace(name),
		Email:          strings.TrimSpace(email),
		Password:       password,
		RepeatPassword: repeat,
		DataScientist:  dataScientist,
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

// lineReader returns at most one line per Read so that each prompt only
// consumes its own answer.
type lineReader struct {
	r *bufio.Reader
}

func (l *lineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}
