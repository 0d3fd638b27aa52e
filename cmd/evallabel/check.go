package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/projectconfig"
	"github.com/microsoft/evallabel/internal/validation"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the project config and the users config",
		Long: `Validate .evallabel.yaml in --dir against its schema, then download the
users config from storage and validate it too. A missing users config is
reported but is not an error: the app then runs without login.

Exits with status 1 when a document does not validate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			problems := checkProjectFile(w, filepath.Join(dir, projectconfig.FileName))
			if problems > 0 {
				return &CheckFailedError{Message: fmt.Sprintf("%s has %d problem(s)", projectconfig.FileName, problems)}
			}

			p, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			path := p.cfg.Storage.UsersConfig
			data, err := p.store.Get(cmd.Context(), path)
			if errors.Is(err, blobstore.ErrNotFound) {
				fmt.Fprintf(w, "- %s not found in storage, login disabled\n", path) //nolint:errcheck
				return nil
			}
			if err != nil {
				return fmt.Errorf("downloading users config %s: %w", path, err)
			}
			if problems := reportProblems(w, path, usersProblems(data)); problems > 0 {
				return &CheckFailedError{Message: fmt.Sprintf("%s has %d problem(s)", path, problems)}
			}
			return nil
		},
	}
}

// checkProjectFile validates the project config at path. A missing file
// is fine: defaults apply.
func checkProjectFile(w io.Writer, path string) int {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "- %s not found, using defaults\n", projectconfig.FileName) //nolint:errcheck
		return 0
	}
	errs, err := validation.ValidateProjectFile(path)
	if err != nil {
		errs = []string{err.Error()}
	}
	return reportProblems(w, path, errs)
}

// usersProblems validates the users config against its schema and then
// parses it, so that semantic errors are reported too.
func usersProblems(data []byte) []string {
	if errs := validation.ValidateUsersBytes(data); len(errs) > 0 {
		return errs
	}
	if _, err := auth.ParseConfig(data); err != nil {
		return []string{err.Error()}
	}
	return nil
}

//nolint:errcheck // display-only writes
func reportProblems(w io.Writer, name string, errs []string) int {
	if len(errs) == 0 {
		fmt.Fprintf(w, "✓ %s is valid\n", name)
		return 0
	}
	fmt.Fprintf(w, "✗ %s\n", name)
	for _, e := range errs {
		fmt.Fprintf(w, "    %s\n", e)
	}
	return len(errs)
}
