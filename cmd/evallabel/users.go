package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/wizard"
)

func newUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the users allowed to log in",
		Long: `Manage the users config stored at storage.users_config.

Users registered here may be granted the data scientist role, which opens
the analytics page. Registrations from the web app never are.`,
	}

	cmd.AddCommand(newUsersAddCommand())
	cmd.AddCommand(newUsersListCommand())

	return cmd
}

func newUsersAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add [username]",
		Short: "Register a user interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var initial string
			if len(args) == 1 {
				initial = args[0]
			}

			p, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			reg, err := wizard.RunUserWizard(cmd.InOrStdin(), cmd.OutOrStdout(), initial)
			if err != nil {
				return err
			}
			if err := p.users().Register(cmd.Context(), *reg, true); err != nil {
				if errors.Is(err, auth.ErrWeakPassword) {
					return fmt.Errorf("%w\n\n%s", err, auth.PasswordCriteria)
				}
				return fmt.Errorf("registering %s: %w", reg.Username, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", auth.MsgRegistered, reg.Username) //nolint:errcheck
			return nil
		},
	}
}

func newUsersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			users, err := p.loginService(cmd.Context())
			if err != nil {
				return err
			}
			if users == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No users config found at %s.\n", p.cfg.Storage.UsersConfig) //nolint:errcheck
				return nil
			}
			cfg, err := users.Config(cmd.Context())
			if err != nil {
				return err
			}
			return analysis.WriteMarkdown(cmd.OutOrStdout(), usersTable(cfg))
		},
	}
}

func usersTable(cfg *auth.Config) analysis.Table {
	t := analysis.Table{Headers: []string{"Username", "Name", "Email", "Role"}}
	for _, name := range cfg.Usernames() {
		u, _ := cfg.User(name)
		role := "labeller"
		if u.DataScientist {
			role = labels.RoleDataScientist
		}
		t.Rows = append(t.Rows, []string{name, u.Name, u.Email, role})
	}
	return t
}
