package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/session"
)

func newJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "View labelling activity journals",
		Long: `View labelling activity journals.

Journals are NDJSON files written by "evallabel serve --journal <dir>". They
record logins, file loads, form submissions, snapshot saves and errors.`,
	}

	cmd.AddCommand(newJournalListCommand())
	cmd.AddCommand(newJournalViewCommand())
	cmd.AddCommand(newJournalSummaryCommand())

	return cmd
}

func newJournalListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded journals",
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files, err := session.ListJournals(absDir)
			if err != nil {
				return fmt.Errorf("listing journals: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(w, "No journals found.")
				return nil
			}

			fmt.Fprintf(w, "%-40s %-8s %s\n", "File", "Events", "Modified")
			fmt.Fprintln(w, "─────────────────────────────────────────────────────────────────")
			for _, f := range files {
				fmt.Fprintf(w, "%-40s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to search for journals")

	return cmd
}

func newJournalViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <journal-file>",
		Short: "View a journal timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading journal: %w", err)
			}

			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}
}

func newJournalSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <journal-file>",
		Short: "Summarise a journal per user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading journal: %w", err)
			}
			return analysis.WriteMarkdown(cmd.OutOrStdout(), activityTable(session.Summarize(events)))
		},
	}
}

func activityTable(acts []session.Activity) analysis.Table {
	t := analysis.Table{Headers: []string{"User", "Files", "Submissions", "Saves", "Errors"}}
	for _, a := range acts {
		user := a.User
		if user == "" {
			user = "(anonymous)"
		}
		forms := make([]string, 0, len(a.Submissions))
		for form, n := range a.Submissions {
			forms = append(forms, fmt.Sprintf("%s=%d", form, n))
		}
		sort.Strings(forms)
		t.Rows = append(t.Rows, []string{
			user,
			fmt.Sprint(a.Files),
			strings.Join(forms, " "),
			fmt.Sprint(a.Saves),
			fmt.Sprint(a.Errors),
		})
	}
	return t
}
