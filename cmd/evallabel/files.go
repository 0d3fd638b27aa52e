package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/naming"
)

const fileColumnWidth = 48

func newFilesCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List source files and saved labelling snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			svc := p.results(nil)
			sources, err := svc.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			saved, err := svc.ListSaved(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			writeSources(w, sources)
			writeSaved(w, saved, user)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Only list snapshots saved by this user")

	return cmd
}

//nolint:errcheck // display-only writes
func writeSources(w io.Writer, sources []string) {
	fmt.Fprintf(w, "Source files (%d)\n", len(sources))
	fmt.Fprintln(w, strings.Repeat("─", fileColumnWidth))
	for _, s := range sources {
		fmt.Fprintln(w, runewidth.Truncate(s, fileColumnWidth, "…"))
	}
	fmt.Fprintln(w)
}

//nolint:errcheck // display-only writes
func writeSaved(w io.Writer, saved []string, user string) {
	var rows []naming.Name
	var paths []string
	for _, s := range saved {
		n := naming.Parse(s)
		if user != "" && n.UserName != user {
			continue
		}
		rows = append(rows, n)
		paths = append(paths, s)
	}

	fmt.Fprintf(w, "Saved snapshots (%d)\n", len(rows))
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "%s %-20s %-16s %s\n", column("File", fileColumnWidth), "Run", "User", "Saved")
	fmt.Fprintln(w, strings.Repeat("─", fileColumnWidth+60))
	for i, n := range rows {
		when := "-"
		if !n.Timestamp.IsZero() {
			when = n.Timestamp.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			column(paths[i], fileColumnWidth), column(n.RunID, 20), column(n.UserName, 16), when)
	}
}

// column truncates s to width display cells and pads it to exactly width.
func column(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}
