package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/microsoft/evallabel/internal/webapi"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evallabel",
		Short: "evallabel - human labelling of model evaluation results",
		Long: `evallabel serves a web app where labellers grade model answers
(quality, errors, missing ground truth) and data scientists analyse the
collected labels.

Source files and labelling snapshots live in blob storage selected by
.evallabel.yaml or EVALLABEL_STORAGE.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().String("dir", ".", "Directory to search for .evallabel.yaml")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newAnalyzeCommand())
	cmd.AddCommand(newFilesCommand())
	cmd.AddCommand(newUsersCommand())
	cmd.AddCommand(newJournalCommand())
	cmd.AddCommand(newCheckCommand())

	return cmd
}

func execute() error {
	webapi.Version = version
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
