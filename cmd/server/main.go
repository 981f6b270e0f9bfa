package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags; config values override them when non-empty.
var (
	commit    = ""
	buildTime = ""
)

func newRootCommand() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "wellbeing",
		Short:        "Wellbeing assessment API server",
		Long:         "Serves the wellbeing questionnaire, scoring, assessment flow and history API.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file or directory holding config.yaml")

	cmd.AddCommand(newServeCommand(&cfgPath))
	cmd.AddCommand(newMigrateCommand(&cfgPath))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
