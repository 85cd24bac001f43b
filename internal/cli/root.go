package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var serverURL string

var rootCmd = &cobra.Command{
	Use:     "forensicsctl",
	Short:   "Command-line client for the forensivid evidence server",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if serverURL == "" {
			serverURL = os.Getenv("FORENSIVID_SERVER")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

// Execute runs the root command with a signal-aware context so a
// Ctrl+C during a long poll exits cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Base URL of the evidence server (default: http://localhost:8080)")
}
