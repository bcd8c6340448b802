// Command mailboxctl holds operator utilities for the mailbox poller:
// credential sealing, POP3 probing and the Gmail consent flow.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:           "mailboxctl",
	Short:         "Operator utilities for the mailbox poller",
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newGenKeyCmd())
	rootCmd.AddCommand(newSealCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newGmailTokenCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
