package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mailbox-poller/internal/config"
	"mailbox-poller/internal/mailbox"
	"mailbox-poller/internal/notifier"
)

// newProbeCmd logs into one mailbox with the configured POP3 settings and
// lists what a polling run would see. Nothing is recorded or notified.
func newProbeCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fetch the most recent messages of one mailbox without recording them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.ErrOrStderr(), "POP3 password: ")
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}

			client := mailbox.NewClient(mailbox.Config{
				Host:              cfg.POP3.Host,
				Port:              cfg.POP3.Port,
				TLS:               cfg.POP3.TLS,
				MaxFetch:          cfg.POP3.MaxFetch,
				ConnectionTimeout: cfg.POP3.ConnectionTimeout(),
				ReadTimeout:       cfg.POP3.ReadTimeout(),
			})
			messages, err := client.FetchRecent(context.Background(), email, password)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECEIVED\tSIZE\tFROM\tSUBJECT\tMESSAGE-ID")
			for _, msg := range messages {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					msg.ReceivedAt.Format("2006-01-02 15:04"),
					notifier.FormatSize(msg.Size),
					msg.From, msg.Subject, msg.MessageID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "mailbox login")
	cmd.MarkFlagRequired("email")
	return cmd
}
