package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// newGmailTokenCmd runs the OAuth2 consent flow once and prints the refresh
// token the Gmail notifier needs.
func newGmailTokenCmd() *cobra.Command {
	var redirectURL string
	cmd := &cobra.Command{
		Use:   "gmail-token",
		Short: "Obtain a Gmail refresh token for NOTIFIER_TYPE=gmail",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := os.Getenv("GMAIL_CLIENT_ID")
			clientSecret := os.Getenv("GMAIL_CLIENT_SECRET")
			if clientID == "" || clientSecret == "" {
				return fmt.Errorf("please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET environment variables")
			}

			config := &oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scopes:       []string{gmail.GmailSendScope},
				Endpoint:     google.Endpoint,
				RedirectURL:  redirectURL,
			}

			out := cmd.OutOrStdout()
			authURL := config.AuthCodeURL("mailbox-poller", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Fprintf(out, "Open this link and approve the send-only scope:\n%v\n", authURL)

			fmt.Fprint(cmd.ErrOrStderr(), "\nPaste the 'code' parameter from the redirect: ")
			authCode, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}

			tok, err := config.Exchange(context.Background(), authCode)
			if err != nil {
				return fmt.Errorf("unable to exchange authorization code: %w", err)
			}
			if tok.RefreshToken == "" {
				return fmt.Errorf("no refresh token returned; revoke the app's access and try again")
			}

			fmt.Fprintln(out, "\nConfigure the notifier with:")
			fmt.Fprintln(out, "export NOTIFIER_TYPE=gmail")
			fmt.Fprintf(out, "export GMAIL_REFRESH_TOKEN=%q\n", tok.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "http://localhost:8080/callback", "OAuth2 redirect URL registered for the client")
	return cmd
}
