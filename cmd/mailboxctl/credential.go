package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mailbox-poller/internal/crypto"
)

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print a new random CREDENTIAL_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, crypto.KeySize)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}
}

func newSealCmd() *cobra.Command {
	var keyFlag string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a POP3 password read from stdin for accounts.encrypted_pop3_password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := cipherFromFlagOrEnv(keyFlag)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.ErrOrStderr(), "POP3 password: ")
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			sealed, err := cipher.Encrypt(password)
			if err != nil {
				return fmt.Errorf("encrypt password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFlag, "key", "", "base64 credential key (defaults to $CREDENTIAL_KEY)")
	return cmd
}

func cipherFromFlagOrEnv(key string) (*crypto.Cipher, error) {
	if key == "" {
		key = os.Getenv("CREDENTIAL_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("no credential key: pass --key or set CREDENTIAL_KEY")
	}
	return crypto.NewCipherFromBase64(key)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty input")
	}
	return line, nil
}
