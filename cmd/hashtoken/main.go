package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"media-manager/internal/auth"
)

// minSecretLength applies to typed secrets; generated ones are longer.
const minSecretLength = 12

// readSecret prompts for the secret twice without echo.
var readSecret = func(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return secret, err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		perms      []string
		superAdmin bool
		generate   bool
	)
	cmd := &cobra.Command{
		Use:           "hashtoken <user>",
		Short:         "Create a token store entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := auth.Principal{User: args[0], Permissions: perms, SuperAdmin: superAdmin}
			if err := validateUser(p.User); err != nil {
				return err
			}

			var secret string
			if generate {
				var err error
				if secret, err = auth.NewSecret(); err != nil {
					return err
				}
			} else {
				typed, err := promptSecret()
				if err != nil {
					return err
				}
				secret = typed
			}

			entry, err := buildEntry(p, secret)
			if err != nil {
				return err
			}
			return printEntry(cmd.OutOrStdout(), cmd.ErrOrStderr(), entry, p.User, secret, generate)
		},
	}
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "Grant a permission, optionally scoped as perm:storage (repeatable)")
	cmd.Flags().BoolVar(&superAdmin, "superadmin", false, "Grant every permission, including rebuilds")
	cmd.Flags().BoolVar(&generate, "generate", false, "Generate a random secret instead of prompting")
	return cmd
}

func validateUser(user string) error {
	switch {
	case user == "":
		return errors.New("user name must not be empty")
	case strings.ContainsAny(user, ". \t"):
		return fmt.Errorf("user name %q must not contain dots or spaces", user)
	}
	return nil
}

func promptSecret() (string, error) {
	secret, err := readSecret("Secret: ")
	if err != nil {
		return "", fmt.Errorf("error reading secret: %w", err)
	}
	confirm, err := readSecret("Confirm secret: ")
	if err != nil {
		return "", fmt.Errorf("error reading secret: %w", err)
	}
	if !bytes.Equal(secret, confirm) {
		return "", errors.New("secrets do not match")
	}
	if len(secret) < minSecretLength {
		return "", fmt.Errorf("secret must be at least %d characters", minSecretLength)
	}
	return string(secret), nil
}

// buildEntry hashes secret and checks that the result loads as a store.
func buildEntry(p auth.Principal, secret string) (auth.Entry, error) {
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return auth.Entry{}, err
	}
	entry := auth.Entry{Principal: p, Hash: hash}
	if _, err := auth.NewTokenStore([]auth.Entry{entry}); err != nil {
		return auth.Entry{}, err
	}
	return entry, nil
}

func printEntry(out, errOut io.Writer, entry auth.Entry, user, secret string, generated bool) error {
	data, err := yaml.Marshal([]auth.Entry{entry})
	if err != nil {
		return err
	}
	fmt.Fprintln(errOut, "# Append under \"tokens:\" in the token store file:")
	if _, err := out.Write(data); err != nil {
		return err
	}
	if generated {
		fmt.Fprintf(errOut, "# Bearer token (shown once): %s.%s\n", user, secret)
	}
	return nil
}
