package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/authtoken"
	"github.com/wardenhq/warden/internal/config"
)

// tokenCmd is a SPEC_FULL supplement: spec.md treats the token file as an
// external collaborator, but a daemon with no way to print or rotate its
// own credential without shell-scripting `cat`/`openssl rand` is an
// incomplete operator surface, so wardenctl gets show/new subcommands.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or rotate the daemon's bearer token",
	}
	cmd.AddCommand(tokenShowCmd())
	cmd.AddCommand(tokenNewCmd())
	return cmd
}

func tokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current token's fingerprint (never the token itself)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := authtoken.DefaultPath(config.DataDir())
			token, err := authtoken.Load(path)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			fmt.Println(authtoken.Fingerprint(token))
			return nil
		},
	}
}

func tokenNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Generate and persist a fresh token",
		Long:  "Generate and persist a fresh token. A running daemon must be restarted to pick it up; existing sessions are unaffected until they reconnect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := authtoken.DefaultPath(config.DataDir())
			token, err := authtoken.Generate()
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			if err := authtoken.Save(path, token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Printf("new token fingerprint: %s\n", authtoken.Fingerprint(token))
			fmt.Println(token)
			return nil
		},
	}
}
