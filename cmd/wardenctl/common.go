package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/authtoken"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/internal/version"
)

// resolveServer returns the daemon address to dial: the --server flag if
// set, otherwise whatever a live runtime file reports.
func resolveServer() (string, error) {
	if serverAddr != "" {
		return serverAddr, nil
	}
	info, err := daemon.GetAnyRunningDaemon()
	if err != nil {
		return "", fmt.Errorf("no --server given and no running daemon found: %w", err)
	}
	if !daemon.IsDaemonAlive(info.Addr) {
		return "", fmt.Errorf("daemon at %s is not responding; run 'wardenctl serve' or pass --server", info.Addr)
	}
	return info.Addr, nil
}

// resolveToken returns the bearer token to authenticate with: the --token
// flag if set, otherwise the on-disk token file.
func resolveToken() (string, error) {
	if tokenFlag != "" {
		return tokenFlag, nil
	}
	path := authtoken.DefaultPath(config.DataDir())
	token, err := authtoken.Load(path)
	if err != nil {
		return "", fmt.Errorf("no --token given and no token file at %s: %w", path, err)
	}
	return token, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print wardenctl's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(os.Stdout, "wardenctl %s\n", version.Version)
			return nil
		},
	}
}
