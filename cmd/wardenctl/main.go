package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	tokenFlag  string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wardenctl",
		Short: "Control and inspect a warden daemon",
		Long:  "wardenctl drives a wardend sandbox daemon: run it in the foreground, call its tools, inspect pending approvals, and query the audit log.",
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "daemon address (default: discovered from the runtime file)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer token (default: read from the token file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(toolCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(approvalsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
