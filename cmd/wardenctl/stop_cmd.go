package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/daemon"
)

// stopCmd reads the runtime file and sends the two-stage kill (SPEC_FULL
// §4), grounded on the teacher's "daemon stop" minus the HTTP shutdown
// attempt warden's protocol doesn't expose.
func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running wardend daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := daemon.GetAnyRunningDaemon()
			if err != nil {
				fmt.Println("daemon was not running")
				return nil
			}
			if daemon.KillDaemon(info) {
				fmt.Printf("stopped daemon (pid %d, %s)\n", info.PID, info.Addr)
				return nil
			}
			return fmt.Errorf("failed to stop daemon (pid %d): process did not exit, or belongs to someone else", info.PID)
		},
	}
}
