package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/daemon"
)

// toolCmd implements §6's local "tool call" command: it short-circuits the
// wire entirely, dispatching straight into the tool registry against a
// throwaway RunContext bound to the configured default workspace. Useful
// for scripting and for exercising a tool without a daemon running.
func toolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Invoke tools directly, without a daemon",
	}
	cmd.AddCommand(toolCallCmd())
	return cmd
}

func toolCallCmd() *cobra.Command {
	var (
		workspaceName string
		configPath    string
	)

	cmd := &cobra.Command{
		Use:   "call <tool> <json>",
		Short: "Dispatch one tool call locally",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolName := args[0]
			paramsJSON := "{}"
			if len(args) == 2 {
				paramsJSON = args[1]
			}

			cfg, err := config.LoadGlobalFrom(configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}

			workspaces, err := daemon.NewWorkspaceSet(cfg)
			if err != nil {
				return fmt.Errorf("build workspace set: %w", err)
			}
			ws, ok := workspaces.Resolve(workspaceName)
			if !ok {
				return fmt.Errorf("no such workspace %q (and no default configured)", workspaceName)
			}

			rc, err := daemon.NewRunContext(
				ws,
				daemon.ApprovalPolicyFromConfig(cfg.Approvals),
				daemon.CommandPolicyFromConfig(cfg.Commands),
				config.DataDir(),
			)
			if err != nil {
				return fmt.Errorf("create run context: %w", err)
			}
			defer rc.Close()

			registry := daemon.BuildRegistry()
			result, tErr := registry.Dispatch(context.Background(), toolName, ws.Tier, rc, json.RawMessage(paramsJSON))
			if tErr != nil {
				return fmt.Errorf("%s: %s", tErr.Code, tErr.Message)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&workspaceName, "workspace", "", "workspace name (default: the configured default workspace)")
	cmd.Flags().StringVar(&configPath, "config", config.GlobalConfigPath(), "path to workspaces.yaml")
	return cmd
}
