package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	wclient "github.com/wardenhq/warden/internal/client"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a running daemon over the session protocol",
	}
	cmd.AddCommand(clientPingCmd())
	cmd.AddCommand(clientCallCmd())
	return cmd
}

func dialServer() (*wclient.Client, error) {
	addr, err := resolveServer()
	if err != nil {
		return nil, err
	}
	token, err := resolveToken()
	if err != nil {
		return nil, err
	}
	return wclient.Dial(addr, token, "wardenctl")
}

func clientPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect and send a ping",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialServer()
			if err != nil {
				return err
			}
			defer c.Close()

			raw, err := c.Call("ping", struct{}{})
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func clientCallCmd() *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool over the wire",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialServer()
			if err != nil {
				return err
			}
			defer c.Close()

			var params json.RawMessage
			if argsJSON != "" {
				params = json.RawMessage(argsJSON)
			} else {
				params = json.RawMessage("{}")
			}

			raw, err := c.Call("tools.call", map[string]any{
				"name":   args[0],
				"params": params,
			})
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON-encoded tool parameters")
	return cmd
}
