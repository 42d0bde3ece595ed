package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/authtoken"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/internal/version"
)

// serveCmd is the §6 "serve" command surface: a foreground daemon run,
// equivalent to cmd/wardend but reachable without a second binary, mirroring
// the way the teacher's "roborev daemon run" duplicates cmd/roborevd.
func serveCmd() *cobra.Command {
	var (
		workspacePath string
		host          string
		port          int
		newToken      bool
		showToken     bool
		configPath    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the warden daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

			dataDir := config.DataDir()
			tokenPath := authtoken.DefaultPath(dataDir)

			if showToken {
				token, err := authtoken.Load(tokenPath)
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				fmt.Println(authtoken.Fingerprint(token))
				return nil
			}

			if newToken {
				token, err := authtoken.Generate()
				if err != nil {
					return fmt.Errorf("generate token: %w", err)
				}
				if err := authtoken.Save(tokenPath, token); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				log.Printf("wrote new token to %s (fingerprint %s)", tokenPath, authtoken.Fingerprint(token))
			}

			token, err := authtoken.LoadOrCreate(tokenPath)
			if err != nil {
				return fmt.Errorf("load auth token: %w", err)
			}

			cfg, err := config.LoadGlobalFrom(configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}
			if workspacePath != "" {
				applyWorkspaceOverride(cfg, workspacePath)
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			workspaces, err := daemon.NewWorkspaceSet(cfg)
			if err != nil {
				return fmt.Errorf("build workspace set: %w", err)
			}
			registry := daemon.BuildRegistry()

			if n := daemon.CleanupZombieDaemons(); n > 0 {
				log.Printf("cleaned up %d unresponsive daemon runtime record(s)", n)
			}

			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			if daemon.IsDaemonAlive(addr) {
				if resolved, err := daemon.FindAvailablePort(addr); err == nil {
					log.Printf("%s already in use, binding %s instead", addr, resolved)
					addr = resolved
				}
			}

			server := daemon.NewServer(
				registry,
				workspaces,
				token,
				daemon.ApprovalPolicyFromConfig(cfg.Approvals),
				daemon.CommandPolicyFromConfig(cfg.Commands),
				dataDir,
			)

			watcher := config.NewWatcher(configPath, cfg)
			watcher.OnReload = server.ApplyReload
			if err := watcher.Start(); err != nil {
				log.Printf("warning: config hot-reload disabled: %v", err)
			}
			defer watcher.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				log.Printf("received signal %v, shutting down...", sig)
				server.Stop()
			}()

			if err := daemon.WriteRuntime(addr, token, version.Version); err != nil {
				log.Printf("warning: failed to write runtime info: %v", err)
			}
			defer daemon.RemoveRuntime()

			log.Printf("starting wardend %s on %s", version.Version, addr)
			return server.Serve(addr)
		},
	}

	cmd.Flags().StringVar(&workspacePath, "workspace", "", "workspace root to serve (overrides config default workspace)")
	cmd.Flags().StringVar(&host, "host", "", "listener host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listener port (overrides config)")
	cmd.Flags().BoolVar(&newToken, "new-token", false, "generate and persist a fresh auth token before starting")
	cmd.Flags().BoolVar(&showToken, "show-token", false, "print the token fingerprint and exit without starting")
	cmd.Flags().StringVar(&configPath, "config", config.GlobalConfigPath(), "path to workspaces.yaml")

	return cmd
}

func applyWorkspaceOverride(cfg *config.Config, path string) {
	for i := range cfg.Workspaces {
		if cfg.Workspaces[i].Name == cfg.DefaultWorkspace || cfg.DefaultWorkspace == "" {
			cfg.Workspaces[i].Path = path
			return
		}
	}
	name := "default"
	cfg.Workspaces = append(cfg.Workspaces, config.Workspace{
		Name: name,
		Path: path,
		Tier: "write",
	})
	cfg.DefaultWorkspace = name
}
