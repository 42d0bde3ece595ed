// Command wardend is the warden daemon: it loads a workspace configuration,
// builds the tool registry, and serves the session protocol (C8) on a
// loopback listener until signalled to stop.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/wardenhq/warden/internal/authtoken"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/internal/version"
)

func main() {
	var (
		workspacePath = pflag.String("workspace", "", "path to the workspace root served by this daemon (overrides the config's default workspace root)")
		host          = pflag.String("host", "", "listener host (overrides config; never 0.0.0.0 without this flag)")
		port          = pflag.Int("port", 0, "listener port (overrides config)")
		configPath    = pflag.String("config", config.GlobalConfigPath(), "path to workspaces.yaml")
		newToken      = pflag.Bool("new-token", false, "generate and persist a fresh auth token before starting")
		showToken     = pflag.Bool("show-token", false, "print the token fingerprint and exit without starting")
	)
	pflag.Parse()

	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("wardend %s\n", version.Version)
		return
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	dataDir := config.DataDir()
	tokenPath := authtoken.DefaultPath(dataDir)

	if *showToken {
		token, err := authtoken.Load(tokenPath)
		if err != nil {
			log.Fatalf("read token: %v", err)
		}
		fmt.Println(authtoken.Fingerprint(token))
		return
	}

	if *newToken {
		token, err := authtoken.Generate()
		if err != nil {
			log.Fatalf("generate token: %v", err)
		}
		if err := authtoken.Save(tokenPath, token); err != nil {
			log.Fatalf("save token: %v", err)
		}
		log.Printf("wrote new token to %s (fingerprint %s)", tokenPath, authtoken.Fingerprint(token))
	}

	token, err := authtoken.LoadOrCreate(tokenPath)
	if err != nil {
		log.Fatalf("load auth token: %v", err)
	}

	cfg, err := config.LoadGlobalFrom(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", *configPath, err)
	}

	if *workspacePath != "" {
		applyWorkspaceOverride(cfg, *workspacePath)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	workspaces, err := daemon.NewWorkspaceSet(cfg)
	if err != nil {
		log.Fatalf("build workspace set: %v", err)
	}

	registry := daemon.BuildRegistry()

	server := daemon.NewServer(
		registry,
		workspaces,
		token,
		daemon.ApprovalPolicyFromConfig(cfg.Approvals),
		daemon.CommandPolicyFromConfig(cfg.Commands),
		dataDir,
	)

	watcher := config.NewWatcher(*configPath, cfg)
	watcher.OnReload = server.ApplyReload
	if err := watcher.Start(); err != nil {
		log.Printf("warning: config hot-reload disabled: %v", err)
	}
	defer watcher.Stop()

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

	log.Printf("starting wardend %s, workspace tier(s) loaded: %d", version.Version, len(cfg.Workspaces))
	if err := server.Serve(addr); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// applyWorkspaceOverride points the configured default workspace's root at
// path, for the common single-repo invocation (`wardend --workspace .`)
// rather than requiring a full workspaces.yaml for a quick session.
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
