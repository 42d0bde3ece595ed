package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/client"
	"github.com/wardenhq/warden/internal/config"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644))

	cfg := &config.Config{
		Version:          1,
		DefaultWorkspace: "default",
		Workspaces: []config.Workspace{
			{Name: "default", Path: root, Tier: "write", AllowVCS: false},
		},
	}
	workspaces, err := NewWorkspaceSet(cfg)
	require.NoError(t, err)

	registry := BuildRegistry()
	policy := ApprovalPolicy{Timeout: 5 * time.Second}
	srv := NewServer(registry, workspaces, "test-token-0123456789012345678901", policy, CommandPolicy{}, t.TempDir())

	go srv.Serve("127.0.0.1:0")
	t.Cleanup(srv.Stop)

	for i := 0; i < 100 && srv.Addr() == nil; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, srv.Addr(), "server never bound a listener")

	return srv, srv.Addr().String()
}

func TestConnectAndListTools(t *testing.T) {
	_, addr := startTestServer(t)

	c, err := client.Dial(addr, "test-token-0123456789012345678901", "test-client")
	require.NoError(t, err)
	defer c.Close()

	var hello struct {
		Protocol int `json:"protocol"`
		Tools    []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(c.Hello, &hello))
	assert.Equal(t, 1, hello.Protocol)
	assert.NotEmpty(t, hello.Tools)
}

func TestConnectRejectsWrongToken(t *testing.T) {
	_, addr := startTestServer(t)

	_, err := client.Dial(addr, "wrong-token-0123456789012345678901", "test-client")
	assert.Error(t, err)
}

func TestToolsCallDispatchesFSList(t *testing.T) {
	_, addr := startTestServer(t)

	c, err := client.Dial(addr, "test-token-0123456789012345678901", "test-client")
	require.NoError(t, err)
	defer c.Close()

	raw, err := c.Call("tools.call", map[string]any{
		"name":   "fs.list",
		"params": json.RawMessage(`{"path":"."}`),
	})
	require.NoError(t, err)

	var result struct {
		Entries []struct {
			RelativePath string `json:"relativePath"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	var names []string
	for _, e := range result.Entries {
		names = append(names, e.RelativePath)
	}
	assert.Contains(t, names, "hello.txt")
}

func TestToolsCallUnknownToolReturnsError(t *testing.T) {
	_, addr := startTestServer(t)

	c, err := client.Dial(addr, "test-token-0123456789012345678901", "test-client")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call("tools.call", map[string]any{
		"name":   "nonexistent.tool",
		"params": json.RawMessage(`{}`),
	})
	assert.Error(t, err)
}

func TestPingRoundTrips(t *testing.T) {
	_, addr := startTestServer(t)

	c, err := client.Dial(addr, "test-token-0123456789012345678901", "test-client")
	require.NoError(t, err)
	defer c.Close()

	raw, err := c.Call("ping", struct{}{})
	require.NoError(t, err)

	var payload struct {
		Pong bool `json:"pong"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.True(t, payload.Pong)
}
