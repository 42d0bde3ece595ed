package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/wardenhq/warden/internal/authtoken"
	"github.com/wardenhq/warden/internal/config"
)

// RuntimeInfo is the discovery record a running wardend writes so
// wardenctl can find it without scanning the process table. Unlike the
// teacher's HTTP-backed daemon, warden has no unauthenticated status
// endpoint to dial, so liveness here is a bare TCP connect rather than
// an HTTP GET (see IsDaemonAlive).
type RuntimeInfo struct {
	PID              int    `json:"pid"`
	Addr             string `json:"addr"`
	Version          string `json:"version"`
	TokenFingerprint string `json:"tokenFingerprint"`
}

// RuntimePath returns the path to the runtime info file for the current process.
func RuntimePath() string {
	return RuntimePathForPID(os.Getpid())
}

// RuntimePathForPID returns the runtime info path for a specific PID.
func RuntimePathForPID(pid int) string {
	return filepath.Join(config.DataDir(), fmt.Sprintf("wardend.%d.json", pid))
}

// WriteRuntime saves the daemon's runtime info, fingerprinting token so the
// file never carries the bearer credential itself.
func WriteRuntime(addr, token, version string) error {
	info := RuntimeInfo{
		PID:              os.Getpid(),
		Addr:             addr,
		Version:          version,
		TokenFingerprint: authtoken.Fingerprint(token),
	}

	path := RuntimePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadRuntime reads the runtime info for the current process.
func ReadRuntime() (*RuntimeInfo, error) {
	return ReadRuntimeForPID(os.Getpid())
}

// ReadRuntimeForPID reads the runtime info for a specific PID.
func ReadRuntimeForPID(pid int) (*RuntimeInfo, error) {
	data, err := os.ReadFile(RuntimePathForPID(pid))
	if err != nil {
		return nil, err
	}
	var info RuntimeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RemoveRuntime removes the runtime info file for the current process.
func RemoveRuntime() {
	os.Remove(RuntimePath())
}

// RemoveRuntimeForPID removes the runtime info file for a specific PID.
func RemoveRuntimeForPID(pid int) {
	os.Remove(RuntimePathForPID(pid))
}

// ListAllRuntimes returns every runtime file found in the data dir.
func ListAllRuntimes() ([]*RuntimeInfo, error) {
	matches, err := filepath.Glob(filepath.Join(config.DataDir(), "wardend.*.json"))
	if err != nil {
		return nil, err
	}
	var runtimes []*RuntimeInfo
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var info RuntimeInfo
		if err := json.Unmarshal(data, &info); err != nil {
			os.Remove(path)
			continue
		}
		runtimes = append(runtimes, &info)
	}
	return runtimes, nil
}

// GetAnyRunningDaemon returns info for any running daemon, preferring one
// that actually accepts connections.
func GetAnyRunningDaemon() (*RuntimeInfo, error) {
	runtimes, err := ListAllRuntimes()
	if err != nil {
		return nil, err
	}
	for _, info := range runtimes {
		if IsDaemonAlive(info.Addr) {
			return info, nil
		}
	}
	if len(runtimes) == 0 {
		return nil, os.ErrNotExist
	}
	return runtimes[0], nil
}

// IsDaemonAlive reports whether addr currently accepts TCP connections.
// warden's protocol requires a bearer token before anything useful happens,
// so this is a liveness probe only, not an authentication check.
func IsDaemonAlive(addr string) bool {
	if addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// CleanupZombieDaemons kills every unresponsive runtime record found.
// Returns the number cleaned up.
func CleanupZombieDaemons() int {
	runtimes, err := ListAllRuntimes()
	if err != nil {
		return 0
	}
	cleaned := 0
	for _, info := range runtimes {
		if IsDaemonAlive(info.Addr) {
			continue
		}
		if killProcess(info.PID) {
			RemoveRuntimeForPID(info.PID)
			cleaned++
		}
	}
	return cleaned
}

// KillDaemon stops the daemon described by info with the two-stage signal
// kill, verifying process identity first, then removes its runtime record.
// Returns true once the process is confirmed gone.
func KillDaemon(info *RuntimeInfo) bool {
	if info == nil {
		return true
	}
	if killProcess(info.PID) {
		RemoveRuntimeForPID(info.PID)
		return true
	}
	return false
}

// FindAvailablePort searches up to 100 ports starting at startAddr's port,
// returning the first free "host:port" pair.
func FindAvailablePort(startAddr string) (string, error) {
	host, portStr, err := net.SplitHostPort(startAddr)
	if err != nil {
		host, portStr = "127.0.0.1", "3847"
	}
	base := 3847
	fmt.Sscanf(portStr, "%d", &base)

	for i := 0; i < 100; i++ {
		addr := fmt.Sprintf("%s:%d", host, base+i)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return addr, nil
		}
	}
	return "", fmt.Errorf("no available port found starting from %d", base)
}
