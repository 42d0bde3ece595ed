//go:build windows

package daemon

import (
	"bytes"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type processIdentity int

const (
	processUnknown processIdentity = iota
	processIsWardend
	processNotWardend
)

var identifyProcess = identifyProcessImpl

func identifyProcessImpl(pid int) processIdentity {
	pidStr := strconv.Itoa(pid)

	if cmdLine := getCommandLineWmic(pidStr); cmdLine != "" {
		return classifyCommandLine(cmdLine)
	}
	if cmdLine := getCommandLinePowerShell(pidStr); cmdLine != "" {
		return classifyCommandLine(cmdLine)
	}
	return processUnknown
}

func getCommandLineWmic(pidStr string) string {
	output, err := exec.Command("wmic", "process", "where", "ProcessId="+pidStr, "get", "commandline").Output()
	if err != nil {
		return ""
	}
	trimmed := strings.TrimSpace(string(output))
	trimmed = strings.TrimPrefix(trimmed, "CommandLine")
	return strings.TrimSpace(trimmed)
}

func getCommandLinePowerShell(pidStr string) string {
	script := `[Console]::OutputEncoding=[Text.Encoding]::UTF8;` +
		`(Get-CimInstance Win32_Process -Filter "ProcessId=` + pidStr + `").CommandLine`
	output, err := exec.Command("powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return ""
	}
	result := strings.TrimSpace(string(output))
	return strings.ReplaceAll(result, "\x00", "")
}

func classifyCommandLine(cmdLine string) processIdentity {
	cmdLine = strings.TrimSpace(strings.ReplaceAll(cmdLine, "\x00", ""))
	if cmdLine == "" {
		return processUnknown
	}
	if strings.Contains(strings.ToLower(cmdLine), "wardend") {
		return processIsWardend
	}
	return processNotWardend
}

// killProcess two-stage kills pid via taskkill after an identity check,
// verifying death with tasklist.
func killProcess(pid int) bool {
	if !processExists(pid) {
		return true
	}

	switch identifyProcess(pid) {
	case processNotWardend:
		return true
	case processUnknown:
		return false
	case processIsWardend:
	}

	_ = exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/F").Run()

	for i := 0; i < 10; i++ {
		time.Sleep(100 * time.Millisecond)
		if !processExists(pid) {
			return true
		}
	}
	return false
}

func processExists(pid int) bool {
	pidStr := strconv.Itoa(pid)
	output, err := exec.Command("tasklist", "/FI", "PID eq "+pidStr, "/FO", "CSV", "/NH").Output()
	if err != nil {
		return true
	}
	quotedPID := []byte("\"" + pidStr + "\"")
	return len(output) > 0 && bytes.Contains(output, quotedPID)
}
