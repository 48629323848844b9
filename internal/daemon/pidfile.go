package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFilename = "llmgate.pid"

// AcquirePID writes the current PID to dataDir/llmgate.pid. It fails when
// the file names a live process and silently replaces a stale one.
func AcquirePID(dataDir string) error {
	if pid, err := ReadPID(dataDir); err == nil {
		if pid != os.Getpid() && isProcessAlive(pid) {
			return fmt.Errorf("llmgate is already running (PID %d, file %s)", pid, pidPath(dataDir))
		}
	}
	return WritePID(dataDir)
}

// WritePID writes the current process ID to dataDir/llmgate.pid. The file is
// replaced atomically so a concurrent reader never sees a partial PID.
func WritePID(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory for PID file: %w", err)
	}

	path := pidPath(dataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing PID file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("installing PID file %s: %w", path, err)
	}
	return nil
}

// ReadPID reads the PID from dataDir/llmgate.pid.
func ReadPID(dataDir string) (int, error) {
	path := pidPath(dataDir)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file %s: %w", path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parsing PID from %s: invalid content %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// RemovePID removes the PID file from dataDir.
func RemovePID(dataDir string) error {
	path := pidPath(dataDir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file %s: %w", path, err)
	}
	return nil
}

// IsRunning checks whether the PID file exists and the process is alive.
func IsRunning(dataDir string) bool {
	pid, err := ReadPID(dataDir)
	if err != nil {
		return false
	}
	return isProcessAlive(pid)
}

// isProcessAlive sends signal 0, which checks existence without delivering
// anything.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, pidFilename)
}
