package state

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

const (
	HomeDirName    = ".backendctl"
	HomeEnv        = "BACKENDCTL_HOME"
	PIDFilename    = "server.pid"
	LogsDirName    = "logs"
	ServerLogName  = "server.log"
	SupervisorLog  = "supervisor.log"
	ConfigFilename = "config.yaml"
)

// HomeDir returns the tool's home directory. BACKENDCTL_HOME wins over ~/.backendctl.
func HomeDir() (string, error) {
	if v := os.Getenv(HomeEnv); v != "" {
		return filepath.Abs(v)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user home")
	}
	return filepath.Join(userHome, HomeDirName), nil
}

func PIDPath(home string) string {
	return filepath.Join(home, PIDFilename)
}

func LogsDir(home string) string {
	return filepath.Join(home, LogsDirName)
}

func ServerLogPath(home string) string {
	return filepath.Join(LogsDir(home), ServerLogName)
}

func SupervisorLogPath(home string) string {
	return filepath.Join(LogsDir(home), SupervisorLog)
}

func ConfigPath(home string) string {
	return filepath.Join(home, ConfigFilename)
}

// ReadPID returns the PID recorded at path. A missing or unparsable file is
// reported as ok=false, never as an error.
func ReadPID(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// WritePID replaces the PID file with the decimal pid.
func WritePID(path string, pid int) error {
	if pid <= 0 {
		return errors.Errorf("invalid pid %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir pid dir")
	}
	if err := renameio.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return errors.Wrap(err, "write pid file")
	}
	return nil
}

func RemovePID(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove pid file")
	}
	return nil
}

func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if stderrors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}

func isZombie(pid int) bool {
	path := fmt.Sprintf("/proc/%d/stat", pid)
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return false
	}
	fields := bytes.Fields(bytes.TrimSpace(b[i+1:]))
	if len(fields) < 1 || len(fields[0]) < 1 {
		return false
	}
	return fields[0][0] == 'Z'
}
