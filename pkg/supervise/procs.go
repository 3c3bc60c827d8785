package supervise

import (
	"syscall"

	"github.com/go-go-golems/backendctl/pkg/state"
)

// ProcessController is the OS surface the supervisor signals through.
type ProcessController interface {
	// Alive probes pid without affecting it.
	Alive(pid int) bool
	Signal(pid int, sig syscall.Signal) error
}

type unixProcesses struct{}

// OSProcesses signals real processes. A pid that leads its own process group
// (every child the supervisor spawns runs in a fresh session) is signalled as
// a group so shell wrappers take their children down with them.
func OSProcesses() ProcessController { return unixProcesses{} }

func (unixProcesses) Alive(pid int) bool { return state.ProcessAlive(pid) }

func (unixProcesses) Signal(pid int, sig syscall.Signal) error {
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		return syscall.Kill(-pgid, sig)
	}
	return syscall.Kill(pid, sig)
}
