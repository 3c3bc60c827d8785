package supervise

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/go-go-golems/backendctl/pkg/logsink"
	"github.com/go-go-golems/backendctl/pkg/state"
)

// PumpCommand is the hidden subcommand that pumps output out of process. It
// receives the stdout and stderr read ends as fds 3 and 4.
const PumpCommand = "__pump-logs"

// startPump drains the child's pipes into the server log. The read ends are
// owned by the pump from here on.
func (s *Supervisor) startPump(stdout, stderr *os.File) {
	logPath := state.ServerLogPath(s.opts.Home)

	if s.opts.PumpExe != "" {
		// #nosec G204 -- PumpExe is our own executable.
		cmd := exec.Command(s.opts.PumpExe, PumpCommand, "--log-file", logPath)
		cmd.ExtraFiles = []*os.File{stdout, stderr}
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		err := cmd.Start()
		if err == nil {
			_ = stdout.Close()
			_ = stderr.Close()
			go func() { _ = cmd.Wait() }()
			s.log.Info().Int("pid", cmd.Process.Pid).Str("log", logPath).Msg("log pump started")
			return
		}
		s.log.Warn().Err(err).Msg("external log pump failed to start; pumping in process")
	}

	var out io.Writer = io.Discard
	var closer io.Closer
	if w, err := logsink.Open(logPath); err == nil {
		out, closer = w, w
	} else {
		s.log.Warn().Err(err).Str("log", logPath).Msg("server log unavailable; discarding output")
	}

	go func() {
		if err := logsink.Pump(context.Background(), logsink.NewWriter(out), stdout, stderr); err != nil {
			s.log.Debug().Err(err).Msg("log pump ended")
		}
		_ = stdout.Close()
		_ = stderr.Close()
		if closer != nil {
			_ = closer.Close()
		}
	}()
}
