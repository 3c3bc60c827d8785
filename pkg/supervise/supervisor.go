package supervise

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/go-go-golems/backendctl/pkg/discovery"
	"github.com/go-go-golems/backendctl/pkg/health"
	"github.com/go-go-golems/backendctl/pkg/proc"
	"github.com/go-go-golems/backendctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// Home holds server.pid and logs/.
	Home string
	// Defaults is merged under the partial config given to EnsureRunning.
	// Zero fields fall back to config.Defaults().
	Defaults config.Service

	ServiceName string
	ServiceDir  string
	ExeDir      string
	LookupEnv   func(string) (string, bool)

	HealthTimeout time.Duration
	PollInterval  time.Duration
	ReadyTimeout  time.Duration
	ShutdownGrace time.Duration

	// PumpExe, when set, is re-executed with PumpCommand to capture output
	// out of process so the service keeps a reader after we exit.
	PumpExe string

	// OnSpawn is called with the pid of every process Start spawns, before
	// readiness is known.
	OnSpawn func(pid int)

	Procs  ProcessController
	Logger *zerolog.Logger
}

// Supervisor owns the PID file and the lifecycle of one local backend process.
// It is not safe for concurrent use; the PID file is the only coordination
// between separate invocations.
type Supervisor struct {
	opts   Options
	client *http.Client
	procs  ProcessController
	log    zerolog.Logger

	// child is set from spawn until the process is detached or stopped.
	child  *os.Process
	exited chan struct{}
}

func New(opts Options) *Supervisor {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = health.DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = health.DefaultPollInterval
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = health.DefaultReadyTimeout
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 2 * time.Second
	}
	opts.Defaults = config.Merge(config.Defaults(), opts.Defaults)
	if opts.Procs == nil {
		opts.Procs = OSProcesses()
	}
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &Supervisor{
		opts:   opts,
		client: health.NewClient(opts.HealthTimeout),
		procs:  opts.Procs,
		log:    l.With().Str("component", "supervisor").Logger(),
	}
}

func HealthURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/", port)
}

func (s *Supervisor) PIDPath() string {
	return state.PIDPath(s.opts.Home)
}

// IsRunning reports whether url answers with a 2xx within the health timeout.
func (s *Supervisor) IsRunning(ctx context.Context, url string) bool {
	return health.Check(ctx, s.client, url)
}

// GetRecordedPID returns the recorded PID if that process is alive. A stale
// record is removed.
func (s *Supervisor) GetRecordedPID() (int, bool) {
	path := s.PIDPath()
	pid, ok := state.ReadPID(path)
	if !ok {
		return 0, false
	}
	if s.procs.Alive(pid) {
		return pid, true
	}
	if err := state.RemovePID(path); err != nil {
		s.log.Debug().Err(err).Int("pid", pid).Msg("could not remove stale pid file")
	} else {
		s.log.Debug().Int("pid", pid).Msg("removed stale pid file")
	}
	return 0, false
}

func (s *Supervisor) FindServicePath() (string, bool) {
	return discovery.Find(discovery.Options{
		ExeDir:      s.opts.ExeDir,
		ServiceName: s.opts.ServiceName,
		ServiceDir:  s.opts.ServiceDir,
		LookupEnv:   s.opts.LookupEnv,
	})
}

// WaitForReady polls url at the configured interval until it is healthy or
// timeout elapses. timeout <= 0 uses the configured ready timeout.
func (s *Supervisor) WaitForReady(ctx context.Context, url string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.opts.ReadyTimeout
	}
	return health.Wait(ctx, url, health.WaitOptions{
		Client:   s.client,
		Interval: s.opts.PollInterval,
		Timeout:  timeout,
	})
}

// Start spawns the service and waits for it to become healthy. On readiness
// failure the just-spawned process is stopped and the PID file removed.
func (s *Supervisor) Start(ctx context.Context, cfg config.Service) bool {
	if err := cfg.Validate(); err != nil {
		s.log.Error().Err(err).Msg("invalid service config")
		return false
	}

	dir := cfg.ServicePath
	if dir == "" {
		found, ok := s.FindServicePath()
		if !ok {
			s.log.Error().Msg("service directory not found")
			return false
		}
		dir = found
	}

	if err := os.MkdirAll(state.LogsDir(s.opts.Home), 0o755); err != nil {
		s.log.Error().Err(errors.Wrap(err, "mkdir logs dir")).Msg("start failed")
		return false
	}

	pid, err := s.spawn(dir, cfg)
	if err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("spawn failed")
		return false
	}

	if err := state.WritePID(s.PIDPath(), pid); err != nil {
		s.log.Error().Err(err).Int("pid", pid).Msg("could not record pid; stopping service")
		if err := s.terminate(ctx, pid); err != nil {
			s.log.Error().Err(err).Int("pid", pid).Msg("stop after pid write failure")
		}
		s.release()
		return false
	}

	url := HealthURL(cfg.Port)
	if !s.waitChild(ctx, url) {
		s.log.Error().Int("pid", pid).Str("url", url).Dur("timeout", s.opts.ReadyTimeout).Msg("service did not become ready; stopping")
		_ = s.Stop(ctx)
		s.release()
		return false
	}

	s.log.Info().Int("pid", pid).Str("url", url).Msg("service ready")
	s.release()
	return true
}

// spawn starts the service in a new session with stdout and stderr on pipes.
// The child is not bound to ctx and outlives this call.
func (s *Supervisor) spawn(dir string, cfg config.Service) (int, error) {
	argv := serviceCommand(dir, cfg)
	env, overlay := childEnv(os.Environ(), cfg)
	env = prependPath(env, binDir(dir))

	outR, outW, err := os.Pipe()
	if err != nil {
		return 0, errors.Wrap(err, "stdout pipe")
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return 0, errors.Wrap(err, "stderr pipe")
	}

	// #nosec G204 -- command comes from the service manifest or user config.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	startErr := cmd.Start()
	_ = outW.Close()
	_ = errW.Close()
	if startErr != nil {
		_ = outR.Close()
		_ = errR.Close()
		return 0, errors.Wrapf(startErr, "start %q", argv[0])
	}

	pid := cmd.Process.Pid
	exited := make(chan struct{})
	s.child = cmd.Process
	s.exited = exited
	// Reaper; the child must not linger as a zombie
	// while this process is alive.
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	s.log.Info().
		Int("pid", pid).
		Str("dir", dir).
		Strs("command", argv).
		Interface("env", state.SanitizeEnv(overlay)).
		Msg("service spawned")

	s.startPump(outR, errR)
	if s.opts.OnSpawn != nil {
		s.opts.OnSpawn(pid)
	}
	return pid, nil
}

// waitChild is WaitForReady that gives up early if the child exits.
func (s *Supervisor) waitChild(ctx context.Context, url string) bool {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.exited != nil {
		exited := s.exited
		go func() {
			select {
			case <-exited:
				s.log.Debug().Msg("service exited before becoming ready")
				cancel()
			case <-waitCtx.Done():
			}
		}()
	}
	return s.WaitForReady(waitCtx, url, s.opts.ReadyTimeout)
}

// release drops the in-memory handle. The reaper goroutine keeps waiting on
// the process; nothing else refers to it.
func (s *Supervisor) release() {
	s.child = nil
	s.exited = nil
}

// Stop terminates the recorded service: SIGTERM, grace period, SIGKILL. The
// PID file is removed whatever the outcome. false means the supervisor could
// not confirm the process was signalled, not that it is still running.
func (s *Supervisor) Stop(ctx context.Context) bool {
	pid, ok := s.GetRecordedPID()
	if !ok {
		if err := state.RemovePID(s.PIDPath()); err != nil {
			s.log.Debug().Err(err).Msg("remove pid file")
		}
		return true
	}

	err := s.terminate(ctx, pid)
	if rmErr := state.RemovePID(s.PIDPath()); rmErr != nil {
		s.log.Debug().Err(rmErr).Msg("remove pid file")
	}
	if err != nil {
		s.log.Error().Err(err).Int("pid", pid).Msg("stop failed")
		return false
	}
	s.log.Info().Int("pid", pid).Msg("service stopped")
	return true
}

func (s *Supervisor) terminate(ctx context.Context, pid int) error {
	if err := s.procs.Signal(pid, syscall.SIGTERM); err != nil {
		if stderrors.Is(err, syscall.ESRCH) {
			return nil
		}
		return errors.Wrap(err, "send SIGTERM")
	}

	if s.waitGone(ctx, pid, s.opts.ShutdownGrace) {
		return nil
	}

	s.log.Warn().Int("pid", pid).Dur("grace", s.opts.ShutdownGrace).Msg("service ignored SIGTERM; sending SIGKILL")
	if err := s.procs.Signal(pid, syscall.SIGKILL); err != nil {
		if stderrors.Is(err, syscall.ESRCH) {
			return nil
		}
		return errors.Wrap(err, "send SIGKILL")
	}
	if !s.waitGone(context.Background(), pid, time.Second) {
		s.log.Warn().Int("pid", pid).Msg("service still present after SIGKILL")
	}
	return nil
}

// waitGone polls liveness until pid disappears or d elapses.
func (s *Supervisor) waitGone(ctx context.Context, pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	reaped := s.ownExit(pid)

	for {
		if !s.procs.Alive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-reaped:
			return true
		case <-ctx.Done():
			return !s.procs.Alive(pid)
		case <-t.C:
		}
	}
}

// ownExit returns a channel closed when pid exits if pid is the child this
// supervisor spawned, nil otherwise.
func (s *Supervisor) ownExit(pid int) <-chan struct{} {
	if s.child == nil || s.child.Pid != pid {
		return nil
	}
	return s.exited
}

// EnsureRunning starts the service unless it already answers its health
// check. partial is merged over the supervisor's defaults.
func (s *Supervisor) EnsureRunning(ctx context.Context, partial config.Service) bool {
	cfg := config.Merge(s.opts.Defaults, partial)
	url := HealthURL(cfg.Port)
	if s.IsRunning(ctx, url) {
		s.log.Debug().Str("url", url).Msg("service already healthy")
		return true
	}
	return s.Start(ctx, cfg)
}

type Status struct {
	PID     int         `json:"pid,omitempty"`
	Alive   bool        `json:"alive"`
	Healthy bool        `json:"healthy"`
	URL     string      `json:"url"`
	PIDFile string      `json:"pid_file"`
	LogFile string      `json:"log_file"`
	Uptime  string      `json:"uptime,omitempty"`
	Stats   *proc.Stats `json:"stats,omitempty"`
}

// Status reports the recorded process and the health of the service on port
// (the default port when port <= 0).
func (s *Supervisor) Status(ctx context.Context, port int) Status {
	if port <= 0 {
		port = s.opts.Defaults.Port
	}
	st := Status{
		URL:     HealthURL(port),
		PIDFile: s.PIDPath(),
		LogFile: state.ServerLogPath(s.opts.Home),
	}
	if pid, ok := s.GetRecordedPID(); ok {
		st.PID = pid
		st.Alive = true
		if ps, err := proc.ReadStats(pid); err == nil {
			st.Stats = ps
			if up := ps.Uptime(time.Now()); up > 0 {
				st.Uptime = up.String()
			}
		}
	}
	st.Healthy = s.IsRunning(ctx, st.URL)
	return st
}
