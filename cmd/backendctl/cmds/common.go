package cmds

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/go-go-golems/backendctl/pkg/logsink"
	"github.com/go-go-golems/backendctl/pkg/state"
	"github.com/go-go-golems/backendctl/pkg/supervise"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// executablePath locates the binary re-executed as the out-of-process log pump.
var executablePath = os.Executable

type rootOptions struct {
	Home   string
	Config string
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("home", "", "State directory (defaults to $"+state.HomeEnv+" or ~/"+state.HomeDirName+")")
	root.PersistentFlags().String("config", "", "Path to config file (defaults to config.yaml under home)")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	home, err := cmd.Root().PersistentFlags().GetString("home")
	if err != nil {
		return rootOptions{}, err
	}
	if home == "" {
		home, err = state.HomeDir()
		if err != nil {
			return rootOptions{}, err
		}
	}
	home, err = filepath.Abs(home)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = state.ConfigPath(home)
	} else if !filepath.IsAbs(cfgPath) {
		cfgPath, err = filepath.Abs(cfgPath)
		if err != nil {
			return rootOptions{}, err
		}
	}

	return rootOptions{Home: home, Config: cfgPath}, nil
}

type serviceFlags struct {
	Port        int
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	ServicePath string
	Command     []string
}

func addServiceFlags(fs *pflag.FlagSet, f *serviceFlags) {
	fs.IntVar(&f.Port, "port", 0, "Port the backend listens on")
	fs.StringVar(&f.DatabaseURL, "database-url", "", "Primary datastore connection string")
	fs.StringVar(&f.RedisURL, "redis-url", "", "Cache/broker connection string")
	fs.StringVar(&f.JWTSecret, "jwt-secret", "", "Shared secret passed to the backend")
	fs.StringVar(&f.ServicePath, "service-path", "", "Backend source directory (skips discovery)")
	fs.StringSliceVar(&f.Command, "command", nil, "Command to run instead of the manifest start script")
}

func (f serviceFlags) service() (config.Service, error) {
	s := config.Service{
		Port:        f.Port,
		DatabaseURL: f.DatabaseURL,
		RedisURL:    f.RedisURL,
		JWTSecret:   f.JWTSecret,
		Command:     f.Command,
	}
	if f.ServicePath != "" {
		abs, err := filepath.Abs(f.ServicePath)
		if err != nil {
			return config.Service{}, err
		}
		s.ServicePath = abs
	}
	return s, nil
}

// newSupervisor builds a supervisor whose diagnostics go to
// logs/supervisor.log rather than the terminal. onSpawn may be nil.
func newSupervisor(opts rootOptions, onSpawn func(pid int)) (*supervise.Supervisor, *config.File, io.Closer, error) {
	file, err := config.LoadOptional(opts.Config)
	if err != nil {
		return nil, nil, nil, err
	}

	w, err := logsink.Open(state.SupervisorLogPath(opts.Home))
	if err != nil {
		return nil, nil, nil, err
	}
	logger := zerolog.New(w).With().Timestamp().Logger()

	pumpExe, err := executablePath()
	if err != nil {
		log.Debug().Err(err).Msg("executable path unavailable; pumping logs in process")
		pumpExe = ""
	}

	sup := supervise.New(supervise.Options{
		Home:        opts.Home,
		Defaults:    file.Service,
		ServiceName: file.Name(),
		ServiceDir:  file.Dir(),
		PumpExe:     pumpExe,
		OnSpawn:     onSpawn,
		Logger:      &logger,
	})
	return sup, file, w, nil
}
