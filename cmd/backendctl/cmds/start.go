package cmds

import (
	"fmt"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/go-go-golems/backendctl/pkg/state"
	"github.com/go-go-golems/backendctl/pkg/supervise"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var flags serviceFlags
	var force bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Spawn the backend and wait until it is healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			over, err := flags.service()
			if err != nil {
				return err
			}
			spawned := 0
			sup, file, closer, err := newSupervisor(opts, func(pid int) { spawned = pid })
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			if pid, ok := sup.GetRecordedPID(); ok {
				if !force {
					return errors.Errorf("backend already recorded as pid %d; run backendctl stop first or use --force", pid)
				}
				if !sup.Stop(cmd.Context()) {
					return errors.Errorf("could not stop pid %d", pid)
				}
			}

			cfg := config.Merge(config.Merge(config.Defaults(), file.Service), over)
			if !sup.Start(cmd.Context(), cfg) {
				return errors.Errorf("backend failed to start (see %s)", state.SupervisorLogPath(opts.Home))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "backend started at %s (pid %d)\n", supervise.HealthURL(cfg.Port), spawned)
			return nil
		},
	}

	addServiceFlags(cmd.Flags(), &flags)
	cmd.Flags().BoolVar(&force, "force", false, "Stop a recorded backend before starting")
	return cmd
}
