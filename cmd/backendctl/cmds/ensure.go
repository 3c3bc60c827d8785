package cmds

import (
	"fmt"

	"github.com/go-go-golems/backendctl/pkg/config"
	"github.com/go-go-golems/backendctl/pkg/state"
	"github.com/go-go-golems/backendctl/pkg/supervise"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEnsureCmd() *cobra.Command {
	var flags serviceFlags

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Start the backend unless it is already healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			partial, err := flags.service()
			if err != nil {
				return err
			}
			spawned := 0
			sup, file, closer, err := newSupervisor(opts, func(pid int) { spawned = pid })
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			port := config.Merge(config.Merge(config.Defaults(), file.Service), partial).Port
			if !sup.EnsureRunning(cmd.Context(), partial) {
				return errors.Errorf("backend failed to start (see %s)", state.SupervisorLogPath(opts.Home))
			}
			url := supervise.HealthURL(port)
			if spawned > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "backend started at %s (pid %d)\n", url, spawned)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "backend running at %s\n", url)
			return nil
		},
	}

	addServiceFlags(cmd.Flags(), &flags)
	return cmd
}
