package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the recorded backend (SIGTERM, then SIGKILL after a grace period)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			sup, _, closer, err := newSupervisor(opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			if !sup.Stop(cmd.Context()) {
				return errors.New("could not confirm the backend stopped")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "backend stopped")
			return nil
		},
	}
}
