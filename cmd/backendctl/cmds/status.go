package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded backend process and its health",
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

			st := sup.Status(cmd.Context(), port)
			b, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal status")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to health-check (defaults to the configured port)")
	return cmd
}
