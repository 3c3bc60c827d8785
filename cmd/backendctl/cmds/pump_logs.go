package cmds

import (
	"io"
	"os"

	"github.com/go-go-golems/backendctl/pkg/logsink"
	"github.com/go-go-golems/backendctl/pkg/supervise"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPumpLogsCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:    supervise.PumpCommand,
		Short:  "Internal: copy backend output from fds 3 and 4 into the server log",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.Disabled)
			log.Logger = zerolog.New(io.Discard)

			if logFile == "" {
				return errors.New("missing --log-file")
			}
			stdout := os.NewFile(3, "backend-stdout")
			stderr := os.NewFile(4, "backend-stderr")
			if stdout == nil || stderr == nil {
				return errors.New("missing inherited pipes")
			}
			defer func() { _ = stdout.Close() }()
			defer func() { _ = stderr.Close() }()

			w, err := logsink.Open(logFile)
			if err != nil {
				// Keep draining so the backend never blocks on a full pipe.
				return logsink.Pump(cmd.Context(), logsink.NewWriter(io.Discard), stdout, stderr)
			}
			defer func() { _ = w.Close() }()
			return logsink.Pump(cmd.Context(), logsink.NewWriter(w), stdout, stderr)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Server log path")
	return cmd
}
