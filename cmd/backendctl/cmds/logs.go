package cmds

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/backendctl/pkg/logsink"
	"github.com/go-go-golems/backendctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var lines int
	var stream string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the captured backend output",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			if lines <= 0 {
				return errors.Errorf("--lines must be positive, got %d", lines)
			}
			var want logsink.Stream
			switch strings.ToLower(stream) {
			case "", "all":
			case "stdout":
				want = logsink.Stdout
			case "stderr":
				want = logsink.Stderr
			default:
				return errors.Errorf("unknown stream %q (want stdout, stderr or all)", stream)
			}

			out, err := state.TailMatching(state.ServerLogPath(opts.Home), lines, state.DefaultTailBytes, streamFilter(want))
			if err != nil {
				return err
			}
			for _, l := range out {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&stream, "stream", "all", "Only show stdout or stderr lines")
	return cmd
}

// streamFilter accepts server.log lines from want, or every line when want is
// empty.
func streamFilter(want logsink.Stream) func(string) bool {
	if want == "" {
		return nil
	}
	return func(l string) bool {
		_, s, _, ok := logsink.ParseLine(l)
		return ok && s == want
	}
}
