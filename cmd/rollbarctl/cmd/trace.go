package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/austindbirch/rollbar_relay/internal/item"
)

// traceCmd represents the trace command
var traceCmd = &cobra.Command{
	Use:   "trace [exception-class]",
	Short: "Send a trace item",
	Long: `Send a trace item for an exception class. Frames are given as
file:line pairs, oldest call first; without --frame the CLI's own stack is used.

Example:
  rollbarctl trace NullPointerException --message "user was nil" \
    --frame app/main.go:12 --frame app/handler.go:88`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		levelName, _ := cmd.Flags().GetString("level")
		message, _ := cmd.Flags().GetString("message")
		rawFrames, _ := cmd.Flags().GetStringArray("frame")

		frames := item.Callers(0)
		if len(rawFrames) > 0 {
			var err error
			if frames, err = parseFrames(rawFrames); err != nil {
				return err
			}
		}

		it := item.NewTrace(item.ParseLevel(levelName), args[0], frames).WithLanguage("go")
		it.Trace.Exception.Message = message

		return run(cmd, []item.Item{it})
	},
}

// parseFrames turns file:line pairs into frames. A missing line is sent as null.
func parseFrames(raw []string) ([]item.Frame, error) {
	frames := make([]item.Frame, 0, len(raw))
	for _, r := range raw {
		file, lineStr, hasLine := strings.Cut(r, ":")
		if file == "" {
			return nil, fmt.Errorf("invalid frame %q: missing file", r)
		}
		f := item.Frame{Filename: file}
		if hasLine {
			line, err := strconv.Atoi(lineStr)
			if err != nil || line <= 0 {
				return nil, fmt.Errorf("invalid frame %q: bad line number", r)
			}
			f.Lineno = &line
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().String("level", "error", "item level: debug, info, warning, error, critical")
	traceCmd.Flags().String("message", "", "exception message")
	traceCmd.Flags().StringArray("frame", nil, "stack frame as file:line, repeatable")
}
