package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/austindbirch/rollbar_relay/internal/item"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a message item",
	Long: `Send a message item and wait for it to be delivered.

Example:
  rollbarctl send "payment declined" --level warning --extra '{"order":"o_123"}'
  rollbarctl send "load test" --count 500`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		levelName, _ := cmd.Flags().GetString("level")
		extraJSON, _ := cmd.Flags().GetString("extra")
		codeContext, _ := cmd.Flags().GetString("context")
		count, _ := cmd.Flags().GetInt("count")
		if count < 1 {
			return fmt.Errorf("--count must be at least 1")
		}

		extra, err := parseExtras(extraJSON)
		if err != nil {
			return fmt.Errorf("invalid extras: %w", err)
		}

		it := item.NewMessage(item.ParseLevel(levelName), args[0], extra).WithLanguage("go")
		if codeContext != "" {
			it = it.WithContext(codeContext)
		}
		items := make([]item.Item, count)
		for i := range items {
			items[i] = it
		}

		return run(cmd, items)
	},
}

func run(cmd *cobra.Command, items []item.Item) error {
	t, err := newTransport()
	if err != nil {
		return err
	}

	report, err := deliver(cmd.Context(), t, items)
	if outputJSON {
		printOutput(cmd.OutOrStdout(), report)
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sent %d item(s) in %s\n", report.Sent, report.Elapsed)
		if report.Rejected > 0 {
			fmt.Fprintf(out, "  Rejected: %d\n", report.Rejected)
		}
		if report.Failed > 0 {
			fmt.Fprintf(out, "  Failed: %d\n", report.Failed)
		}
		for _, f := range report.Failures {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}

	if err != nil {
		return fmt.Errorf("delivery incomplete: %w", err)
	}
	if report.Rejected > 0 {
		return fmt.Errorf("%d item(s) rejected", report.Rejected)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("level", "info", "item level: debug, info, warning, error, critical")
	sendCmd.Flags().String("extra", "", "JSON object of extra fields")
	sendCmd.Flags().String("context", "", "code context tag, e.g. checkout#submit")
	sendCmd.Flags().Int("count", 1, "number of copies to send")
}
