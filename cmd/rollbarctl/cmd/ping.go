package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/austindbirch/rollbar_relay/internal/health"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the transport can accept items",
	Long: `Start a transport with the current settings and report whether it is ready.
With --backend nsq this also checks that nsqd is reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTransport()
		if err != nil {
			return err
		}
		defer func() { _ = t.Shutdown(context.Background()) }()

		st := health.Check(cmd.Context(), t)
		if outputJSON {
			printOutput(cmd.OutOrStdout(), st)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s backend)\n", st.Message, transportConfig().Backend)
		}
		if !st.OK {
			return fmt.Errorf("transport not ready")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
