package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/austindbirch/rollbar_relay/internal/config"
	"github.com/austindbirch/rollbar_relay/internal/item"
	"github.com/austindbirch/rollbar_relay/internal/logging"
	"github.com/austindbirch/rollbar_relay/internal/tracing"
	"github.com/austindbirch/rollbar_relay/internal/transport"
)

var (
	cfgFile         string
	endpoint        string
	accessToken     string
	queueCapacity   int
	shutdownTimeout time.Duration
	backend         string
	nsqdAddr        string
	logLevel        string
	outputJSON      bool
	prettyJSON      bool

	stopTracing func()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rollbarctl",
	Short: "Rollbar CLI - Report items to a Rollbar-compatible collector",
	Long: `rollbarctl is a command line tool for sending items to a Rollbar-compatible
item endpoint through the asynchronous transport.

Items are queued, delivered by a single background worker and drained on exit;
delivery failures (access denied, rate limited, ...) are reported at the end.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !tracing.Enabled() {
			return nil
		}
		shutdown, err := tracing.InitTracing(cmd.Context(), "rollbarctl")
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		stopTracing = shutdown
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopTracing != nil {
			stopTracing()
			stopTracing = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.FromEnv().Client

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rollbarctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", defaults.Endpoint, "item endpoint URL")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "project access token (overrides ROLLBAR_ACCESS_TOKEN)")
	rootCmd.PersistentFlags().IntVar(&queueCapacity, "capacity", defaults.QueueCapacity, "max unsettled items")
	rootCmd.PersistentFlags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "max time to wait for pending deliveries")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", defaults.Backend, "dispatch backend: memory or nsq")
	rootCmd.PersistentFlags().StringVar(&nsqdAddr, "nsqd", "", "nsqd TCP address for the nsq backend")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "transport log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&prettyJSON, "pretty", false, "use jq for pretty JSON formatting (requires jq)")

	// Bind flags to viper
	viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("access_token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("queue_capacity", rootCmd.PersistentFlags().Lookup("capacity"))
	viper.BindPFlag("shutdown_timeout", rootCmd.PersistentFlags().Lookup("shutdown-timeout"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rollbarctl")
	}

	// endpoint -> ROLLBAR_ENDPOINT, access_token -> ROLLBAR_ACCESS_TOKEN, ...
	viper.SetEnvPrefix("rollbar")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Override global variables with config values if flags weren't explicitly set
	flags := rootCmd.PersistentFlags()
	if !flags.Changed("endpoint") {
		if s := viper.GetString("endpoint"); s != "" {
			endpoint = s
		}
	}
	if !flags.Changed("token") {
		accessToken = viper.GetString("access_token")
	}
	if !flags.Changed("capacity") {
		if n := viper.GetInt("queue_capacity"); n > 0 {
			queueCapacity = n
		}
	}
	if !flags.Changed("shutdown-timeout") {
		if d := viper.GetDuration("shutdown_timeout"); d > 0 {
			shutdownTimeout = d
		}
	}
	if !flags.Changed("backend") {
		if s := viper.GetString("backend"); s != "" {
			backend = s
		}
	}
	if !flags.Changed("json") {
		outputJSON = viper.GetBool("json")
	}
	if !flags.Changed("pretty") {
		prettyJSON = viper.GetBool("pretty")
	}
}

// transportConfig layers the resolved flags over the environment config.
func transportConfig() transport.Config {
	cfg := config.FromEnv().Transport()
	cfg.Endpoint = endpoint
	cfg.AccessToken = accessToken
	cfg.QueueCapacity = queueCapacity
	cfg.ShutdownTimeout = shutdownTimeout
	cfg.Backend = backend
	if nsqdAddr != "" {
		cfg.NSQ.NsqdTCPAddr = nsqdAddr
	}
	return cfg
}

func newTransport() (*transport.Transport, error) {
	logger := logging.New("rollbarctl").WithOutput(os.Stderr).SetLevel(logging.ParseLevel(logLevel))
	t, err := transport.New(transportConfig(), transport.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return t, nil
}

// sendReport summarizes one CLI run.
type sendReport struct {
	Sent     int      `json:"sent"`
	Rejected int      `json:"rejected"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
	Elapsed  string   `json:"elapsed"`
}

// deliver sends every item, waiting out a full queue, then shuts the
// transport down and folds delivery failures into the report.
func deliver(ctx context.Context, t *transport.Transport, items []item.Item) (sendReport, error) {
	start := time.Now()
	var report sendReport

	for _, it := range items {
		if err := sendWithBackoff(ctx, t, it); err != nil {
			report.Rejected++
			report.Failures = append(report.Failures, err.Error())
			continue
		}
		report.Sent++
	}

	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := t.Shutdown(sctx)
	report.Elapsed = time.Since(start).Round(time.Millisecond).String()

	var se *transport.ShutdownError
	if errors.As(err, &se) {
		for _, e := range se.Errors() {
			report.Failed++
			report.Failures = append(report.Failures, e.Error())
		}
	}
	return report, err
}

func sendWithBackoff(ctx context.Context, t *transport.Transport, it item.Item) error {
	delay := time.Millisecond
	for {
		err := t.SendContext(ctx, it)
		if !errors.Is(err, transport.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		if delay < 100*time.Millisecond {
			delay *= 2
		}
	}
}

// checkJQAvailable checks if jq is available in PATH
func checkJQAvailable() bool {
	_, err := exec.LookPath("jq")
	return err == nil
}

// formatWithJQ formats JSON using jq for pretty printing
func formatWithJQ(jsonData []byte) (string, error) {
	if !checkJQAvailable() {
		return "", fmt.Errorf("jq not found in PATH")
	}

	cmd := exec.Command("jq", ".")
	cmd.Stdin = bytes.NewReader(jsonData)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("jq formatting failed: %s", stderr.String())
	}

	return out.String(), nil
}

// printOutput prints v to w in the requested format
func printOutput(w io.Writer, v any) {
	if !outputJSON {
		fmt.Fprintf(w, "%+v\n", v)
		return
	}

	jsonData, err := json.MarshalIndent(v, "", "  ")
	if prettyJSON {
		// Compact JSON if we're going to format with jq
		jsonData, err = json.Marshal(v)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling to JSON: %v\n", err)
		return
	}

	if prettyJSON {
		formatted, jqErr := formatWithJQ(jsonData)
		if jqErr == nil {
			fmt.Fprint(w, formatted)
			return
		}
		fmt.Fprintf(os.Stderr, "Warning: %v, falling back to standard formatting\n", jqErr)
		jsonData, _ = json.MarshalIndent(v, "", "  ")
	}
	fmt.Fprintln(w, string(jsonData))
}

// parseExtras parses a JSON object into message extras
func parseExtras(jsonStr string) (map[string]any, error) {
	if strings.TrimSpace(jsonStr) == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("failed to parse JSON: extras must be an object")
	}
	return data, nil
}
