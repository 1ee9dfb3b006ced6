// Command rewardctl inspects training runs from the terminal.
//
// Usage:
//
//	rewardctl runs [--all]            # run summary table
//	rewardctl series <run>            # parsed points of one run
//	rewardctl watch                   # interactive dashboard
//	rewardctl remote --addr host:port # drive a dashboard session over gRPC
//
// The backend URL comes from --backend-url or BACKEND_URL.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HatiCode/rewardboard/pkg/backend"
	"github.com/HatiCode/rewardboard/pkg/httpx"
	rewardtls "github.com/HatiCode/rewardboard/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

// Global (root-level) flag variables
type rootFlags struct {
	backendURL string
	timeout    time.Duration
	rps        float64
	verbose    bool
	debug      bool
	tls        rewardtls.Config
}

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command. Flags live on a per-call struct so
// tests can build independent command trees.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "rewardctl",
		Short: "Inspect reinforcement-learning training runs",
		Long: strings.TrimSpace(`
rewardctl reads the training backend that feeds the reward dashboard.

It can list runs, dump one run's reward series, open an interactive terminal
dashboard, or drive a running dashboard's session over gRPC.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging(flags)
			return nil
		},
	}

	defaultURL := os.Getenv("BACKEND_URL")
	if defaultURL == "" {
		defaultURL = backend.DefaultBaseURL
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.backendURL, "backend-url", defaultURL, "Training backend base URL")
	pf.DurationVar(&flags.timeout, "timeout", 30*time.Second, "Timeout for one-shot commands")
	pf.Float64Var(&flags.rps, "backend-rps", 10, "Backend requests per second (0 disables limiting)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose (info) logging")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging (overrides --verbose)")
	pf.BoolVar(&flags.tls.Enabled, "backend-tls", false, "Use custom TLS settings for the backend")
	pf.StringVar(&flags.tls.CertFile, "backend-tls-cert-file", "", "Client certificate presented to the backend")
	pf.StringVar(&flags.tls.KeyFile, "backend-tls-key-file", "", "Client private key")
	pf.StringVar(&flags.tls.CAFile, "backend-tls-ca-file", "", "CA file for verifying the backend")
	cmd.Version = version

	cmd.AddCommand(newRunsCmd(flags))
	cmd.AddCommand(newSeriesCmd(flags))
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newRemoteCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rewardctl version: %s\n", version)
		},
	}
}

// newSource builds the backend client from the root flags.
func newSource(flags *rootFlags) (*backend.HTTPSource, error) {
	if err := flags.tls.ValidateClient(); err != nil {
		return nil, fmt.Errorf("backend tls: %w", err)
	}
	client, err := httpx.NewClient(flags.tls, 0)
	if err != nil {
		return nil, err
	}
	return backend.NewHTTPSource(flags.backendURL, client, backend.NewLimiter(flags.rps))
}

func initLogging(flags *rootFlags) {
	level := slog.LevelWarn
	switch {
	case flags.debug:
		level = slog.LevelDebug
	case flags.verbose:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
