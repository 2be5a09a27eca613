package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"latchkey/pkg/oauth"
)

// Exit codes for scripting and automation.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no stored credentials for the
	// requested provider; run login or device first.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow itself failed, for
	// example the user denied the request.
	ExitCodeAuthFailed = 3
)

var (
	flagConfig    string
	flagPrincipal string
	flagVerbose   bool
)

// rootCmd is the entry point when the tool is called without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "latchkey",
	Short: "Manage OAuth tokens for command line tools",
	Long: `latchkey obtains and maintains OAuth 2.0 tokens for CLI and headless
tools: browser-based login with PKCE, device flow for machines without
a browser, and automatic refresh coordinated across processes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default $XDG_CONFIG_HOME/latchkey/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagPrincipal, "principal", "default", "Principal the token belongs to, for tools managing several identities per provider")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

// SetVersion sets the version for the root command, injected at build
// time from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI and exits with a semantic exit code on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "latchkey version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to exit codes.
func getExitCode(err error) int {
	if errors.Is(err, oauth.ErrTokenNotFound) {
		return ExitCodeAuthRequired
	}
	if errors.Is(err, oauth.ErrAuthorizationDenied) ||
		errors.Is(err, oauth.ErrDeviceCodeExpired) ||
		errors.Is(err, oauth.ErrInvalidState) {
		return ExitCodeAuthFailed
	}
	if _, ok := oauth.AsServerError(err); ok {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}
