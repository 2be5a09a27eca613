package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var loginTimeout time.Duration

// loginCmd runs the browser-based authorization code flow.
var loginCmd = &cobra.Command{
	Use:   "login <provider>",
	Short: "Authenticate via the browser",
	Long: `Authenticate to a provider using the OAuth authorization code flow
with PKCE. A browser window opens at the provider's authorization page;
the token is stored once you approve.

Examples:
  latchkey login github.com
  latchkey login github.com --principal work`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "How long to wait for the browser callback")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	e, err := setup(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for authorization in the browser..."
	s.Start()

	token, err := e.client.Authorize(ctx)
	s.Stop()
	if err != nil {
		return err
	}

	if err := e.client.SaveToken(e.tokenKey(), token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Printf("Logged in to %s as %s\n", e.provider, flagPrincipal)
	return nil
}
