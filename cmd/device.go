package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"latchkey/pkg/oauth"
)

// deviceCmd runs the RFC 8628 device authorization flow.
var deviceCmd = &cobra.Command{
	Use:   "device <provider>",
	Short: "Authenticate without a browser on this machine",
	Long: `Authenticate to a provider using the device authorization flow. The
command prints a code to enter at the provider's verification page from
any device, then waits for approval.

Examples:
  latchkey device github.com`,
	Args: cobra.ExactArgs(1),
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(cmd *cobra.Command, args []string) error {
	e, err := setup(args[0])
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)

	token, err := e.client.AuthorizeDevice(cmd.Context(), func(auth *oauth.DeviceAuthorization) {
		if auth.VerificationURIComplete != "" {
			fmt.Printf("Open %s to approve this device\n", auth.VerificationURIComplete)
		} else {
			fmt.Printf("Open %s and enter the code: %s\n", auth.VerificationURI, auth.UserCode)
		}
		s.Suffix = " Waiting for approval..."
		s.Start()
	})
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
